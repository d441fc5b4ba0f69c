// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restserver

// This file contains helpers to build the URI templates in the root
// document from named routes.

import (
	"fmt"
	"strings"

	"github.com/gorilla/mux"
)

type urlBuilder struct {
	Router *mux.Router
	Error  error
}

func buildURLs(router *mux.Router) *urlBuilder {
	return &urlBuilder{Router: router}
}

func (u *urlBuilder) Route(route string) *mux.Route {
	if u.Error != nil {
		return nil
	}
	r := u.Router.Get(route)
	if r == nil {
		u.Error = fmt.Errorf("No such route %q", route)
	}
	return r
}

// URL sets *out to the path of a named route.
func (u *urlBuilder) URL(out *string, route string) *urlBuilder {
	return u.Template(out, route)
}

// Template sets *out to a URI template for a named route that takes
// the named query parameters.
func (u *urlBuilder) Template(out *string, route string, params ...string) *urlBuilder {
	r := u.Route(route)
	if u.Error != nil {
		return u
	}
	url, err := r.URL()
	if err != nil {
		u.Error = err
		return u
	}
	*out = url.String()
	if len(params) > 0 {
		*out += "{?" + strings.Join(params, ",") + "}"
	}
	return u
}
