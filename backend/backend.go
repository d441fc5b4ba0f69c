// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package backend provides a standard way to construct the attachment
// registry and object store based on command-line flags.
package backend

import (
	"context"
	"errors"
	"strings"

	"github.com/comet-ml/opik-sub005/attachment"
	"github.com/comet-ml/opik-sub005/config"
	"github.com/comet-ml/opik-sub005/memory"
	"github.com/comet-ml/opik-sub005/miniostore"
	"github.com/comet-ml/opik-sub005/postgres"
	"github.com/comet-ml/opik-sub005/s3store"
)

// Backend describes user-visible parameters to store attachment data.
// This implements the flag.Value interface, and so a typical use is
//
//     func main() {
//         registry := backend.Backend{Implementation: "memory"}
//         flag.Var(&registry, "registry", "impl:address of metadata storage")
//         flag.Parse()
//         reg, err := registry.Registry()
//     }
//
// Registries are "memory" and "postgres:<connection string>".  Object
// stores are "memory", "s3:<bucket>", and "minio:<host:port>/<bucket>".
type Backend struct {
	// Implementation holds the name of the implementation; for
	// instance, "memory".
	Implementation string

	// Address holds some backend-specific address, such as a
	// database connect string.
	Address string
}

// ErrUnknownBackend is returned when an implementation name is not
// recognized, or does not provide the requested kind of storage.
type ErrUnknownBackend struct {
	Kind           string
	Implementation string
}

func (err ErrUnknownBackend) Error() string {
	return "unknown " + err.Kind + " backend " + err.Implementation
}

var known = map[string]bool{
	"memory":   true,
	"postgres": true,
	"s3":       true,
	"minio":    true,
}

// Registry creates a new attachment registry.  This generally should
// be only called once.  If b.Implementation is "memory", multiple
// calls create multiple independent registries.
func (b *Backend) Registry() (attachment.Registry, error) {
	switch b.Implementation {
	case "memory":
		return memory.NewRegistry(), nil
	case "postgres":
		return postgres.New(b.Address)
	default:
		return nil, ErrUnknownBackend{Kind: "registry", Implementation: b.Implementation}
	}
}

// BlobStore creates a new object store.  publicURL is the externally
// visible base URL of the daemon, used by the "memory" store for its
// presigned links; that store is also an http.Handler the caller must
// mount under publicURL's "/blob/" path.
func (b *Backend) BlobStore(ctx context.Context, publicURL string, secret []byte, s3 config.S3) (attachment.BlobStore, error) {
	switch b.Implementation {
	case "memory":
		return memory.NewBlobStore(strings.TrimSuffix(publicURL, "/")+"/blob", secret), nil
	case "s3":
		if b.Address == "" {
			return nil, errors.New("s3 backend needs a bucket name")
		}
		return s3store.NewFromConfig(ctx, s3store.Options{
			Bucket:    b.Address,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			PathStyle: s3.PathStyle,
		})
	case "minio":
		slash := strings.LastIndex(b.Address, "/")
		if slash <= 0 || slash == len(b.Address)-1 {
			return nil, errors.New("minio backend needs host:port/bucket")
		}
		return miniostore.Dial(miniostore.Options{
			Endpoint:  b.Address[:slash],
			Bucket:    b.Address[slash+1:],
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Region:    s3.Region,
			Secure:    s3.Secure,
		})
	default:
		return nil, ErrUnknownBackend{Kind: "blob store", Implementation: b.Implementation}
	}
}

// String renders a backend description as a string.
func (b *Backend) String() string {
	if b.Address == "" {
		return b.Implementation
	}
	return b.Implementation + ":" + b.Address
}

// Set parses a string into an existing backend description.  The
// string should be of the form "implementation:address", where
// address can be any string.  Set checks to see if the provided
// implementation is any of the known implementations, and returns an
// appropriate error if not.
//
// This is part of the flag.Value interface.  Note that neither Set
// nor String attempts to validate the b.Address part of the string or
// attempts to actually make a connection.
func (b *Backend) Set(param string) error {
	parts := strings.SplitN(param, ":", 2)
	if parts[0] == "" {
		return errors.New("must specify a backend type")
	}
	if !known[parts[0]] {
		return ErrUnknownBackend{Kind: "storage", Implementation: parts[0]}
	}
	b.Implementation = parts[0]
	b.Address = ""
	if len(parts) == 2 {
		b.Address = parts[1]
	}
	return nil
}
