// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package restserver publishes the attachment services as a REST
// service.  The restclient package is a matching client.
//
// The complete REST API is defined in the restdata package.
//
// HTTP Considerations
//
// Responses are JSON.  Clients may use the standard HTTP Accept:
// header to ask for a specific representation; see "MIME Types"
// below.  Authentication is assumed to happen in front of this
// service, which trusts the Comet-Workspace header.
//
// Multipart part bytes never pass through this server.  Clients PUT
// them to the presigned URLs returned from upload-start.
//
// MIME Types
//
// This interface understands MIME types as follows:
//
//     application/vnd.opik.attachment.v1+json
//
// JSON representation of version 1 of this interface.
//
//     application/vnd.opik.attachment+json
//     application/json
//     text/json
//
// JSON representation of latest version of this interface.
//
// URL Scheme
//
// The following URLs are defined, relative to /v1/private:
//
//     /attachment
//     /attachment/upload-start
//     /attachment/upload-complete
//     /attachment/list
//     /attachment/upload
//     /attachment/download
//     /attachment/delete
package restserver
