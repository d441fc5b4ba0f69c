// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package restdata

import (
	"io"
	"mime"

	"github.com/ugorji/go/codec"

	"github.com/comet-ml/opik-sub005/attachment"
)

// Decode tries to decode a restdata object from a reader, such as an
// HTTP request or response.  out must be a pointer type.
func Decode(contentType string, r io.Reader, out interface{}) error {
	if contentType == "" {
		// RFC 7231 section 3.1.1.5
		// We could also consider http.DetectContentType()
		contentType = "application/octet-stream"
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ErrBadRequest{Err: err}
	}

	// Promote to more specific types
	switch mediaType {
	case "text/json", "application/json", JSONMediaType, V1JSONMediaType:
		mediaType = V1JSONMediaType
	default:
		return ErrUnsupportedMediaType{Type: mediaType}
	}

	json := &codec.JsonHandle{}
	decoder := codec.NewDecoder(r, json)
	if err := decoder.Decode(out); err != nil {
		return ErrBadRequest{Err: err}
	}
	return nil
}

// Encode writes the JSON representation of a restdata object.
func Encode(w io.Writer, in interface{}) error {
	json := &codec.JsonHandle{}
	encoder := codec.NewEncoder(w, json)
	return encoder.Encode(in)
}

// NewAttachment builds a listing entry for an attachment.
func NewAttachment(att attachment.Attachment, link string) Attachment {
	return Attachment{
		FileName:   att.FileName,
		FileSize:   att.SizeBytes,
		MimeType:   att.MimeType,
		Link:       link,
		EntityType: att.EntityType.String(),
		EntityID:   att.EntityID,
		UploadedAt: att.UploadedAt,
	}
}

// NewStartUploadResponse builds the upload-start response for a
// session.
func NewStartUploadResponse(session attachment.UploadSession) StartUploadResponse {
	urls := session.PartURLs
	if urls == nil {
		urls = []string{}
	}
	return StartUploadResponse{UploadID: session.UploadID, PreSignURLs: urls, PartSize: session.PartSize}
}
