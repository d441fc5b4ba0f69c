// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

const (
	// SQL table names:
	attachmentTable = "attachment"

	// SQL column names, unqualified for INSERT:
	colID         = "id"
	colProjectID  = "project_id"
	colEntityType = "entity_type"
	colEntityID   = "entity_id"
	colFileName   = "file_name"
	colMimeType   = "mime_type"
	colSizeBytes  = "size_bytes"
	colStorageKey = "storage_key"
	colUploadedAt = "uploaded_at"

	// SQL column names:
	attachmentID         = attachmentTable + "." + colID
	attachmentProjectID  = attachmentTable + "." + colProjectID
	attachmentEntityType = attachmentTable + "." + colEntityType
	attachmentEntityID   = attachmentTable + "." + colEntityID
	attachmentFileName   = attachmentTable + "." + colFileName
	attachmentMimeType   = attachmentTable + "." + colMimeType
	attachmentSizeBytes  = attachmentTable + "." + colSizeBytes
	attachmentStorageKey = attachmentTable + "." + colStorageKey
	attachmentUploadedAt = attachmentTable + "." + colUploadedAt

	// The unique constraint on the logical key
	attachmentKeyColumns = colProjectID + ", " + colEntityType + ", " + colEntityID + ", " + colFileName

	// Listing order: newest first, stable on ties
	attachmentOrder = " ORDER BY " + attachmentUploadedAt + " DESC, " + attachmentID + " DESC"
)

// attachmentColumns is the SELECT list matching scanAttachment.
var attachmentColumns = []string{
	attachmentID,
	attachmentFileName,
	attachmentProjectID,
	attachmentEntityType,
	attachmentEntityID,
	attachmentMimeType,
	attachmentSizeBytes,
	attachmentStorageKey,
	attachmentUploadedAt,
}
