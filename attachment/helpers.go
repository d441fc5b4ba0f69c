// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package attachment

import (
	"math"
	"sort"
	"strings"
)

const (
	// DefaultPageSize is the page size used when a query does
	// not name one.
	DefaultPageSize = 100

	// MaxPageSize is the largest page a query can request.
	MaxPageSize = 1000

	// MaxOffset is the most records a query can skip.  Pages past
	// it are empty.
	MaxOffset = math.MaxInt32

	// MaxParts is the largest number of parts an object store will
	// accept in one multipart upload.
	MaxParts = 10000

	// DefaultWorkspace is used when a request carries no workspace.
	DefaultWorkspace = "default"
)

// WorkspaceOf maps an empty workspace name to DefaultWorkspace.
func WorkspaceOf(workspace string) string {
	if workspace == "" {
		return DefaultWorkspace
	}
	return workspace
}

// Validate checks that an AttachmentInfo names a complete target.
// Returns an ErrValidation on the first missing field.
func (info AttachmentInfo) Validate() error {
	switch {
	case strings.TrimSpace(info.FileName) == "":
		return ErrValidation{Field: "file_name", Reason: "must not be empty"}
	case strings.TrimSpace(info.ProjectName) == "":
		return ErrValidation{Field: "project_name", Reason: "must not be empty"}
	case info.EntityType == NoEntity:
		return ErrValidation{Field: "entity_type", Reason: "must be trace, span or thread"}
	case strings.TrimSpace(info.EntityID) == "":
		return ErrValidation{Field: "entity_id", Reason: "must not be empty"}
	}
	if _, err := info.EntityType.MarshalText(); err != nil {
		return ErrValidation{Field: "entity_type", Reason: err.Error()}
	}
	return nil
}

// PartPlan computes how to split an object of size bytes into parts
// of at least partSize bytes.  It returns the number of parts, never
// less than 1, and the part size actually used, which grows if more
// than MaxParts parts would otherwise be needed.
func PartPlan(size, partSize int64) (int, int64) {
	if partSize <= 0 {
		partSize = size
	}
	if size <= 0 || partSize <= 0 {
		return 1, partSize
	}
	if minSize := (size + MaxParts - 1) / MaxParts; partSize < minSize {
		partSize = minSize
	}
	count := (size + partSize - 1) / partSize
	if count < 1 {
		count = 1
	}
	return int(count), partSize
}

// Normalize returns a copy of query with Page and Size filled in and
// clamped to their legal ranges.
func (query AttachmentQuery) Normalize() AttachmentQuery {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Size < 1 {
		query.Size = DefaultPageSize
	}
	if query.Size > MaxPageSize {
		query.Size = MaxPageSize
	}
	return query
}

// Offset returns the number of records skipped before this page,
// never more than MaxOffset.
func (query AttachmentQuery) Offset() int {
	query = query.Normalize()
	if query.Page-1 > MaxOffset/query.Size {
		return MaxOffset
	}
	return (query.Page - 1) * query.Size
}

// Matches determines whether an attachment would be selected by a
// query, ignoring pagination.
func (query AttachmentQuery) Matches(att Attachment) bool {
	if att.ProjectID != query.ProjectID {
		return false
	}
	if query.EntityType != NoEntity && att.EntityType != query.EntityType {
		return false
	}
	if query.EntityID != "" && att.EntityID != query.EntityID {
		return false
	}
	return strings.HasPrefix(att.FileName, query.Prefix)
}

// Matches determines whether an attachment would be removed by a
// deletion request.
func (req DeletionRequest) Matches(att Attachment) bool {
	if att.ProjectID != req.ProjectID {
		return false
	}
	if !strings.HasPrefix(att.FileName, req.Prefix) {
		return false
	}
	for _, ref := range req.Entities {
		if ref.EntityType == att.EntityType && ref.EntityID == att.EntityID {
			return true
		}
	}
	return false
}

// SortAttachments sorts attachments most recently uploaded first,
// breaking ties by descending ID, so the order is stable for an
// unchanged set.
func SortAttachments(atts []Attachment) {
	sort.Slice(atts, func(i, j int) bool {
		if !atts[i].UploadedAt.Equal(atts[j].UploadedAt) {
			return atts[i].UploadedAt.After(atts[j].UploadedAt)
		}
		return atts[i].ID > atts[j].ID
	})
}

// Paginate sorts a complete result set and cuts out the page a query
// asks for.
func Paginate(query AttachmentQuery, atts []Attachment) AttachmentPage {
	query = query.Normalize()
	SortAttachments(atts)
	page := AttachmentPage{
		Page:        query.Page,
		Size:        query.Size,
		Total:       len(atts),
		Attachments: []Attachment{},
	}
	start := query.Offset()
	if start >= len(atts) {
		return page
	}
	end := start + query.Size
	if end > len(atts) {
		end = len(atts)
	}
	page.Attachments = append(page.Attachments, atts[start:end]...)
	return page
}

// StorageKey builds the object store key for a new upload.  unique
// must be fresh for every upload so that keys are never reused.
func StorageKey(projectID string, info AttachmentInfo, unique string) string {
	return strings.Join([]string{
		"attachments",
		projectID,
		info.EntityType.String(),
		info.EntityID,
		unique,
		info.FileName,
	}, "/")
}
