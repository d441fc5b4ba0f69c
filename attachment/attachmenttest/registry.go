// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package attachmenttest

import (
	"fmt"
	"sync"
	"time"

	"github.com/comet-ml/opik-sub005/attachment"
)

// sameAttachment checks that two attachment records carry the same
// data, comparing timestamps by instant.
func (s *Suite) sameAttachment(expected, actual attachment.Attachment) {
	s.Equal(expected.ID, actual.ID)
	s.Equal(expected.FileName, actual.FileName)
	s.Equal(expected.ProjectID, actual.ProjectID)
	s.Equal(expected.EntityType, actual.EntityType)
	s.Equal(expected.EntityID, actual.EntityID)
	s.Equal(expected.MimeType, actual.MimeType)
	s.Equal(expected.SizeBytes, actual.SizeBytes)
	s.Equal(expected.StorageKey, actual.StorageKey)
	s.True(expected.UploadedAt.Equal(actual.UploadedAt),
		"expected %v, got %v", expected.UploadedAt, actual.UploadedAt)
}

// ids extracts the IDs of a list of attachments, in order.
func ids(atts []attachment.Attachment) []string {
	result := make([]string, len(atts))
	for i, att := range atts {
		result[i] = att.ID
	}
	return result
}

// TestUpsertGet does a basic create and fetch.
func (s *Suite) TestUpsertGet() {
	project := s.projectID()
	att := s.makeAttachment(project, attachment.TraceEntity, "t1", "log.txt")

	replaced := s.upsert(att)
	s.Nil(replaced)

	actual, err := s.Registry.Get(s.ctx(), att.Key())
	if s.NoError(err) {
		s.sameAttachment(att, actual)
	}
}

// TestGetMissing checks the error for an absent key.
func (s *Suite) TestGetMissing() {
	_, err := s.Registry.Get(s.ctx(), attachment.Key{
		ProjectID:  s.projectID(),
		EntityType: attachment.SpanEntity,
		EntityID:   "s1",
		FileName:   "nothing.bin",
	})
	s.Equal(attachment.ErrNoSuchAttachment, err)
}

// TestUpsertReplaces checks last-writer-wins on the same key.
func (s *Suite) TestUpsertReplaces() {
	project := s.projectID()
	first := s.makeAttachment(project, attachment.TraceEntity, "t1", "log.txt")
	s.Nil(s.upsert(first))

	s.Clock.Add(time.Minute)
	second := s.makeAttachment(project, attachment.TraceEntity, "t1", "log.txt")
	second.SizeBytes = 99
	replaced := s.upsert(second)
	if s.NotNil(replaced) {
		s.sameAttachment(first, *replaced)
	}

	actual, err := s.Registry.Get(s.ctx(), first.Key())
	if s.NoError(err) {
		s.sameAttachment(second, actual)
	}

	page, err := s.Registry.Find(s.ctx(), attachment.AttachmentQuery{ProjectID: project})
	if s.NoError(err) {
		s.Equal(1, page.Total)
		s.Equal([]string{second.ID}, ids(page.Attachments))
	}
}

// TestFindFilters runs queries with each filter.
func (s *Suite) TestFindFilters() {
	project := s.projectID()
	other := s.projectID()
	t1 := s.makeAttachment(project, attachment.TraceEntity, "t1", "a.txt")
	s.Clock.Add(time.Second)
	t1img := s.makeAttachment(project, attachment.TraceEntity, "t1", "images/cat.png")
	s.Clock.Add(time.Second)
	t2 := s.makeAttachment(project, attachment.TraceEntity, "t2", "a.txt")
	s.Clock.Add(time.Second)
	sp := s.makeAttachment(project, attachment.SpanEntity, "t1", "a.txt")
	s.Clock.Add(time.Second)
	elsewhere := s.makeAttachment(other, attachment.TraceEntity, "t1", "a.txt")
	for _, att := range []attachment.Attachment{t1, t1img, t2, sp, elsewhere} {
		s.upsert(att)
	}

	for _, c := range []struct {
		Name  string
		Query attachment.AttachmentQuery
		IDs   []string
	}{
		{"project", attachment.AttachmentQuery{ProjectID: project},
			[]string{sp.ID, t2.ID, t1img.ID, t1.ID}},
		{"type", attachment.AttachmentQuery{ProjectID: project, EntityType: attachment.TraceEntity},
			[]string{t2.ID, t1img.ID, t1.ID}},
		{"entity", attachment.AttachmentQuery{ProjectID: project, EntityType: attachment.TraceEntity, EntityID: "t1"},
			[]string{t1img.ID, t1.ID}},
		{"prefix", attachment.AttachmentQuery{ProjectID: project, Prefix: "images/"},
			[]string{t1img.ID}},
		{"other", attachment.AttachmentQuery{ProjectID: other},
			[]string{elsewhere.ID}},
		{"none", attachment.AttachmentQuery{ProjectID: project, EntityID: "missing"},
			[]string{}},
	} {
		page, err := s.Registry.Find(s.ctx(), c.Query)
		if s.NoError(err, c.Name) {
			s.Equal(c.IDs, ids(page.Attachments), c.Name)
			s.Equal(len(c.IDs), page.Total, c.Name)
			s.Equal(1, page.Page, c.Name)
			s.Equal(attachment.DefaultPageSize, page.Size, c.Name)
		}
	}
}

// TestFindPagination walks pages of a query, including ties on the
// upload time.
func (s *Suite) TestFindPagination() {
	project := s.projectID()
	var all []attachment.Attachment
	for i := 0; i < 7; i++ {
		// Pairs of attachments share a timestamp
		if i%2 == 0 {
			s.Clock.Add(time.Second)
		}
		att := s.makeAttachment(project, attachment.ThreadEntity, "th", fmt.Sprintf("f%d", i))
		s.upsert(att)
		all = append(all, att)
	}
	attachment.SortAttachments(all)
	expected := ids(all)

	var seen []string
	for p := 1; p <= 3; p++ {
		page, err := s.Registry.Find(s.ctx(), attachment.AttachmentQuery{
			ProjectID: project,
			Page:      p,
			Size:      3,
		})
		if !s.NoError(err) {
			return
		}
		s.Equal(7, page.Total)
		s.Equal(p, page.Page)
		s.Equal(3, page.Size)
		seen = append(seen, ids(page.Attachments)...)
	}
	s.Equal(expected, seen)

	// Asking again gives the same answer
	page, err := s.Registry.Find(s.ctx(), attachment.AttachmentQuery{
		ProjectID: project,
		Page:      2,
		Size:      3,
	})
	if s.NoError(err) {
		s.Equal(expected[3:6], ids(page.Attachments))
	}

	// Past the end is empty but still counts
	page, err = s.Registry.Find(s.ctx(), attachment.AttachmentQuery{
		ProjectID: project,
		Page:      9,
		Size:      3,
	})
	if s.NoError(err) {
		s.Empty(page.Attachments)
		s.Equal(7, page.Total)
	}
}

// TestDeleteBatch removes attachments for some entities.
func (s *Suite) TestDeleteBatch() {
	project := s.projectID()
	keep := s.makeAttachment(project, attachment.TraceEntity, "keep", "a.txt")
	gone1 := s.makeAttachment(project, attachment.TraceEntity, "gone", "a.txt")
	gone2 := s.makeAttachment(project, attachment.TraceEntity, "gone", "b.txt")
	span := s.makeAttachment(project, attachment.SpanEntity, "gone", "a.txt")
	for _, att := range []attachment.Attachment{keep, gone1, gone2, span} {
		s.upsert(att)
	}

	removed, err := s.Registry.DeleteBatch(s.ctx(), attachment.DeletionRequest{
		ProjectID: project,
		Entities: []attachment.EntityRef{
			{EntityType: attachment.TraceEntity, EntityID: "gone"},
		},
	})
	if s.NoError(err) {
		s.ElementsMatch([]string{gone1.ID, gone2.ID}, ids(removed))
	}

	page, err := s.Registry.Find(s.ctx(), attachment.AttachmentQuery{ProjectID: project})
	if s.NoError(err) {
		s.ElementsMatch([]string{keep.ID, span.ID}, ids(page.Attachments))
	}

	_, err = s.Registry.Get(s.ctx(), gone1.Key())
	s.Equal(attachment.ErrNoSuchAttachment, err)

	// Deleting again finds nothing
	removed, err = s.Registry.DeleteBatch(s.ctx(), attachment.DeletionRequest{
		ProjectID: project,
		Entities: []attachment.EntityRef{
			{EntityType: attachment.TraceEntity, EntityID: "gone"},
		},
	})
	if s.NoError(err) {
		s.Empty(removed)
	}
}

// TestDeleteBatchPrefix narrows a deletion by file name prefix.
func (s *Suite) TestDeleteBatchPrefix() {
	project := s.projectID()
	img := s.makeAttachment(project, attachment.SpanEntity, "s", "images/x.png")
	doc := s.makeAttachment(project, attachment.SpanEntity, "s", "docs/y.pdf")
	s.upsert(img)
	s.upsert(doc)

	removed, err := s.Registry.DeleteBatch(s.ctx(), attachment.DeletionRequest{
		ProjectID: project,
		Entities:  []attachment.EntityRef{{EntityType: attachment.SpanEntity, EntityID: "s"}},
		Prefix:    "images/",
	})
	if s.NoError(err) {
		s.Equal([]string{img.ID}, ids(removed))
	}

	_, err = s.Registry.Get(s.ctx(), doc.Key())
	s.NoError(err)
}

// TestDeleteBatchEmpty checks that a request with no entities
// removes nothing.
func (s *Suite) TestDeleteBatchEmpty() {
	project := s.projectID()
	s.upsert(s.makeAttachment(project, attachment.TraceEntity, "t", "a"))

	removed, err := s.Registry.DeleteBatch(s.ctx(), attachment.DeletionRequest{ProjectID: project})
	if s.NoError(err) {
		s.Empty(removed)
	}
}

// TestConcurrentUpsert races many writers on one key; exactly one
// record survives, and every other record is reported replaced
// exactly once.
func (s *Suite) TestConcurrentUpsert() {
	project := s.projectID()
	const writers = 8

	atts := make([]attachment.Attachment, writers)
	for i := range atts {
		atts[i] = s.makeAttachment(project, attachment.TraceEntity, "t", "same.txt")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		replaced []string
		errs     []error
	)
	for _, att := range atts {
		wg.Add(1)
		go func(att attachment.Attachment) {
			defer wg.Done()
			old, err := s.Registry.Upsert(s.ctx(), att)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			} else if old != nil {
				replaced = append(replaced, old.ID)
			}
		}(att)
	}
	wg.Wait()
	s.Empty(errs)
	s.Len(replaced, writers-1)

	page, err := s.Registry.Find(s.ctx(), attachment.AttachmentQuery{ProjectID: project})
	if s.NoError(err) && s.Len(page.Attachments, 1) {
		survivor := page.Attachments[0].ID
		s.NotContains(replaced, survivor)
		all := append(replaced, survivor)
		s.ElementsMatch(ids(atts), all)
	}
}

// TestFindSnapshot checks that a listing never sees a later write
// without an earlier one from the same writer.
func (s *Suite) TestFindSnapshot() {
	project := s.projectID()
	const pairs = 50

	done := make(chan struct{})
	errs := make(chan error, 1)
	go func() {
		defer close(done)
		for i := 0; i < pairs; i++ {
			for _, name := range []string{"a", "b"} {
				att := s.makeAttachment(project, attachment.TraceEntity, "t", fmt.Sprintf("%s-%d.txt", name, i))
				if _, err := s.Registry.Upsert(s.ctx(), att); err != nil {
					errs <- err
					return
				}
			}
		}
	}()

	query := attachment.AttachmentQuery{ProjectID: project, Size: attachment.MaxPageSize}
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		page, err := s.Registry.Find(s.ctx(), query)
		s.Require().NoError(err)
		seen := make(map[string]bool)
		for _, att := range page.Attachments {
			seen[att.FileName] = true
		}
		for i := 0; i < pairs; i++ {
			if seen[fmt.Sprintf("b-%d.txt", i)] {
				s.Require().True(seen[fmt.Sprintf("a-%d.txt", i)], "b-%d without a-%d", i, i)
			}
		}
	}
	select {
	case err := <-errs:
		s.Require().NoError(err)
	default:
	}

	page, err := s.Registry.Find(s.ctx(), query)
	s.Require().NoError(err)
	s.Len(page.Attachments, 2*pairs)
}
