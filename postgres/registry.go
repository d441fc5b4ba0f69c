// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/comet-ml/opik-sub005/attachment"
)

// scanner is the common part of *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAttachment reads one row selected with attachmentColumns.
func scanAttachment(row scanner) (attachment.Attachment, error) {
	var (
		att        attachment.Attachment
		entityType string
	)
	err := row.Scan(&att.ID, &att.FileName, &att.ProjectID, &entityType,
		&att.EntityID, &att.MimeType, &att.SizeBytes, &att.StorageKey,
		&att.UploadedAt)
	if err != nil {
		return att, err
	}
	att.EntityType, err = attachment.ParseEntityType(entityType)
	return att, err
}

// keyConditions adds WHERE conditions selecting exactly one key.
func keyConditions(qp *queryParams, key attachment.Key) []string {
	return []string{
		attachmentProjectID + "=" + qp.Param(key.ProjectID),
		attachmentEntityType + "=" + qp.Param(key.EntityType.String()),
		attachmentEntityID + "=" + qp.Param(key.EntityID),
		attachmentFileName + "=" + qp.Param(key.FileName),
	}
}

// getForUpdate reads the attachment at key, locking its row for the
// rest of the transaction.  Returns nil if there is no such row.
func getForUpdate(ctx context.Context, tx *sql.Tx, key attachment.Key) (*attachment.Attachment, error) {
	qp := queryParams{}
	query := buildSelect(attachmentColumns, []string{attachmentTable},
		keyConditions(&qp, key)) + " FOR UPDATE"
	att, err := scanAttachment(tx.QueryRowContext(ctx, query, qp...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &att, nil
}

func (r *pgRegistry) Upsert(ctx context.Context, att attachment.Attachment) (*attachment.Attachment, error) {
	var replaced *attachment.Attachment
	err := withTx(ctx, r.db, false, func(tx *sql.Tx) error {
		var err error
		replaced, err = getForUpdate(ctx, tx, att.Key())
		if err != nil {
			return err
		}

		qp := queryParams{}
		fields := fieldList{}
		fields.Add(&qp, colID, att.ID)
		fields.Add(&qp, colProjectID, att.ProjectID)
		fields.Add(&qp, colEntityType, att.EntityType.String())
		fields.Add(&qp, colEntityID, att.EntityID)
		fields.Add(&qp, colFileName, att.FileName)
		fields.Add(&qp, colMimeType, att.MimeType)
		fields.Add(&qp, colSizeBytes, att.SizeBytes)
		fields.Add(&qp, colStorageKey, att.StorageKey)
		fields.Add(&qp, colUploadedAt, att.UploadedAt)
		query := fields.InsertStatement(attachmentTable) +
			" ON CONFLICT (" + attachmentKeyColumns + ") DO UPDATE SET " +
			fields.Excluded(colProjectID, colEntityType, colEntityID, colFileName)
		_, err = tx.ExecContext(ctx, query, qp...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (r *pgRegistry) Get(ctx context.Context, key attachment.Key) (attachment.Attachment, error) {
	var result *attachment.Attachment
	err := withTx(ctx, r.db, true, func(tx *sql.Tx) error {
		qp := queryParams{}
		query := buildSelect(attachmentColumns, []string{attachmentTable},
			keyConditions(&qp, key))
		att, err := scanAttachment(tx.QueryRowContext(ctx, query, qp...))
		if err == sql.ErrNoRows {
			return nil
		}
		result = &att
		return err
	})
	if err != nil {
		return attachment.Attachment{}, err
	}
	if result == nil {
		return attachment.Attachment{}, attachment.ErrNoSuchAttachment
	}
	return *result, nil
}

// queryConditions builds the WHERE conditions for a listing query.
func queryConditions(qp *queryParams, query attachment.AttachmentQuery) []string {
	conditions := []string{attachmentProjectID + "=" + qp.Param(query.ProjectID)}
	if query.EntityType != attachment.NoEntity {
		conditions = append(conditions, attachmentEntityType+"="+qp.Param(query.EntityType.String()))
	}
	if query.EntityID != "" {
		conditions = append(conditions, attachmentEntityID+"="+qp.Param(query.EntityID))
	}
	if query.Prefix != "" {
		conditions = append(conditions, attachmentFileName+" LIKE "+qp.Param(likePrefix(query.Prefix)))
	}
	return conditions
}

func (r *pgRegistry) Find(ctx context.Context, query attachment.AttachmentQuery) (attachment.AttachmentPage, error) {
	query = query.Normalize()
	page := attachment.AttachmentPage{
		Page: query.Page,
		Size: query.Size,
	}
	err := withTx(ctx, r.db, true, func(tx *sql.Tx) error {
		page.Attachments = []attachment.Attachment{}

		qp := queryParams{}
		conditions := queryConditions(&qp, query)
		count := buildSelect([]string{"COUNT(*)"}, []string{attachmentTable}, conditions)
		err := tx.QueryRowContext(ctx, count, qp...).Scan(&page.Total)
		if err != nil {
			return err
		}
		if page.Total <= query.Offset() {
			return nil
		}

		sel := buildSelect(attachmentColumns, []string{attachmentTable}, conditions) +
			attachmentOrder +
			" LIMIT " + qp.Param(query.Size) +
			" OFFSET " + qp.Param(query.Offset())
		rows, err := tx.QueryContext(ctx, sel, qp...)
		if err != nil {
			return err
		}
		return scanRows(rows, func() error {
			att, err := scanAttachment(rows)
			if err == nil {
				page.Attachments = append(page.Attachments, att)
			}
			return err
		})
	})
	return page, err
}

func (r *pgRegistry) DeleteBatch(ctx context.Context, req attachment.DeletionRequest) ([]attachment.Attachment, error) {
	var removed []attachment.Attachment
	if len(req.Entities) == 0 {
		return []attachment.Attachment{}, nil
	}
	err := withTx(ctx, r.db, false, func(tx *sql.Tx) error {
		removed = []attachment.Attachment{}

		qp := queryParams{}
		conditions := []string{attachmentProjectID + "=" + qp.Param(req.ProjectID)}
		refs := make([]string, len(req.Entities))
		for i, ref := range req.Entities {
			refs[i] = "(" + qp.Param(ref.EntityType.String()) + ", " + qp.Param(ref.EntityID) + ")"
		}
		conditions = append(conditions, "("+attachmentEntityType+", "+attachmentEntityID+") IN ("+
			strings.Join(refs, ", ")+")")
		if req.Prefix != "" {
			conditions = append(conditions, attachmentFileName+" LIKE "+qp.Param(likePrefix(req.Prefix)))
		}
		query := buildDelete(attachmentTable, conditions) +
			" RETURNING " + strings.Join(attachmentColumns, ", ")
		rows, err := tx.QueryContext(ctx, query, qp...)
		if err != nil {
			return err
		}
		return scanRows(rows, func() error {
			att, err := scanAttachment(rows)
			if err == nil {
				removed = append(removed, att)
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
