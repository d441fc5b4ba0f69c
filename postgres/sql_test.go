// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestQueryParams(t *testing.T) {
	qp := queryParams{}
	assert.Equal(t, "$1", qp.Param("a"))
	assert.Equal(t, "$2", qp.Param(17))
	assert.Equal(t, queryParams{"a", 17}, qp)
}

func TestBuildSelect(t *testing.T) {
	assert.Equal(t, "SELECT a, b FROM t",
		buildSelect([]string{"a", "b"}, []string{"t"}, nil))
	assert.Equal(t, "SELECT a FROM t, u WHERE x=$1 AND y=$2",
		buildSelect([]string{"a"}, []string{"t", "u"}, []string{"x=$1", "y=$2"}))
}

func TestBuildDelete(t *testing.T) {
	assert.Equal(t, "DELETE FROM t", buildDelete("t", nil))
	assert.Equal(t, "DELETE FROM t WHERE x=$1", buildDelete("t", []string{"x=$1"}))
}

func TestFieldList(t *testing.T) {
	qp := queryParams{}
	fields := fieldList{}
	fields.Add(&qp, "id", "x")
	fields.Add(&qp, "name", "y")
	fields.Add(&qp, "size", 3)
	assert.Equal(t, "INSERT INTO t(id, name, size) VALUES($1, $2, $3)",
		fields.InsertStatement("t"))
	assert.Equal(t, "id=EXCLUDED.id, size=EXCLUDED.size", fields.Excluded("name"))
	assert.Len(t, qp, 3)
}

func TestLikePrefix(t *testing.T) {
	assert.Equal(t, "images/%", likePrefix("images/"))
	assert.Equal(t, `100\%\_done\\%`, likePrefix(`100%_done\`))
	assert.Equal(t, "%", likePrefix(""))
}

func TestSerializationFailure(t *testing.T) {
	assert.True(t, isSerializationFailure(&pq.Error{Code: "40001"}))
	assert.True(t, isSerializationFailure(fmt.Errorf("commit: %w", &pq.Error{Code: "40001"})))
	assert.False(t, isSerializationFailure(&pq.Error{Code: "23505"}))
	assert.False(t, isSerializationFailure(errors.New("40001")))
}

func TestUpsertStatement(t *testing.T) {
	// Mirrors the statement Upsert builds, so that a change to
	// the column constants shows up here
	qp := queryParams{}
	fields := fieldList{}
	for _, col := range []string{colID, colProjectID, colEntityType, colEntityID, colFileName} {
		fields.Add(&qp, col, col)
	}
	assert.Equal(t, "id=EXCLUDED.id",
		fields.Excluded(colProjectID, colEntityType, colEntityID, colFileName))
	assert.Equal(t, "project_id, entity_type, entity_id, file_name", attachmentKeyColumns)
	assert.Equal(t, " ORDER BY attachment.uploaded_at DESC, attachment.id DESC", attachmentOrder)
}
