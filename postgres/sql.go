// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

// This file contains extremely generic support code for PostgreSQL
// applications.
//
// There are three main things in here:
//
// (1) Functions to help with database/sql: withTx() to do work in a
//     transaction that can be retried, and scanRows() to loop over the
//     results of a multi-row SELECT
//
// (2) Helpers to build SQL SELECT statements (dealing entirely in
//     strings)
//
// (3) Helpers to manage potentially long query parameter lists:
//     queryParams is a parameter list that can produce $1, $2, ... out,
//     and fieldList is an INSERT key=value list

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// serializationFailure is the PostgreSQL SQLSTATE for a transaction
// that lost a concurrent update race and should be retried.
const serializationFailure = "40001"

// isSerializationFailure returns true if err came from PostgreSQL and
// says the transaction should be retried.
func isSerializationFailure(err error) bool {
	var pqerr *pq.Error
	return errors.As(err, &pqerr) && pqerr.Code == serializationFailure
}

// withTx calls some function with a database/sql transaction object.
// If f panics or returns a non-nil error, rolls the transaction back;
// otherwise commits it before returning.  Returns the error value from
// f, or some other error related to transaction management.
func withTx(ctx context.Context, db *sql.DB, readOnly bool, f func(*sql.Tx) error) (err error) {
	var (
		tx   *sql.Tx
		done bool
	)

	// If we have a failure, roll back; and if that rollback fails
	// and we don't yet have an error, set the error
	defer func() {
		if tx != nil && !done {
			err2 := tx.Rollback()
			if err == nil {
				err = err2
			}
		}
	}()

	// Run in a loop, repeating the work on serialization errors
	for {
		tx, err = db.BeginTx(ctx, nil)
		if err != nil {
			return
		}

		level := "REPEATABLE READ"
		if readOnly {
			level += " READ ONLY"
		}
		_, err = tx.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL "+level)
		if err != nil {
			return
		}

		// Call the callback function
		err = f(tx)

		// If that succeeded, commit
		if err == nil {
			err = tx.Commit()
			done = true
		}

		// If we specifically got a serialization error,
		// retry
		if isSerializationFailure(err) && ctx.Err() == nil {
			err = tx.Rollback()
			if err == sql.ErrTxDone {
				// We want to roll back, but we
				// can't, because we've already
				// rolled back; not an error
				err = nil
			} else if err != nil {
				return
			}
			tx = nil
			done = false
			continue
		}

		break
	}

	return
}

// scanRows runs an SQL query and calls a function for each row in the
// result.  The callback function should only call the Scan() method on
// the provided Rows object; this function will take care of advancing
// through the list of rows and closing the iterator as required.
func scanRows(rows *sql.Rows, f func() error) (err error) {
	var done bool
	defer func() {
		if !done {
			err2 := rows.Close()
			if err == nil {
				err = err2
			}
		}
	}()

	for rows.Next() {
		err = f()
		if err != nil {
			return
		}
	}
	done = true
	err = rows.Err()
	return
}

// buildSelect constructs a simple SQL SELECT statement by string
// concatenation.  All of the conditions are ANDed together.
func buildSelect(outputs, tables, conditions []string) string {
	query := "SELECT "
	query += strings.Join(outputs, ", ")
	query += " FROM "
	query += strings.Join(tables, ", ")
	if len(conditions) > 0 {
		query += " WHERE "
		query += strings.Join(conditions, " AND ")
	}
	return query
}

// buildDelete constructs a simple SQL DELETE statement by string
// concatenation.  All of the conditions are ANDed together.
func buildDelete(table string, conditions []string) string {
	query := "DELETE FROM " + table
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	return query
}

// likePrefix turns a literal prefix into a LIKE pattern, escaping
// the LIKE metacharacters with backslashes.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// queryParams wraps a list of query parameters.
type queryParams []interface{}

// Param adds a parameter to the query parameter list, returning its
// position as $1, $2, ...
func (qp *queryParams) Param(param interface{}) string {
	*qp = append(*qp, param)
	return fmt.Sprintf("$%v", len(*qp))
}

// fieldPair is a pair of values in a fieldList.
type fieldPair struct {
	Field string
	Value string
}

// fieldList is a list of "field=value" pairs as appears in SQL INSERT
// statements.
type fieldList struct {
	Fields []fieldPair
}

// Add adds a name and dynamic value to the field list.
func (f *fieldList) Add(qp *queryParams, field string, value interface{}) {
	f.Fields = append(f.Fields, fieldPair{Field: field, Value: qp.Param(value)})
}

// FieldNames returns just the field names out as an array.
func (f fieldList) FieldNames() []string {
	result := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		result[i] = field.Field
	}
	return result
}

// FieldValues returns just the field values out as an array.
func (f fieldList) FieldValues() []string {
	result := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		result[i] = field.Value
	}
	return result
}

// InsertStatement produces a syntactically complete SQL INSERT statement.
func (f fieldList) InsertStatement(table string) string {
	return "INSERT INTO " + table + "(" + strings.Join(f.FieldNames(), ", ") +
		") VALUES(" + strings.Join(f.FieldValues(), ", ") + ")"
}

// Excluded produces the "field=EXCLUDED.field" assignments for an
// INSERT ... ON CONFLICT DO UPDATE clause, skipping the fields named
// in keep.
func (f fieldList) Excluded(keep ...string) string {
	skip := make(map[string]bool, len(keep))
	for _, field := range keep {
		skip[field] = true
	}
	var changes []string
	for _, field := range f.Fields {
		if !skip[field.Field] {
			changes = append(changes, field.Field+"=EXCLUDED."+field.Field)
		}
	}
	return strings.Join(changes, ", ")
}
