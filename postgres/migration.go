// Copyright 2026 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package postgres

import (
	"database/sql"

	"github.com/rubenv/sql-migrate"
)

// This file maintains the database migration code.  See
// https://github.com/rubenv/sql-migrate for details of what goes in
// here.  This runs "outside" the normal registry flow, either at
// initial startup or from an external tool.

var migrationSource = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_attachment",
			Up: []string{
				`CREATE TABLE attachment(
					id UUID PRIMARY KEY,
					project_id TEXT NOT NULL,
					entity_type TEXT NOT NULL,
					entity_id TEXT NOT NULL,
					file_name TEXT NOT NULL,
					mime_type TEXT NOT NULL DEFAULT '',
					size_bytes BIGINT NOT NULL,
					storage_key TEXT NOT NULL UNIQUE,
					uploaded_at TIMESTAMP WITH TIME ZONE NOT NULL,
					CONSTRAINT attachment_key
						UNIQUE(project_id, entity_type, entity_id, file_name)
				)`,
				`CREATE INDEX attachment_listing
					ON attachment(project_id, uploaded_at DESC, id DESC)`,
			},
			Down: []string{
				`DROP TABLE attachment`,
			},
		},
	},
}

// Upgrade upgrades a database to the latest database schema version.
func Upgrade(db *sql.DB) error {
	_, err := migrate.Exec(db, "postgres", migrationSource, migrate.Up)
	return err
}

// Drop clears a database by running all of the migrations in reverse,
// ultimately resulting in dropping all of the tables.
func Drop(db *sql.DB) error {
	_, err := migrate.Exec(db, "postgres", migrationSource, migrate.Down)
	return err
}
