// Package sqlite is the relational store for worker profiles, extracted
// document fields and verification state.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrWorkerNotFound = errors.New("worker not found")
	// ErrStaleState means the documents a computation was based on changed
	// before its result could be written.
	ErrStaleState = errors.New("worker documents changed concurrently")
)

func InitDB(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=30000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type migration struct {
	name  string
	apply func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{name: "001_init_schema", apply: initSchema},
	{name: "002_add_verification_columns", apply: addVerificationColumns},
	{name: "003_add_personal_extraction_columns", apply: addPersonalExtractionColumns},
}

type MigrationRecord struct {
	Name      string
	AppliedAt time.Time
}

// Migrate applies every migration not yet recorded in the migrations table,
// each in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS migrations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT UNIQUE NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM migrations WHERE name = ?`, m.name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if count > 0 {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.apply(ctx, tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO migrations (name, applied_at) VALUES (?, ?)`, m.name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func AppliedMigrations(ctx context.Context, db *sql.DB) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, applied_at FROM migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var rec MigrationRecord
		if err := rows.Scan(&rec.Name, &rec.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func initSchema(ctx context.Context, tx *sql.Tx) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		worker_id                  TEXT PRIMARY KEY,
		mobile_number              TEXT NOT NULL DEFAULT '',
		name                       TEXT,
		dob                        TEXT,
		address                    TEXT,
		personal_document_path     TEXT,
		educational_document_paths TEXT,
		video_url                  TEXT,
		created_at                 DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_workers_mobile ON workers(mobile_number);

	CREATE TABLE IF NOT EXISTS educational_documents (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id       TEXT NOT NULL REFERENCES workers(worker_id) ON DELETE CASCADE,
		document_type   TEXT,
		qualification   TEXT,
		board           TEXT,
		stream          TEXT,
		year_of_passing TEXT,
		school_name     TEXT,
		marks_type      TEXT,
		marks           TEXT,
		percentage      REAL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_educational_documents_worker ON educational_documents(worker_id);

	CREATE TABLE IF NOT EXISTS work_experience (
		id                        INTEGER PRIMARY KEY AUTOINCREMENT,
		worker_id                 TEXT NOT NULL REFERENCES workers(worker_id) ON DELETE CASCADE,
		primary_skill             TEXT,
		experience_years          INTEGER,
		skills                    TEXT,
		preferred_location        TEXT,
		current_location          TEXT,
		availability              TEXT,
		workplaces                TEXT,
		total_experience_duration INTEGER,
		created_at                DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_work_experience_worker ON work_experience(worker_id);

	CREATE TABLE IF NOT EXISTS voice_sessions (
		call_id         TEXT PRIMARY KEY,
		worker_id       TEXT REFERENCES workers(worker_id) ON DELETE CASCADE,
		phone_number    TEXT,
		status          TEXT DEFAULT 'initiated',
		current_step    INTEGER DEFAULT 0,
		responses_json  TEXT,
		transcript      TEXT,
		experience_json TEXT,
		exp_ready       INTEGER DEFAULT 0,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_voice_sessions_worker ON voice_sessions(worker_id);

	CREATE TABLE IF NOT EXISTS experience_sessions (
		session_id       TEXT PRIMARY KEY,
		worker_id        TEXT NOT NULL REFERENCES workers(worker_id) ON DELETE CASCADE,
		current_question INTEGER DEFAULT 0,
		raw_conversation TEXT,
		structured_data  TEXT,
		status           TEXT DEFAULT 'active',
		created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cv_status (
		worker_id       TEXT PRIMARY KEY REFERENCES workers(worker_id) ON DELETE CASCADE,
		has_cv          INTEGER DEFAULT 0,
		cv_generated_at DATETIME
	);
	`
	_, err := tx.ExecContext(ctx, schema)
	return err
}

func addVerificationColumns(ctx context.Context, tx *sql.Tx) error {
	columns := []struct{ table, name, def string }{
		{"workers", "verification_status", "TEXT DEFAULT 'pending'"},
		{"workers", "verified_at", "DATETIME"},
		{"workers", "verification_errors", "TEXT"},
		{"workers", "personal_extracted_name", "TEXT"},
		{"workers", "personal_extracted_dob", "TEXT"},
		{"workers", "name_verified", "INTEGER DEFAULT 0"},
		{"workers", "dob_verified", "INTEGER DEFAULT 0"},
		{"educational_documents", "raw_ocr_text", "TEXT"},
		{"educational_documents", "llm_extracted_data", "TEXT"},
		{"educational_documents", "extracted_name", "TEXT"},
		{"educational_documents", "extracted_dob", "TEXT"},
		{"educational_documents", "verification_status", "TEXT DEFAULT 'pending'"},
		{"educational_documents", "verification_errors", "TEXT"},
	}
	for _, c := range columns {
		if err := addColumnIfMissing(ctx, tx, c.table, c.name, c.def); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, `
	CREATE INDEX IF NOT EXISTS idx_workers_verification_status ON workers(verification_status);
	CREATE INDEX IF NOT EXISTS idx_educational_documents_verification ON educational_documents(worker_id, verification_status);
	`)
	return err
}

func addPersonalExtractionColumns(ctx context.Context, tx *sql.Tx) error {
	columns := []struct{ name, def string }{
		{"personal_extracted_address", "TEXT"},
		{"personal_extracted_mobile", "TEXT"},
		{"personal_raw_ocr_text", "TEXT"},
		{"personal_llm_extracted_data", "TEXT"},
		{"personal_extracted_at", "DATETIME"},
		{"updated_at", "DATETIME"},
	}
	for _, c := range columns {
		if err := addColumnIfMissing(ctx, tx, "workers", c.name, c.def); err != nil {
			return err
		}
	}
	return nil
}

// addColumnIfMissing lets a migration run against databases that already
// received the column through an older ad hoc script.
func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, def string) error {
	var colCount int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&colCount)
	if err != nil {
		return fmt.Errorf("inspect %s.%s: %w", table, column, err)
	}
	if colCount > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, def)); err != nil {
		return fmt.Errorf("add %s.%s: %w", table, column, err)
	}
	return nil
}
