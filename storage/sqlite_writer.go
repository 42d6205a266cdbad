package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"yad2-pipeline/models"
)

// SQLiteWriter persists cleaned listings to a local SQLite file.
type SQLiteWriter struct {
	db    *sql.DB
	table string
}

// NewSQLiteWriter opens (or creates) the database file and its table.
func NewSQLiteWriter(path, table string) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("sqlite: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	sw := &SQLiteWriter{db: db, table: quoteSQLiteIdent(table)}
	if err := sw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return sw, nil
}

// quoteSQLiteIdent wraps name in double quotes, doubling any embedded quote.
func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sw *SQLiteWriter) migrate() error {
	_, err := sw.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			title         TEXT,
			city          TEXT NOT NULL DEFAULT 'Unknown',
			neighborhood  TEXT,
			rooms         REAL NOT NULL,
			floor         INTEGER NOT NULL,
			area_sqm      REAL NOT NULL,
			price_shekels INTEGER NOT NULL,
			price_per_sqm REAL,
			url           TEXT
		)`, sw.table))
	return err
}

// Write replaces the table contents with listings in one transaction.
func (sw *SQLiteWriter) Write(listings []*models.Listing) error {
	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM " + sw.table); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}

	ph := strings.TrimRight(strings.Repeat("?,", len(loadColumns)), ",")
	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		sw.table, strings.Join(loadColumns, ", "), ph))
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range listings {
		if _, err := stmt.Exec(loadValues(l)...); err != nil {
			return fmt.Errorf("sqlite: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Count returns the number of rows currently stored.
func (sw *SQLiteWriter) Count() (int, error) {
	var n int
	if err := sw.db.QueryRow("SELECT COUNT(*) FROM " + sw.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (sw *SQLiteWriter) Close() error {
	return sw.db.Close()
}
