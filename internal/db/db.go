package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open connects to the SQLite history ledger and runs schema migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return conn, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			original_name TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL DEFAULT '',
			text_chars INTEGER NOT NULL DEFAULT 0,
			card_count INTEGER NOT NULL DEFAULT 0,
			generator TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('ok','error')),
			error_kind TEXT NOT NULL DEFAULT '',
			uploaded_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			card_id TEXT NOT NULL,
			difficulty TEXT NOT NULL CHECK(difficulty IN ('easy','medium','hard')),
			mastery_level INTEGER NOT NULL,
			review_count INTEGER NOT NULL,
			scheduled_days INTEGER NOT NULL DEFAULT 0,
			reviewed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_uploaded ON uploads(uploaded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_session ON reviews(session_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("execute %q: %w", stmt, err)
		}
	}
	return nil
}
