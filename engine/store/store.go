// Package store is the relational source of truth for articles, summaries,
// and embeddings, backed by SQLite. Write paths that make an article visible
// to search are transactional: a reader never observes a ready article
// without its summary and embedding.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL UNIQUE,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	failure_kind TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
	id           TEXT PRIMARY KEY,
	article_id   TEXT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	summary_type TEXT NOT NULL,
	summary_text TEXT NOT NULL,
	key_points   TEXT NOT NULL DEFAULT '[]',
	truncated    INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	UNIQUE (article_id, summary_type)
);

CREATE TABLE IF NOT EXISTS embeddings (
	article_id TEXT PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
	model      TEXT NOT NULL,
	dims       INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_articles_status ON articles (status);
CREATE INDEX IF NOT EXISTS idx_summaries_article ON summaries (article_id);
`

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
	now    func() time.Time // for testing
}

// Open opens (or creates) the database at path, enables WAL, and applies the
// schema. Use ":memory:" for an in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The sqlite3 driver serializes access per connection; a single
	// connection avoids table-lock contention between writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// inTx runs f inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
