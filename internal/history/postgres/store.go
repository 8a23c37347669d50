// Package postgres persists translation history in PostgreSQL.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	_ = store.Add(ctx, entry)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/polyglot/internal/history"
)

const ddlHistory = `
CREATE TABLE IF NOT EXISTS translation_history (
    id              BIGSERIAL    PRIMARY KEY,
    run_id          TEXT         NOT NULL,
    session_id      TEXT         NOT NULL DEFAULT '',
    room            TEXT         NOT NULL DEFAULT '',
    original_text   TEXT         NOT NULL,
    translated_text TEXT         NOT NULL,
    from_language   TEXT         NOT NULL DEFAULT '',
    to_language     TEXT         NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_translation_history_created_at
    ON translation_history (created_at DESC);

CREATE INDEX IF NOT EXISTS idx_translation_history_session
    ON translation_history (session_id, created_at);
`

var _ history.Store = (*Store)(nil)

// Store implements [history.Store] on a translation_history table. All
// methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: connect: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the history table and its indexes. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlHistory); err != nil {
		return fmt.Errorf("history store: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks database connectivity. It satisfies the readiness checker
// signature used by the health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("history store: ping: %w", err)
	}
	return nil
}

// Add inserts e. Synthesized audio is not stored.
func (s *Store) Add(ctx context.Context, e history.Entry) error {
	const q = `
		INSERT INTO translation_history
		    (run_id, session_id, room, original_text, translated_text,
		     from_language, to_language, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		e.ID,
		e.SessionID,
		e.Room,
		e.OriginalText,
		e.TranslatedText,
		e.FromLanguage,
		e.ToLanguage,
		e.Confidence,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("history store: add: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]history.Entry, error) {
	q := `
		SELECT run_id, session_id, room, original_text, translated_text,
		       from_language, to_language, confidence, created_at
		FROM   translation_history
		ORDER  BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += "\nLIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var e history.Entry
		err := row.Scan(
			&e.ID,
			&e.SessionID,
			&e.Room,
			&e.OriginalText,
			&e.TranslatedText,
			&e.FromLanguage,
			&e.ToLanguage,
			&e.Confidence,
			&e.Timestamp,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan: %w", err)
	}
	return entries, nil
}

// Clear deletes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE translation_history"); err != nil {
		return fmt.Errorf("history store: clear: %w", err)
	}
	return nil
}
