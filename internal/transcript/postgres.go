package transcript

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on Open. The table is intentionally minimal: one row per
// finalized entry, keyed by session.
const schema = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id         BIGSERIAL PRIMARY KEY,
    session_id TEXT        NOT NULL,
    speaker    TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    timestamp  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transcript_entries_session_idx
    ON transcript_entries (session_id, timestamp);
`

// Store is the optional persistent conversation log backed by PostgreSQL.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript store: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// WriteEntry appends one finalized entry under sessionID.
func (s *Store) WriteEntry(ctx context.Context, sessionID string, e Entry) error {
	const q = `
		INSERT INTO transcript_entries (session_id, speaker, text, timestamp)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, sessionID, string(e.Speaker), e.Text, e.Timestamp); err != nil {
		return fmt.Errorf("transcript store: write entry: %w", err)
	}
	return nil
}

// Session returns all entries for sessionID in chronological order.
func (s *Store) Session(ctx context.Context, sessionID string) ([]Entry, error) {
	const q = `
		SELECT speaker, text, timestamp
		FROM   transcript_entries
		WHERE  session_id = $1
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcript store: query session: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e       Entry
			speaker string
			ts      time.Time
		)
		if err := row.Scan(&speaker, &e.Text, &ts); err != nil {
			return Entry{}, err
		}
		e.Speaker = Speaker(speaker)
		e.Timestamp = ts
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	return entries, nil
}

// Ping verifies database connectivity; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
