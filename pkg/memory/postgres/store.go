// Package postgres provides a PostgreSQL-backed implementation of
// [memory.ThreadStore].
//
// All operations share a single [pgxpool.Pool]. [Migrate] installs the
// required tables and indexes via CREATE TABLE IF NOT EXISTS, so the store
// can be pointed at an empty database.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	thread, _ := store.CreateThread(ctx, clientID)
//	_ = store.AppendTurn(ctx, memory.TurnRecord{ThreadID: thread.ID, …})
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/recall/pkg/memory"
)

const ddlThreads = `
CREATE TABLE IF NOT EXISTS threads (
    id         TEXT         PRIMARY KEY,
    client_id  TEXT         NOT NULL,
    archived   BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_threads_client_id
    ON threads (client_id);
`

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id          BIGSERIAL    PRIMARY KEY,
    thread_id   TEXT         NOT NULL REFERENCES threads (id),
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    intent      TEXT         NOT NULL DEFAULT '',
    candidates  JSONB        NOT NULL DEFAULT '[]',
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    duration_ns BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_turns_thread_timestamp
    ON turns (thread_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_turns_fts
    ON turns USING GIN (to_tsvector('english', text));
`

// Store implements [memory.ThreadStore] on PostgreSQL.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ memory.ThreadStore = (*Store)(nil)

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("thread store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("thread store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("thread store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("thread store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the threads and turns tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlThreads, ddlTurns} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Ping reports whether the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateThread implements [memory.ThreadStore].
func (s *Store) CreateThread(ctx context.Context, clientID string) (*memory.Thread, error) {
	const q = `
		INSERT INTO threads (id, client_id)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`

	t := &memory.Thread{
		ID:       uuid.NewString(),
		ClientID: clientID,
	}
	if err := s.pool.QueryRow(ctx, q, t.ID, clientID).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("thread store: create thread: %w", err)
	}
	return t, nil
}

// GetThread implements [memory.ThreadStore].
func (s *Store) GetThread(ctx context.Context, threadID string) (*memory.Thread, error) {
	const q = `
		SELECT id, client_id, archived, created_at, updated_at
		FROM   threads
		WHERE  id = $1`

	var t memory.Thread
	err := s.pool.QueryRow(ctx, q, threadID).Scan(&t.ID, &t.ClientID, &t.Archived, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("thread store: get thread: %w", err)
	}
	return &t, nil
}

// AppendTurn implements [memory.ThreadStore].
func (s *Store) AppendTurn(ctx context.Context, turn memory.TurnRecord) error {
	candidates, err := json.Marshal(turn.Candidates)
	if err != nil {
		return fmt.Errorf("thread store: encode candidates: %w", err)
	}
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("thread store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO turns (thread_id, role, text, intent, candidates, timestamp, duration_ns)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	if _, err := tx.Exec(ctx, insert,
		turn.ThreadID, string(turn.Role), turn.Text, turn.Intent,
		candidates, ts, turn.Duration.Nanoseconds(),
	); err != nil {
		return fmt.Errorf("thread store: append turn: %w", err)
	}

	const bump = `UPDATE threads SET updated_at = now() WHERE id = $1`
	tag, err := tx.Exec(ctx, bump, turn.ThreadID)
	if err != nil {
		return fmt.Errorf("thread store: bump thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrThreadNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("thread store: commit: %w", err)
	}
	return nil
}

// RecentTurns implements [memory.ThreadStore].
func (s *Store) RecentTurns(ctx context.Context, threadID string, window time.Duration) ([]memory.TurnRecord, error) {
	const q = `
		SELECT thread_id, role, text, intent, candidates, timestamp, duration_ns
		FROM   turns
		WHERE  thread_id = $1
		  AND  timestamp >= now() - ($2::bigint * interval '1 microsecond')
		ORDER  BY timestamp`

	rows, err := s.pool.Query(ctx, q, threadID, window.Microseconds())
	if err != nil {
		return nil, fmt.Errorf("thread store: recent turns: %w", err)
	}
	return collectTurns(rows)
}

// SearchTurns implements [memory.ThreadStore]. The query is passed to
// plainto_tsquery so no special operator syntax is required.
func (s *Store) SearchTurns(ctx context.Context, query string, opts memory.SearchOpts) ([]memory.TurnRecord, error) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', t.text) @@ plainto_tsquery('english', $1)",
	}
	if opts.ThreadID != "" {
		conditions = append(conditions, "t.thread_id = "+next(opts.ThreadID))
	}
	if opts.ClientID != "" {
		conditions = append(conditions, "th.client_id = "+next(opts.ClientID))
	}
	if opts.Role != "" {
		conditions = append(conditions, "t.role = "+next(string(opts.Role)))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "t.timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "t.timestamp < "+next(opts.Before))
	}

	q := "SELECT t.thread_id, t.role, t.text, t.intent, t.candidates, t.timestamp, t.duration_ns\n" +
		"FROM   turns t\n" +
		"JOIN   threads th ON th.id = t.thread_id\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY t.timestamp"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("thread store: search turns: %w", err)
	}
	return collectTurns(rows)
}

// ArchiveThread implements [memory.ThreadStore].
func (s *Store) ArchiveThread(ctx context.Context, threadID string) error {
	const q = `UPDATE threads SET archived = TRUE, updated_at = now() WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, threadID)
	if err != nil {
		return fmt.Errorf("thread store: archive thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrThreadNotFound
	}
	return nil
}

// Close implements [memory.ThreadStore].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// collectTurns scans pgx rows into a slice of TurnRecord values.
func collectTurns(rows pgx.Rows) ([]memory.TurnRecord, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.TurnRecord, error) {
		var (
			t          memory.TurnRecord
			role       string
			candidates []byte
			durationNS int64
		)
		if err := row.Scan(&t.ThreadID, &role, &t.Text, &t.Intent, &candidates, &t.Timestamp, &durationNS); err != nil {
			return memory.TurnRecord{}, err
		}
		if err := json.Unmarshal(candidates, &t.Candidates); err != nil {
			return memory.TurnRecord{}, fmt.Errorf("decode candidates: %w", err)
		}
		t.Role = memory.Role(role)
		t.Duration = time.Duration(durationNS)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("thread store: scan rows: %w", err)
	}
	if turns == nil {
		turns = []memory.TurnRecord{}
	}
	return turns, nil
}
