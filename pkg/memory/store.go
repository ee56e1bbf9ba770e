// Package memory defines persistent conversation storage for the assistant.
//
// A [Thread] collects the turns of one conversation; [ThreadStore] is the
// storage contract. The interface is public so external packages can supply
// alternative backends (Postgres, in-memory, …).
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrThreadNotFound is returned when the requested thread does not exist.
var ErrThreadNotFound = errors.New("thread not found")

// SearchOpts configures a keyword search over persisted turns. All non-zero
// fields are applied as AND conditions.
type SearchOpts struct {
	// ThreadID restricts the search to a single thread. An empty string
	// searches across all threads.
	ThreadID string

	// ClientID restricts the search to threads of one client.
	ClientID string

	// Role restricts results to user or assistant turns.
	Role Role

	// After filters turns recorded after this instant (exclusive). A zero
	// Time disables the lower bound.
	After time.Time

	// Before filters turns recorded before this instant (exclusive).
	Before time.Time

	// Limit caps the number of results. 0 lets the implementation apply
	// its own default.
	Limit int
}

// ThreadStore persists conversation threads and their turns.
type ThreadStore interface {
	// CreateThread opens a new thread for clientID and returns it.
	CreateThread(ctx context.Context, clientID string) (*Thread, error)

	// GetThread fetches a thread by ID. Returns ErrThreadNotFound if it
	// does not exist.
	GetThread(ctx context.Context, threadID string) (*Thread, error)

	// AppendTurn appends a turn to its thread and bumps the thread's
	// UpdatedAt. Returns ErrThreadNotFound for unknown threads.
	AppendTurn(ctx context.Context, turn TurnRecord) error

	// RecentTurns returns the turns of threadID recorded within the given
	// window, ordered chronologically (oldest first).
	RecentTurns(ctx context.Context, threadID string, window time.Duration) ([]TurnRecord, error)

	// SearchTurns performs a full-text search over turn text.
	SearchTurns(ctx context.Context, query string, opts SearchOpts) ([]TurnRecord, error)

	// ArchiveThread marks a thread archived. Archiving an already-archived
	// thread is a no-op.
	ArchiveThread(ctx context.Context, threadID string) error

	// Close releases the store's resources.
	Close() error
}
