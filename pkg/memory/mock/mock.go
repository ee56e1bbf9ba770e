// Package mock provides an in-memory test double for [memory.ThreadStore].
//
// Unlike a pure call recorder, Store is a working in-memory implementation so
// session tests can exercise real persistence semantics; error injection
// fields let individual operations be forced to fail.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/recall/pkg/memory"
)

// Store is an in-memory implementation of memory.ThreadStore.
type Store struct {
	mu      sync.Mutex
	threads map[string]*memory.Thread
	turns   []memory.TurnRecord

	// --- Error injection ---

	// CreateThreadErr, if non-nil, is returned by CreateThread.
	CreateThreadErr error
	// AppendTurnErr, if non-nil, is returned by AppendTurn.
	AppendTurnErr error
	// ArchiveThreadErr, if non-nil, is returned by ArchiveThread.
	ArchiveThreadErr error
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{threads: make(map[string]*memory.Thread)}
}

// Compile-time interface check.
var _ memory.ThreadStore = (*Store)(nil)

// CreateThread implements memory.ThreadStore.
func (s *Store) CreateThread(_ context.Context, clientID string) (*memory.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateThreadErr != nil {
		return nil, s.CreateThreadErr
	}
	now := time.Now()
	t := &memory.Thread{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threads[t.ID] = t
	cp := *t
	return &cp, nil
}

// GetThread implements memory.ThreadStore.
func (s *Store) GetThread(_ context.Context, threadID string) (*memory.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[threadID]
	if !ok {
		return nil, memory.ErrThreadNotFound
	}
	cp := *t
	return &cp, nil
}

// AppendTurn implements memory.ThreadStore.
func (s *Store) AppendTurn(_ context.Context, turn memory.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendTurnErr != nil {
		return s.AppendTurnErr
	}
	t, ok := s.threads[turn.ThreadID]
	if !ok {
		return memory.ErrThreadNotFound
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.turns = append(s.turns, turn)
	t.UpdatedAt = time.Now()
	return nil
}

// RecentTurns implements memory.ThreadStore.
func (s *Store) RecentTurns(_ context.Context, threadID string, window time.Duration) ([]memory.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-window)
	out := []memory.TurnRecord{}
	for _, turn := range s.turns {
		if turn.ThreadID == threadID && turn.Timestamp.After(cutoff) {
			out = append(out, turn)
		}
	}
	sortByTime(out)
	return out, nil
}

// SearchTurns implements memory.ThreadStore with a substring match instead of
// full-text search.
func (s *Store) SearchTurns(_ context.Context, query string, opts memory.SearchOpts) ([]memory.TurnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	query = strings.ToLower(query)
	out := []memory.TurnRecord{}
	for _, turn := range s.turns {
		if !strings.Contains(strings.ToLower(turn.Text), query) {
			continue
		}
		if opts.ThreadID != "" && turn.ThreadID != opts.ThreadID {
			continue
		}
		if opts.ClientID != "" {
			t, ok := s.threads[turn.ThreadID]
			if !ok || t.ClientID != opts.ClientID {
				continue
			}
		}
		if opts.Role != "" && turn.Role != opts.Role {
			continue
		}
		if !opts.After.IsZero() && !turn.Timestamp.After(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !turn.Timestamp.Before(opts.Before) {
			continue
		}
		out = append(out, turn)
	}
	sortByTime(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ArchiveThread implements memory.ThreadStore.
func (s *Store) ArchiveThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ArchiveThreadErr != nil {
		return s.ArchiveThreadErr
	}
	t, ok := s.threads[threadID]
	if !ok {
		return memory.ErrThreadNotFound
	}
	t.Archived = true
	t.UpdatedAt = time.Now()
	return nil
}

// Close implements memory.ThreadStore.
func (s *Store) Close() error { return nil }

// Turns returns a copy of all stored turns. Thread-safe.
func (s *Store) Turns() []memory.TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.TurnRecord, len(s.turns))
	copy(out, s.turns)
	return out
}

func sortByTime(turns []memory.TurnRecord) {
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Timestamp.Before(turns[j].Timestamp)
	})
}
