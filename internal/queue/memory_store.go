package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	env       Envelope
	runAt     time.Time
	claimed   bool
	claimedAt time.Time
}

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	visibility time.Duration
}

// NewMemoryStore creates an empty store. A positive visibility re-delivers
// envelopes claimed longer ago than that without an ack.
func NewMemoryStore(visibility time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		visibility: visibility,
	}
}

func (s *MemoryStore) Add(_ context.Context, env *Envelope, runAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[env.ID]; ok {
		return false, nil
	}
	s.entries[env.ID] = &memoryEntry{env: *env, runAt: runAt}
	return true, nil
}

func (s *MemoryStore) Claim(_ context.Context, now time.Time, limit int) ([]*Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.claimed && s.visibility > 0 && !now.Before(e.claimedAt.Add(s.visibility)) {
			e.claimed = false
			e.runAt = now
		}
		if !e.claimed && !e.runAt.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].runAt.Equal(due[j].runAt) {
			return due[i].env.EnqueuedAt.Before(due[j].env.EnqueuedAt)
		}
		return due[i].runAt.Before(due[j].runAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*Envelope, 0, len(due))
	for _, e := range due {
		e.claimed = true
		e.claimedAt = now
		env := e.env
		out = append(out, &env)
	}
	return out, nil
}

func (s *MemoryStore) Reschedule(_ context.Context, env *Envelope, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[env.ID] = &memoryEntry{env: *env, runAt: runAt}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Len(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.entries)), nil
}
