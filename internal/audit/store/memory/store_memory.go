package memory

import (
	"context"
	"sync"

	"expenseflow/internal/audit"
)

// InMemoryStore keeps chain entries in append order. Used by unit tests and
// local development.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Seq = int64(len(s.entries) + 1)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) Tail(_ context.Context) (*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.entries[len(s.entries)-1], nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*audit.Entry{}, s.entries...), nil
}

// Tamper overwrites a stored entry in place. Only for tests that need to
// simulate retroactive edits.
func (s *InMemoryStore) Tamper(seq int64, mutate func(*audit.Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.Seq == seq {
			mutate(entry)
			return
		}
	}
}
