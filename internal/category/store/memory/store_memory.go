package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"expenseflow/internal/category"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu         sync.RWMutex
	categories map[id.CategoryID]*category.Category
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{categories: make(map[id.CategoryID]*category.Category)}
}

func (s *InMemoryStore) Create(_ context.Context, cat *category.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categories[cat.ID]; exists {
		return fmt.Errorf("category %s: %w", cat.ID, sentinel.ErrConflict)
	}
	copied := *cat
	s.categories[cat.ID] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, categoryID id.CategoryID) (*category.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categories[categoryID]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", categoryID, sentinel.ErrNotFound)
	}
	copied := *cat
	return &copied, nil
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]*category.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var categories []*category.Category
	for _, cat := range s.categories {
		if cat.Active {
			copied := *cat
			categories = append(categories, &copied)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *InMemoryStore) SetActive(_ context.Context, categoryID id.CategoryID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.categories[categoryID]
	if !ok {
		return fmt.Errorf("category %s: %w", categoryID, sentinel.ErrNotFound)
	}
	cat.Active = active
	return nil
}
