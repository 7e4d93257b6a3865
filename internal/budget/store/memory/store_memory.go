package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"expenseflow/internal/budget"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

type key struct {
	employeeID id.EmployeeID
	categoryID id.CategoryID
	year       int
}

// InMemoryStore keeps allocation rows under a single lock so AddSpend is a
// read-modify-write atomic unit, mirroring the conditional UPDATE the
// postgres store issues.
type InMemoryStore struct {
	mu   sync.RWMutex
	rows map[key]*budget.Allocation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rows: make(map[key]*budget.Allocation)}
}

func (s *InMemoryStore) Get(_ context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int) (*budget.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[key{employeeID, categoryID, year}]
	if !ok {
		return nil, fmt.Errorf("allocation %s/%s/%d: %w", employeeID, categoryID, year, sentinel.ErrNotFound)
	}
	copied := *row
	return &copied, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, allocation *budget.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{allocation.EmployeeID, allocation.CategoryID, allocation.Year}
	if existing, ok := s.rows[k]; ok {
		existing.Allocated = allocation.Allocated
		return nil
	}
	copied := *allocation
	s.rows[k] = &copied
	return nil
}

func (s *InMemoryStore) AddSpend(_ context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[key{employeeID, categoryID, year}]
	if !ok {
		return fmt.Errorf("allocation %s/%s/%d: %w", employeeID, categoryID, year, sentinel.ErrNotFound)
	}
	next := row.Spent.Add(amount)
	if next.GreaterThan(row.Allocated) {
		return fmt.Errorf("spend %s exceeds allocation: %w", amount, sentinel.ErrInvalidState)
	}
	row.Spent = next
	return nil
}

func (s *InMemoryStore) ListByEmployee(_ context.Context, employeeID id.EmployeeID, year int) ([]*budget.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*budget.Allocation
	for k, row := range s.rows {
		if k.employeeID == employeeID && k.year == year {
			copied := *row
			rows = append(rows, &copied)
		}
	}
	return rows, nil
}
