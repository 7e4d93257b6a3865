package memory

import (
	"context"
	"fmt"
	"sync"

	"expenseflow/internal/directory"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	employees map[id.EmployeeID]*directory.Employee
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{employees: make(map[id.EmployeeID]*directory.Employee)}
}

func (s *InMemoryStore) Put(_ context.Context, employee *directory.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *employee
	s.employees[employee.ID] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, employeeID id.EmployeeID) (*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	employee, ok := s.employees[employeeID]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", employeeID, sentinel.ErrNotFound)
	}
	copied := *employee
	return &copied, nil
}

func (s *InMemoryStore) ListActive(_ context.Context) ([]*directory.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var employees []*directory.Employee
	for _, employee := range s.employees {
		if employee.Active {
			copied := *employee
			employees = append(employees, &copied)
		}
	}
	return employees, nil
}
