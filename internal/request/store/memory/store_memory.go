package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"expenseflow/internal/request/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
)

// InMemoryStore keeps requests and their action rows under one lock. Update
// performs the same optimistic version check the postgres store expresses as
// a conditional UPDATE, so concurrent transition tests behave identically
// against either backend.
type InMemoryStore struct {
	mu        sync.RWMutex
	requests  map[id.RequestID]*models.ExpenseRequest
	actions   map[id.RequestID][]*models.ApprovalAction
	sequences map[int]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests:  make(map[id.RequestID]*models.ExpenseRequest),
		actions:   make(map[id.RequestID][]*models.ApprovalAction),
		sequences: make(map[int]int64),
	}
}

func (s *InMemoryStore) Create(_ context.Context, request *models.ExpenseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[request.ID]; exists {
		return fmt.Errorf("request %s: %w", request.ID, sentinel.ErrConflict)
	}
	copied := *request
	s.requests[request.ID] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, requestID id.RequestID) (*models.ExpenseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	copied := *request
	return &copied, nil
}

// Update persists the request iff the stored version matches the version the
// caller read; the caller's copy gets the incremented version on success.
func (s *InMemoryStore) Update(_ context.Context, request *models.ExpenseRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[request.ID]
	if !ok {
		return fmt.Errorf("request %s: %w", request.ID, sentinel.ErrNotFound)
	}
	if stored.Version != request.Version {
		return fmt.Errorf("request %s version %d: %w", request.ID, request.Version, sentinel.ErrConflict)
	}
	request.Version++
	copied := *request
	s.requests[request.ID] = &copied
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, requestID id.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[requestID]; !ok {
		return fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	delete(s.requests, requestID)
	delete(s.actions, requestID)
	return nil
}

func (s *InMemoryStore) ListByEmployee(_ context.Context, employeeID id.EmployeeID) ([]*models.ExpenseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var requests []*models.ExpenseRequest
	for _, request := range s.requests {
		if request.EmployeeID == employeeID {
			copied := *request
			requests = append(requests, &copied)
		}
	}
	sortRequests(requests)
	return requests, nil
}

func (s *InMemoryStore) ListAll(_ context.Context) ([]*models.ExpenseRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var requests []*models.ExpenseRequest
	for _, request := range s.requests {
		copied := *request
		requests = append(requests, &copied)
	}
	sortRequests(requests)
	return requests, nil
}

func (s *InMemoryStore) NextSequence(_ context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[year]++
	return s.sequences[year], nil
}

func (s *InMemoryStore) AppendAction(_ context.Context, action *models.ApprovalAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *action
	s.actions[action.RequestID] = append(s.actions[action.RequestID], &copied)
	return nil
}

func (s *InMemoryStore) ListActions(_ context.Context, requestID id.RequestID) ([]*models.ApprovalAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actions := make([]*models.ApprovalAction, 0, len(s.actions[requestID]))
	for _, action := range s.actions[requestID] {
		copied := *action
		actions = append(actions, &copied)
	}
	return actions, nil
}

func sortRequests(requests []*models.ExpenseRequest) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].CreatedAt.Before(requests[j].CreatedAt)
	})
}
