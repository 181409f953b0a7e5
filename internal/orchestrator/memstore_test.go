package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/repo"
)

// memStore — хранилище в памяти для тестов конвейера.
type memStore struct {
	mu sync.Mutex

	nextID   int64
	requests map[string]*domain.Request
	steps    map[int64][]domain.Step
	params   map[int64][]domain.StepParameter
	results  map[int64][]domain.StepResult

	// insertErr возвращается из InsertStepResult, если задан.
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[string]*domain.Request),
		steps:    make(map[int64][]domain.Step),
		params:   make(map[int64][]domain.StepParameter),
		results:  make(map[int64][]domain.StepResult),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

// addRequest создаёт запрос с шагами. Шаги получают Order по порядку.
func (s *memStore) addRequest(protocol string, status domain.RequestStatus, steps ...domain.Step) *domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := time.Now().Add(-time.Hour)
	req := &domain.Request{
		ID:        s.id(),
		Protocol:  protocol,
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
	s.requests[protocol] = req

	for i, step := range steps {
		step.ID = s.id()
		step.RequestID = req.ID
		if step.Order == 0 {
			step.Order = i + 1
		}
		s.steps[req.ID] = append(s.steps[req.ID], step)
	}

	return req
}

func (s *memStore) addParam(stepID int64, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params[stepID] = append(s.params[stepID], domain.StepParameter{
		ID: s.id(), StepID: stepID, Name: name, Value: value,
	})
}

func (s *memStore) addResult(requestID int64, order int, result domain.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[requestID] = append(s.results[requestID], domain.StepResult{
		ID: s.id(), RequestID: requestID, Order: order, Result: result,
	})
}

func (s *memStore) request(protocol string) domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[protocol]
}

func (s *memStore) stepList(requestID int64) []domain.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Step(nil), s.steps[requestID]...)
}

func (s *memStore) resultOrders(requestID int64) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []int
	for _, r := range s.results[requestID] {
		orders = append(orders, r.Order)
	}
	return orders
}

func (s *memStore) CreateRequest(_ context.Context, protocol string) (int64, error) {
	return s.addRequest(protocol, domain.RequestStatusCreated).ID, nil
}

func (s *memStore) GetRequestByProtocol(_ context.Context, protocol string) (*domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[protocol]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *memStore) UpdateRequestStatus(_ context.Context, protocol string, update domain.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[protocol]
	if !ok {
		return repo.ErrNotFound
	}
	if !req.Status.CanTransitionTo(update.Status) {
		return fmt.Errorf("%s -> %s: %w", req.Status, update.Status, repo.ErrInvalidState)
	}
	req.Apply(update, time.Now())
	return nil
}

func (s *memStore) ClaimRequest(_ context.Context, protocol string, claim domain.Claim) (*domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[protocol]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if !claim.Allows(req) {
		return nil, fmt.Errorf("claim %s from %s: %w", protocol, req.Status, repo.ErrInvalidState)
	}
	req.Apply(domain.Processing(), time.Now())
	copied := *req
	return &copied, nil
}

func (s *memStore) TouchRequest(_ context.Context, protocol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[protocol]
	if !ok {
		return repo.ErrNotFound
	}
	if req.Status != domain.RequestStatusProcessing {
		return repo.ErrInvalidState
	}
	req.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) GetStepsByRequest(_ context.Context, requestID int64) ([]domain.Step, error) {
	steps := s.stepList(requestID)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps, nil
}

func (s *memStore) GetParametersByStep(_ context.Context, stepID int64) ([]domain.StepParameter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StepParameter(nil), s.params[stepID]...), nil
}

func (s *memStore) InsertStepResult(_ context.Context, requestID, stepID int64, order int, result domain.Value) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[requestID] = append(s.results[requestID], domain.StepResult{
		ID: s.id(), RequestID: requestID, StepID: stepID, Order: order, Result: result,
	})
	return nil
}

func (s *memStore) GetLastStepResult(_ context.Context, requestID int64) (*domain.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *domain.StepResult
	for i := range s.results[requestID] {
		r := s.results[requestID][i]
		if last == nil || r.Order > last.Order {
			last = &r
		}
	}
	if last == nil {
		return nil, repo.ErrNotFound
	}
	return last, nil
}

func (s *memStore) GetAllStepResults(_ context.Context, requestID int64) ([]domain.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := append([]domain.StepResult(nil), s.results[requestID]...)
	sort.Slice(results, func(i, j int) bool { return results[i].Order < results[j].Order })
	return results, nil
}

func (s *memStore) ResetStepResults(_ context.Context, requestID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, requestID)
	return nil
}

func (s *memStore) ListRequestsByStatus(_ context.Context, status domain.RequestStatus, olderThan time.Time, limit int) ([]domain.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Request
	for _, req := range s.requests {
		if req.Status == status && !req.UpdatedAt.After(olderThan) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
