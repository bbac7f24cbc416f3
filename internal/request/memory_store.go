package request

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*GenerationRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*GenerationRequest)}
}

func (s *MemoryStore) Create(ctx context.Context, req *GenerationRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = StatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *MemoryStore) MarkStarted(ctx context.Context, id string) error {
	return s.transition(id, func(r *GenerationRequest) {
		r.Status = StatusStarted
	})
}

func (s *MemoryStore) MarkSuccess(ctx context.Context, id string, latencyMs int64, usedTokens int, resultRef string) error {
	return s.transition(id, func(r *GenerationRequest) {
		r.Status = StatusSuccess
		r.LatencyMs = latencyMs
		r.UsedTokens = usedTokens
		r.ResultRef = resultRef
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, errorCode, errorMessage string) error {
	return s.transition(id, func(r *GenerationRequest) {
		r.Status = StatusFailed
		r.ErrorCode = errorCode
		r.ErrorMessage = errorMessage
	})
}

func (s *MemoryStore) transition(id string, apply func(*GenerationRequest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status.Terminal() {
		return ErrTerminal
	}
	apply(r)
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*GenerationRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*GenerationRequest
	for _, r := range s.requests {
		if r.TenantID != tenantID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
