package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore backs dev-mode runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*APIKey // by key hash
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*APIKey)}
}

func (s *MemoryStore) GetByKey(ctx context.Context, key string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[HashKey(key)]
	if !ok || !k.Active {
		return nil, ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (s *MemoryStore) Create(ctx context.Context, apiKey *APIKey) error {
	if apiKey.ID == "" {
		apiKey.ID = uuid.New().String()
	}
	apiKey.CreatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *apiKey
	s.keys[apiKey.KeyHash] = &cp
	return nil
}

func (s *MemoryStore) Revoke(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		if k.ID == keyID {
			k.Active = false
			return nil
		}
	}
	return ErrKeyNotFound
}
