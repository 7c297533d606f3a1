package session

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Config)}
}

// clone detaches SystemPrompt so stored configs cannot be changed through a shared pointer.
func clone(cfg Config) Config {
	if cfg.SystemPrompt != nil {
		p := *cfg.SystemPrompt
		cfg.SystemPrompt = &p
	}
	return cfg
}

func (s *MemoryStore) Set(_ context.Context, threadID string, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[threadID] = clone(cfg)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, threadID string) (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.sessions[threadID]
	if !ok {
		return Config{}, missing(threadID)
	}
	return clone(cfg), nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
