package ai

import (
	"fmt"
	"sync"

	"github.com/suPer8Hu/comet/internal/session"
)

type Registry struct {
	mu         sync.RWMutex
	completers map[session.Provider]Completer
}

func NewRegistry() *Registry {
	return &Registry{completers: make(map[session.Provider]Completer)}
}

func (r *Registry) Register(p session.Provider, c Completer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completers[p] = c
}

func (r *Registry) Get(p session.Provider) (Completer, error) {
	r.mu.RLock()
	c, ok := r.completers[p]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", p)
	}
	return c, nil
}
