package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Factory builds a Provider bound to one model. The server resolves its
// three roles (reply, classifier, generator) through factories so each
// role can run a different model on the same backend.
type Factory func(ctx context.Context, model string) (Provider, error)

// Registry maps backend names ("openrouter", test fakes) to factories.
// Names are case-insensitive.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Factory)}
}

func (r *Registry) Register(backend string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[normalizeBackend(backend)] = f
}

// Get builds a provider for model on the named backend.
func (r *Registry) Get(ctx context.Context, backend, model string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.backends[normalizeBackend(backend)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai backend %q", backend)
	}
	return f(ctx, model)
}

func normalizeBackend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
