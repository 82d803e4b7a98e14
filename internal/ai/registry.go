package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context) (Provider, error)

// Registry builds providers by name. Built providers are cached, so every
// session shares one client per provider.
type Registry struct {
	mu        sync.Mutex
	factories map[string]ProviderFactory
	built     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		built:     make(map[string]Provider),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.built, name)
}

func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	name = normalize(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.built[name]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	p, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("init ai provider %s: %w", name, err)
	}
	r.built[name] = p
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
