package engine

import (
	"fmt"
	"sort"

	"github.com/herdctl/herd/internal/domain"
	"github.com/herdctl/herd/internal/infra/proc"
)

// Registry holds the supported engines keyed by name.
type Registry struct {
	engines map[string]domain.Engine
}

// NewRegistry creates a registry with the built-in engines.
func NewRegistry(runner proc.Runner) *Registry {
	return &Registry{
		engines: map[string]domain.Engine{
			"claude": NewClaude(runner),
			"codex":  NewCodex(runner),
		},
	}
}

// Get returns the engine registered under name.
func (r *Registry) Get(name string) (domain.Engine, error) {
	eng, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("engine %q: %w", name, domain.ErrEngineNotFound)
	}
	return eng, nil
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
