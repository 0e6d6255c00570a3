package runtime

import (
	"fmt"
	"sync"
)

// Registry maps runtime names to implementations.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]Runtime
}

func NewRegistry() *Registry {
	return &Registry{runtimes: make(map[string]Runtime)}
}

func (r *Registry) Register(rt Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtimes[rt.Name()] = rt
}

func (r *Registry) Get(name string) (Runtime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[name]
	if !ok {
		return nil, fmt.Errorf("runtime: unknown runtime %q", name)
	}
	return rt, nil
}

var defaultRegistry = NewRegistry()

// Register adds a runtime to the process-wide registry.
func Register(rt Runtime) { defaultRegistry.Register(rt) }

// Get looks a runtime up in the process-wide registry.
func Get(name string) (Runtime, error) { return defaultRegistry.Get(name) }

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }
