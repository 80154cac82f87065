package adapter

import (
	"fmt"
	"sync"
)

// Constructor builds a new, unconnected adapter instance.
type Constructor func() Adapter

// Registry manages the registration and construction of backend adapters.
type Registry struct {
	constructors map[BackendType]Constructor
	mu           sync.RWMutex
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[BackendType]Constructor),
	}
}

// Register registers a constructor for a backend type. A constructor already
// registered for the same type is replaced.
func (r *Registry) Register(backend BackendType, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[backend] = ctor
}

// New constructs a fresh, unconnected adapter for the backend type.
func (r *Registry) New(backend BackendType) (Adapter, error) {
	r.mu.RLock()
	ctor, exists := r.constructors[backend]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: no adapter registered for backend %q", ErrConfigInvalid, backend)
	}
	return ctor(), nil
}

// IsRegistered checks if a constructor is registered for the backend type.
func (r *Registry) IsRegistered(backend BackendType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.constructors[backend]
	return exists
}

// ListRegistered returns every registered backend type.
func (r *Registry) ListRegistered() []BackendType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]BackendType, 0, len(r.constructors))
	for backend := range r.constructors {
		types = append(types, backend)
	}
	return types
}

// globalRegistry is the default registry backend packages register into from
// their init() functions.
var globalRegistry = NewRegistry()

// Register registers a constructor in the global registry.
func Register(backend BackendType, ctor Constructor) {
	globalRegistry.Register(backend, ctor)
}

// New constructs an adapter from the global registry.
func New(backend BackendType) (Adapter, error) {
	return globalRegistry.New(backend)
}

// IsRegistered checks the global registry for a backend type.
func IsRegistered(backend BackendType) bool {
	return globalRegistry.IsRegistered(backend)
}

// GlobalRegistry returns the global adapter registry.
func GlobalRegistry() *Registry {
	return globalRegistry
}
