package mvc

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a fresh controller for one request.
type Factory func() Controller

// Registry maps action names to controller factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds an action. Registering a name twice is an error.
func (r *Registry) Register(action string, f Factory) error {
	if action == "" || f == nil {
		return fmt.Errorf("register action %q: name and factory are required", action)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[action]; exists {
		return fmt.Errorf("action %q already registered", action)
	}
	r.factories[action] = f
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(action string, f Factory) {
	if err := r.Register(action, f); err != nil {
		panic(err)
	}
}

// New returns a new controller for action.
func (r *Registry) New(action string) (Controller, bool) {
	r.mu.RLock()
	f, ok := r.factories[action]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Actions returns the registered action names in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
