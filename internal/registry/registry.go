package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps tool name to its Tool handle.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New creates an empty tool registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// ErrAlreadyRegistered is returned by Register on a name collision.
type ErrAlreadyRegistered struct {
	Name string
}

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("registry: tool %q already registered", e.Name)
}

// Register adds a tool, failing if its name is already taken.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return &ErrAlreadyRegistered{Name: t.Name()}
	}
	r.tools[t.Name()] = t
	return nil
}

// Get looks up a tool by canonical name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}
