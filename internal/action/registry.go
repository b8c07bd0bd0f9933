package action

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownAction is returned when an action path resolves to no handler.
var ErrUnknownAction = errors.New("unknown action")

// Handler executes a controller action. A handler may return its result or
// write it with Context.SetBody; an explicitly set body takes precedence.
type Handler func(*Context) (any, error)

// Registry maps action refs to handlers. Handlers are registered at boot and
// looked up while the schema is compiled.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Ref]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Ref]Handler)}
}

// Register adds a handler, replacing any existing one for the same ref.
func (r *Registry) Register(ref Ref, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ref] = h
}

// Lookup returns the handler of ref.
func (r *Registry) Lookup(ref Ref) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[ref]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownAction, ref)
	}
	return h, nil
}

// Exists reports whether ref has a handler.
func (r *Registry) Exists(ref Ref) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[ref]
	return ok
}

// Refs returns every registered ref.
func (r *Registry) Refs() []Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ref, 0, len(r.handlers))
	for ref := range r.handlers {
		out = append(out, ref)
	}
	return out
}
