// Package policy resolves named authorization policies and runs them as an
// ordered, short-circuiting pipeline in front of every generated operation.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"content-graphql/internal/action"
)

// ErrUnknownPolicy is returned when a declared policy name resolves to nothing.
var ErrUnknownPolicy = errors.New("unknown policy")

const (
	ScopeGlobal      = "global"
	ScopeApplication = "application"

	globalPrefix = "global::"
	pluginPrefix = "plugin::"
	appPrefix    = "application::"
)

// Func is one pipeline stage. Returning an error aborts the call with that
// error; calling Context.Halt aborts it with the halt value.
type Func func(*action.Context) error

// Factory builds the stage of a policy for a route. It runs once per operation
// while the schema is compiled.
type Factory func(route action.Route) (Func, error)

// Descriptor declares a policy. Scope is "global", "application" or "plugin::<id>".
type Descriptor struct {
	Name    string
	Scope   string
	Factory Factory
}

// QualifiedName returns the lookup key of the descriptor.
func (d Descriptor) QualifiedName() string {
	switch {
	case d.Scope == ScopeGlobal:
		return globalPrefix + d.Name
	case strings.HasPrefix(d.Scope, pluginPrefix):
		return d.Scope + "." + d.Name
	default:
		return appPrefix + d.Name
	}
}

// Static wraps a route-independent stage as a Factory.
func Static(fn Func) Factory {
	return func(action.Route) (Func, error) { return fn, nil }
}

// Registry holds policy descriptors, the global policy and the optional
// authorizer registered by an authorization subsystem.
type Registry struct {
	mu         sync.RWMutex
	policies   map[string]Descriptor
	global     Factory
	authorizer Factory
}

// NewRegistry returns a registry with the core policies installed.
func NewRegistry() *Registry {
	r := &Registry{
		policies: make(map[string]Descriptor),
		global:   routePolicy,
	}
	r.mustRegister(Descriptor{Name: "isAuthenticated", Scope: ScopeGlobal, Factory: Static(isAuthenticated)})
	return r
}

func (r *Registry) mustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Register adds a policy descriptor.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" || d.Factory == nil {
		return errors.New("policy descriptor needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := d.QualifiedName()
	if _, exists := r.policies[name]; exists {
		return fmt.Errorf("policy %q already registered", name)
	}
	r.policies[name] = d
	return nil
}

// SetGlobal replaces the global policy that opens every pipeline.
func (r *Registry) SetGlobal(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = f
}

// SetAuthorizer registers the blanket permission check that runs after the
// global policy and before every declared policy.
func (r *Registry) SetAuthorizer(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorizer = f
}

// Names returns every registered qualified policy name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the stage of a declared policy name for route. Bare names are
// looked up in the route's scope first and then among global policies.
func (r *Registry) Resolve(name string, route action.Route) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, candidate := range candidates(name, route) {
		if d, ok := r.policies[candidate]; ok {
			fn, err := d.Factory(route)
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", candidate, err)
			}
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownPolicy, name)
}

func candidates(name string, route action.Route) []string {
	if strings.Contains(name, "::") {
		return []string{name}
	}
	scoped := appPrefix + name
	if route.Plugin != "" {
		scoped = pluginPrefix + route.Plugin + "." + name
	}
	return []string{scoped, globalPrefix + name}
}

// routePolicy is the default global policy: it records the route on the call state.
func routePolicy(route action.Route) (Func, error) {
	return func(c *action.Context) error {
		c.State.Route = route
		return nil
	}, nil
}

func isAuthenticated(c *action.Context) error {
	if !c.IsAuthenticated() {
		c.Unauthorized("authentication required")
	}
	return nil
}
