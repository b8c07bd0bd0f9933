package policy

import (
	"fmt"

	"content-graphql/internal/action"
)

type stage struct {
	name string
	fn   Func
}

// Pipeline is the ordered policy chain of one operation: the global policy,
// the authorizer (when registered), then declared policies in declaration order.
type Pipeline struct {
	stages []stage
}

// Build resolves the pipeline of an operation routed to route. Unknown
// declared policies fail the build.
func Build(registry *Registry, route action.Route, declared []string) (*Pipeline, error) {
	registry.mu.RLock()
	global, authorizer := registry.global, registry.authorizer
	registry.mu.RUnlock()

	p := &Pipeline{}
	if global != nil {
		fn, err := global(route)
		if err != nil {
			return nil, fmt.Errorf("global policy: %w", err)
		}
		p.stages = append(p.stages, stage{name: "global", fn: fn})
	}
	if authorizer != nil {
		fn, err := authorizer(route)
		if err != nil {
			return nil, fmt.Errorf("authorizer: %w", err)
		}
		p.stages = append(p.stages, stage{name: "authorizer", fn: fn})
	}
	for _, name := range declared {
		fn, err := registry.Resolve(name, route)
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, stage{name: name, fn: fn})
	}
	return p, nil
}

// Run executes the stages in order. It stops at the first stage that returns
// an error or halts the context; a halt is not an error.
func (p *Pipeline) Run(c *action.Context) error {
	for _, s := range p.stages {
		if err := s.fn(c); err != nil {
			return err
		}
		if _, halted := c.Halted(); halted {
			return nil
		}
	}
	return nil
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.name)
	}
	return names
}
