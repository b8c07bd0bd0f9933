// Package permissions grants roles access to actions. It plugs into the
// policy pipeline as the authorizer that runs before declared policies.
package permissions

import (
	"context"
	"fmt"
	"path"
	"sort"

	"content-graphql/internal/action"
	"content-graphql/internal/policy"
)

const (
	DefaultPublicRole        = "public"
	DefaultAuthenticatedRole = "authenticated"
)

// Config maps roles to action patterns such as `application::article.find`,
// `application::article.*` or `*`. Patterns use path.Match syntax.
type Config struct {
	PublicRole        string              `mapstructure:"public_role"`
	AuthenticatedRole string              `mapstructure:"authenticated_role"`
	Roles             map[string][]string `mapstructure:"roles"`
}

// Enabled reports whether any role is configured. Without roles every action
// is open and no authorizer is installed.
func (c Config) Enabled() bool {
	return len(c.Roles) > 0
}

// Recorder receives denied calls.
type Recorder interface {
	RecordPermissionDenied(ctx context.Context, actionRef, role string)
}

// Permissions is the compiled form of Config.
type Permissions struct {
	publicRole string
	authRole   string
	grants     map[string][]string
	metrics    Recorder
}

// New validates cfg.
func New(cfg Config, metrics Recorder) (*Permissions, error) {
	p := &Permissions{
		publicRole: cfg.PublicRole,
		authRole:   cfg.AuthenticatedRole,
		grants:     make(map[string][]string, len(cfg.Roles)),
		metrics:    metrics,
	}
	if p.publicRole == "" {
		p.publicRole = DefaultPublicRole
	}
	if p.authRole == "" {
		p.authRole = DefaultAuthenticatedRole
	}
	for role, patterns := range cfg.Roles {
		for _, pattern := range patterns {
			if _, err := path.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("role %q: pattern %q: %w", role, pattern, err)
			}
		}
		p.grants[role] = append([]string(nil), patterns...)
	}
	return p, nil
}

// Roles returns the configured role names, sorted.
func (p *Permissions) Roles() []string {
	roles := make([]string, 0, len(p.grants))
	for role := range p.grants {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Allowed reports whether role may call the action at ref.
func (p *Permissions) Allowed(role, ref string) bool {
	for _, pattern := range p.grants[role] {
		if ok, _ := path.Match(pattern, ref); ok {
			return true
		}
	}
	return false
}

// RoleOf returns the role a call runs as: the public role for anonymous
// calls, the user's role, or the authenticated role when the user has none.
func (p *Permissions) RoleOf(user *action.User) string {
	switch {
	case user == nil:
		return p.publicRole
	case user.Role != "":
		return user.Role
	default:
		return p.authRole
	}
}

// Install registers p as the pipeline authorizer. Without roles it installs nothing.
func (p *Permissions) Install(registry *policy.Registry) {
	if len(p.grants) == 0 {
		return
	}
	registry.SetAuthorizer(p.Authorizer)
}

// Authorizer is a policy.Factory. Denied anonymous calls fail with
// ErrUnauthorized and denied authenticated calls with ErrForbidden.
func (p *Permissions) Authorizer(route action.Route) (policy.Func, error) {
	ref := RouteRef(route)
	return func(c *action.Context) error {
		user := c.State.User
		role := p.RoleOf(user)
		if p.Allowed(role, ref) {
			return nil
		}
		if p.metrics != nil {
			p.metrics.RecordPermissionDenied(c.Context(), ref, role)
		}
		if user == nil {
			c.Unauthorized(ref)
			return nil
		}
		c.Forbidden(fmt.Sprintf("role %s cannot call %s", role, ref))
		return nil
	}, nil
}

// RouteRef renders the action path of route.
func RouteRef(route action.Route) string {
	scope := action.ScopeApplication
	if route.Plugin != "" {
		scope = "plugin::" + route.Plugin
	}
	return action.Ref{Scope: scope, Controller: route.Controller, Action: route.Action}.String()
}
