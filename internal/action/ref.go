// Package action defines controller action references, the action registry and
// the per-call context handed to policies and action handlers.
package action

import (
	"fmt"
	"strings"
)

const (
	// ScopeApplication is the scope of application (non-plugin) controllers.
	ScopeApplication = "application"
	pluginPrefix     = "plugin::"
	applicationUID   = "application::"
)

// Ref identifies a controller action: `plugin::upload.file.find` or `application::article.find`.
type Ref struct {
	Scope      string
	Controller string
	Action     string
}

// ParseRef parses an action path. Paths without a scope prefix (`article.find`,
// `Article.find`) belong to plugin when it is set, otherwise to the application.
func ParseRef(path, plugin string) (Ref, error) {
	raw := strings.TrimSpace(path)
	scope := ScopeApplication
	if plugin != "" {
		scope = pluginPrefix + plugin
	}

	switch {
	case strings.HasPrefix(raw, pluginPrefix):
		rest := strings.TrimPrefix(raw, pluginPrefix)
		parts := strings.Split(rest, ".")
		if len(parts) != 3 {
			return Ref{}, fmt.Errorf("invalid action path %q: expected plugin::<plugin>.<controller>.<action>", path)
		}
		scope = pluginPrefix + parts[0]
		raw = parts[1] + "." + parts[2]
	case strings.HasPrefix(raw, applicationUID):
		scope = ScopeApplication
		raw = strings.TrimPrefix(raw, applicationUID)
	case strings.Contains(raw, "::"):
		return Ref{}, fmt.Errorf("invalid action path %q: unknown scope", path)
	}

	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, fmt.Errorf("invalid action path %q: expected <controller>.<action>", path)
	}
	return Ref{Scope: scope, Controller: strings.ToLower(parts[0]), Action: parts[1]}, nil
}

// ModelRef returns the ref of a content-model controller action. scope is the
// model scope: "application" or "plugin::<id>".
func ModelRef(scope, model, act string) Ref {
	return Ref{Scope: scope, Controller: strings.ToLower(model), Action: act}
}

// MustParseRef is ParseRef for static paths. It panics on error.
func MustParseRef(path, plugin string) Ref {
	ref, err := ParseRef(path, plugin)
	if err != nil {
		panic(err)
	}
	return ref
}

// Plugin returns the plugin id of a plugin-scoped ref, or "".
func (r Ref) Plugin() string {
	if plugin, ok := strings.CutPrefix(r.Scope, pluginPrefix); ok {
		return plugin
	}
	return ""
}

// IsZero reports whether r is unset.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// String renders the canonical path.
func (r Ref) String() string {
	if r.Scope == ScopeApplication || r.Scope == "" {
		return applicationUID + r.Controller + "." + r.Action
	}
	return r.Scope + "." + r.Controller + "." + r.Action
}

// Route returns the route a call of this action runs under.
func (r Ref) Route() Route {
	return Route{Controller: r.Controller, Action: r.Action, Plugin: r.Plugin()}
}

// Route names the controller action a call is routed to.
type Route struct {
	Controller string
	Action     string
	Plugin     string
}
