package action

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
)

var (
	// ErrForbidden is the short-circuit error of a denied authenticated call.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized is the short-circuit error of a denied anonymous call.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned by actions when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest is returned by actions when the input is malformed.
	ErrBadRequest = errors.New("bad request")
)

// User is the authenticated principal of a request.
type User struct {
	ID     string
	Role   string
	Claims map[string]any
}

// Environment is the per-request execution environment installed by the
// transport. It is read-only; every resolver call clones a Context from it.
type Environment struct {
	User   *User
	Header http.Header
}

type environmentKey struct{}

// WithEnvironment stores env in ctx.
func WithEnvironment(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

// EnvironmentFrom returns the environment stored in ctx, or an empty one.
func EnvironmentFrom(ctx context.Context) Environment {
	if ctx == nil {
		return Environment{}
	}
	env, _ := ctx.Value(environmentKey{}).(Environment)
	return env
}

// State carries request-scoped values shared by policies and the action.
type State struct {
	User  *User
	Route Route
}

// Context is the per-call context. A fresh Context is created for every
// resolver invocation and is never shared between calls.
type Context struct {
	ctx context.Context

	Params map[string]any
	Query  map[string]any
	// Request holds the call input (mutation data).
	Request Request
	State   State
	Header  http.Header

	body     any
	hasBody  bool
	halt     any
	isHalted bool
}

// Request is the inbound side of a call.
type Request struct {
	Body any
}

// NewContext clones a Context from the environment stored in ctx.
func NewContext(ctx context.Context) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	env := EnvironmentFrom(ctx)
	var user *User
	if env.User != nil {
		clone := *env.User
		clone.Claims = maps.Clone(env.User.Claims)
		user = &clone
	}
	return &Context{
		ctx:    ctx,
		Params: make(map[string]any),
		Query:  make(map[string]any),
		State:  State{User: user},
		Header: env.Header.Clone(),
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// SetBody sets the response body explicitly.
func (c *Context) SetBody(v any) {
	c.body = v
	c.hasBody = true
}

// Body returns the explicitly set response body.
func (c *Context) Body() (any, bool) {
	return c.body, c.hasBody
}

// Halt marks the call as short-circuited with v. Remaining policies and the
// action are skipped and v becomes the call result (or its error).
func (c *Context) Halt(v any) {
	c.halt = v
	c.isHalted = true
}

// Halted returns the short-circuit value, if any.
func (c *Context) Halted() (any, bool) {
	return c.halt, c.isHalted
}

// Forbidden short-circuits the call with ErrForbidden.
func (c *Context) Forbidden(msg string) {
	c.Halt(wrapMessage(ErrForbidden, msg))
}

// Unauthorized short-circuits the call with ErrUnauthorized.
func (c *Context) Unauthorized(msg string) {
	c.Halt(wrapMessage(ErrUnauthorized, msg))
}

// IsAuthenticated reports whether the call carries a user.
func (c *Context) IsAuthenticated() bool {
	return c.State.User != nil
}

func wrapMessage(err error, msg string) error {
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
