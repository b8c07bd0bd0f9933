package resolver

import (
	"errors"
	"fmt"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
)

var (
	// ErrMissingResolverOf is returned when a custom resolver does not name the
	// action it authorizes as.
	ErrMissingResolverOf = errors.New("custom resolver requires resolverOf")
	// ErrNoResolver is returned for a config without a resolver.
	ErrNoResolver = errors.New("no resolver configured")
	// ErrFieldResolverAtRoot is returned when a Field resolver is used on Query or Mutation.
	ErrFieldResolverAtRoot = errors.New("field resolvers cannot back root operations")
	// ErrDisabled is returned when asked to build a disabled operation.
	ErrDisabled = errors.New("operation is disabled")
)

// BuildError names the operation a resolver failed to build for.
type BuildError struct {
	Kind      string
	Operation string
	Err       error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.Operation, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// FieldError is a run-time error surfaced to the caller as a GraphQL field error
// with a machine readable code.
type FieldError struct {
	Code string
	Err  error
}

func (e *FieldError) Error() string {
	return e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Extensions implements the graphql-go extended error interface.
func (e *FieldError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.Code}
}

func toFieldError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return err
	}
	code := "INTERNAL_SERVER_ERROR"
	switch {
	case errors.Is(err, action.ErrForbidden):
		code = "FORBIDDEN"
	case errors.Is(err, action.ErrUnauthorized):
		code = "UNAUTHENTICATED"
	case errors.Is(err, action.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		code = "NOT_FOUND"
	case errors.Is(err, action.ErrBadRequest), errors.Is(err, backend.ErrInvalid):
		code = "BAD_USER_INPUT"
	case errors.Is(err, backend.ErrConflict):
		code = "CONFLICT"
	case errors.Is(err, backend.ErrUnavailable):
		code = "SERVICE_UNAVAILABLE"
	}
	return &FieldError{Code: code, Err: err}
}
