package schema

import (
	"fmt"

	"content-graphql/internal/typebuilder"
)

// ErrUnknownComponent is returned when a component or dynamic zone references
// an unregistered component.
var ErrUnknownComponent = typebuilder.ErrUnknownComponent

// Compile error kinds.
const (
	KindModel    = "model"
	KindCustom   = "custom schema"
	KindResolver = "resolver"
	KindSDL      = "sdl"
)

// CompileError aborts schema compilation. Subject names the model, schema
// source or operation that failed.
type CompileError struct {
	Kind    string
	Subject string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s %q: %v", e.Kind, e.Subject, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
