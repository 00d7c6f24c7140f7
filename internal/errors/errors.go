// Package errors defines the four terminal error kinds (ValidationError,
// LayoutError, CodegenError, RuntimeError) with source coordinates,
// following an ErrorType/SourceLocation/CallStack shape. Wrapping and
// cause inspection are delegated to github.com/pkg/errors rather than
// reimplemented here.
package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Kind is the closed set of terminal error kinds.
type Kind string

const (
	Validation Kind = "ValidationError"
	Layout     Kind = "LayoutError"
	Codegen    Kind = "CodegenError"
	Runtime    Kind = "RuntimeError"
)

// Coordinate pins an error to the place in the graph/IR it was raised
// from: the offending node, function, block and instruction index. Any
// field may be the type's zero value when not applicable (e.g. a
// LayoutError has no NodeId).
type Coordinate struct {
	Node         string
	Function     string
	Block        int
	Instruction  int
	HasBlock     bool
	HasInstr     bool
}

func (c Coordinate) String() string {
	var sb strings.Builder
	if c.Node != "" {
		fmt.Fprintf(&sb, "%s", c.Node)
	}
	if c.Function != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "fn %s", c.Function)
	}
	if c.HasBlock {
		fmt.Fprintf(&sb, " bb%d", c.Block)
	}
	if c.HasInstr {
		fmt.Fprintf(&sb, "[%d]", c.Instruction)
	}
	return sb.String()
}

// Error is a terminal compilation/runtime error carrying a Kind and a
// Coordinate, with an optional wrapped cause (inspected via
// github.com/pkg/errors.Cause).
type Error struct {
	Kind    Kind
	Message string
	Where   Coordinate
	cause   error
}

func (e *Error) Error() string {
	where := e.Where.String()
	if where == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Message, where)
}

// Cause implements github.com/pkg/errors's causer interface.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports the standard library's errors.Is/As chains too.
func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error of the given kind with no coordinate.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At builds an *Error of the given kind, pinned to where.
func At(kind Kind, where Coordinate, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Where: where}
}

// Wrap attaches cause to a freshly built *Error via pkg/errors.Wrap,
// preserving cause's stack trace in the Cause() chain.
func Wrap(cause error, kind Kind, where Coordinate, format string, args ...interface{}) *Error {
	wrapped := pkgerrors.Wrap(cause, fmt.Sprintf(format, args...))
	return &Error{Kind: kind, Message: wrapped.Error(), Where: where, cause: cause}
}
