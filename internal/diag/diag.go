package diag

import (
	"fmt"

	"lamina/internal/lambda"
)

// Warning is a user-observable diagnostic that never alters the outcome of
// a transformation.
type Warning struct {
	Code    string
	Message string
	Loc     lambda.Loc
}

// Error is a fatal rewriting error carrying a source location. The pipeline
// aborts the unit when a pass returns one.
type Error struct {
	Code    string
	Message string
	Loc     lambda.Loc
}

func (e *Error) Error() string {
	if e.Loc.File == "" {
		return fmt.Sprintf("error[%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s:%d:%d: error[%s]: %s", e.Loc.File, e.Loc.Line, e.Loc.Column, e.Code, e.Message)
}

// AmbiguousConstructorArguments builds the one fatal error of the TMC pass.
func AmbiguousConstructorArguments(loc lambda.Loc) *Error {
	return &Error{
		Code:    ErrorAmbiguousConstructorArguments,
		Message: "several arguments of this constructor contain TMC calls; annotate exactly one call with @tail",
		Loc:     loc,
	}
}

// InternalError signals a broken pass invariant. It is thrown with panic and
// recovered at the pipeline boundary.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

// Assert panics with an InternalError when cond is false.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(&InternalError{Message: fmt.Sprintf(format, args...)})
	}
}

// Annotation records, for downstream tooling, whether a call site ended up
// in tail position.
type Annotation struct {
	Loc  lambda.Loc
	Tail bool
}

// Sink collects warnings and annotations in append order. A Sink is
// write-only for the passes; the host drains it after the pipeline runs.
type Sink struct {
	Warnings    []Warning
	Annotations []Annotation
}

// Warn appends a warning.
func (s *Sink) Warn(code string, loc lambda.Loc, format string, args ...interface{}) {
	if s == nil {
		return
	}
	s.Warnings = append(s.Warnings, Warning{Code: code, Message: fmt.Sprintf(format, args...), Loc: loc})
}

// Annotate appends a tail-call annotation record.
func (s *Sink) Annotate(loc lambda.Loc, tail bool) {
	if s == nil {
		return
	}
	s.Annotations = append(s.Annotations, Annotation{Loc: loc, Tail: tail})
}
