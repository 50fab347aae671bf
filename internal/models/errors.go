// Package models implements the attribution model core: the orchestration
// of encoding, generation, method dispatch, batching and output merging, and
// the adapter contract concrete architectures implement.
package models

import (
	"errors"
	"fmt"
)

// ErrMissingAttributionMethod is returned when attribution is requested with
// no method name and no previously bound default method.
var ErrMissingAttributionMethod = errors.New(
	"no attribution method available: pass a method name or bind a default during setup")

// ValidationError reports invalid attribution inputs.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// LengthMismatchError reports input/target collections of different lengths.
type LengthMismatchError struct {
	Inputs  int
	Targets int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("got %d generated texts for %d input texts, lengths must match", e.Targets, e.Inputs)
}

// PreconditionError reports a violated architecture precondition.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return e.Msg
}

// UnknownMethodError reports a lookup of an unregistered attribution method.
type UnknownMethodError struct {
	Name      string
	Available []string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("unknown attribution method %q (available: %v)", e.Name, e.Available)
}
