package engine

import (
	"errors"
	"fmt"
)

// Kind distinguishes a missing dependency from a processing error.
type Kind int

const (
	KindFailure Kind = iota
	KindUnavailable
)

func (k Kind) String() string {
	if k == KindUnavailable {
		return "unavailable"
	}
	return "failure"
}

// Error is returned by engines. Errors from engines that are not an *Error
// are treated as failures.
type Error struct {
	Engine ID
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s %s: %v", e.Engine, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func unavailable(id ID, err error) error {
	return &Error{Engine: id, Kind: KindUnavailable, Err: err}
}

func failed(id ID, err error) error {
	return &Error{Engine: id, Kind: KindFailure, Err: err}
}

// Classify wraps err as an *Error for id unless it already is one. An
// *Error without an engine is attributed to id.
func Classify(id ID, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Engine == "" {
			c := *e
			c.Engine = id
			return &c
		}
		return e
	}
	return &Error{Engine: id, Kind: KindFailure, Err: err}
}

// IsUnavailable reports whether err means the engine's dependency is missing.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindUnavailable
}

// IsFailure reports whether err is an engine processing failure.
func IsFailure(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindFailure
}
