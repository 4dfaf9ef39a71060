package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller-facing surface.
type Kind int

const (
	Internal   Kind = iota // embedding/store/reranker failures, batch mismatches
	BadRequest             // invalid or unscoped input
	NotFound
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error carries a taxonomy kind, a safe human message, an origin tag for
// tracing, and an optional wrapped cause. The wrapped cause is for logs;
// only Message is shown to external callers.
type Error struct {
	Op      string // origin, e.g. "rag.Search"
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a taxonomy error.
func E(op string, kind Kind, message string, err error) *Error {
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, defaulting to Internal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Internal
}

// SafeMessage returns a message fit for external callers: the taxonomy
// message when present, otherwise a generic one. Store/provider error text
// never leaks through this path.
func SafeMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
