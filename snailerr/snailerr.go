// Package snailerr defines the error taxonomy shared by every decoder and
// resolver in this module.
package snailerr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error into one of the categories the decoders and
// resolvers distinguish when deciding whether to abort, degrade, or skip.
type Kind int

const (
	// Io is an underlying source read/seek failure, or file not found.
	Io Kind = iota
	// BadFormat is a magic mismatch, invalid header, inconsistent
	// attributes, corrupt compressed block, or a record shorter than its
	// header claims.
	BadFormat
	// Unsupported is a recognized but not implemented feature (LZNT1,
	// XPRESS-Huffman, an unknown feature version).
	Unsupported
	// NotFound is a symbol server 404 or a debug file that could not be
	// located anywhere in the search chain.
	NotFound
	// Cancelled is cooperative cancellation via a caller-supplied signal.
	Cancelled
	// Internal is a precondition violation: a caller bug, not a data
	// problem.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case BadFormat:
		return "bad format"
	case Unsupported:
		return "unsupported"
	case NotFound:
		return "not found"
	case Cancelled:
		return "cancelled"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is an error tagged with a Kind, letting callers classify the
// failure with errors.Is/errors.As after any amount of errors.Wrap-ing.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.msg }

// Is makes errors.Is(err, snailerr.NotFoundErr) etc. work by comparing Kind
// against a bare Kind value wrapped in an *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.msg == "" && t.Kind == e.Kind
}

// New creates an *Error of the given kind with a message, matching the
// errors.New call shape used throughout the codebase.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, msg: msg}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches call-site context to err while preserving its Kind for
// errors.Is, the way errors.Wrap attaches context while preserving the
// underlying cause for errors.Cause.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(&Error{Kind: kind, msg: err.Error()}, msg)
}

// sentinels for errors.Is(err, snailerr.NotFoundErr)-style comparisons.
var (
	// IoErr is the bare sentinel for Kind Io.
	IoErr = &Error{Kind: Io}
	// NotFoundErr is the bare sentinel for Kind NotFound.
	NotFoundErr = &Error{Kind: NotFound}
	// CancelledErr is the bare sentinel for Kind Cancelled.
	CancelledErr = &Error{Kind: Cancelled}
)

// Of reports whether err is (or wraps) a snailerr.Error of the given kind.
func Of(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		next := stderrors.Unwrap(err)
		if next == nil {
			return false
		}
		err = next
	}
	return false
}
