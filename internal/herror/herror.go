// Package herror defines the error taxonomy shared by every hometree
// component: a fixed set of kinds rather than a hierarchy of error types.
package herror

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure, for programmatic dispatch
// (requeue-and-backoff vs abort vs log-and-continue) rather than display.
type Kind string

const (
	// Configuration means the loaded configuration is malformed or was
	// rejected (an overly broad auto-add pattern, an invalid recipient,
	// an unsupported backend).
	Configuration Kind = "configuration"

	// IO means a filesystem operation failed.
	IO Kind = "io"

	// Backend means the revision-control backend command failed.
	Backend Kind = "backend"

	// Crypto means encryption or decryption failed with otherwise-valid
	// keys (as opposed to Configuration, where the keys themselves are bad).
	Crypto Kind = "crypto"

	// Conflict means an operation refused to replace a directory with a
	// file, refused to stage a plaintext secret, or refused a symlink
	// that escapes home.
	Conflict Kind = "conflict"

	// Busy means the advisory lock was unavailable. Transient.
	Busy Kind = "busy"

	// NotFound means an expected file was absent where required.
	NotFound Kind = "notfound"
)

// Error is the concrete error type returned by every core package.
type Error struct {
	kind Kind
	msg  string
	help string
	err  error
}

var _ error = (*Error)(nil)

// New builds an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap builds an Error that wraps an underlying cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// WithHelp attaches operator-facing guidance to the error.
func (e *Error) WithHelp(help string) *Error {
	e.help = help
	return e
}

// Kind returns the error's taxonomy kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Help returns operator guidance, or the empty string if none was set.
func (e *Error) Help() string {
	return e.help
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}
