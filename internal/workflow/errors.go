package workflow

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map these to HTTP statuses with errors.Is; the
// message carried alongside is safe to show to users.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidInput     = errors.New("invalid input")
	ErrForbidden        = errors.New("not authorized")
	ErrAlreadyFinalized = errors.New("already finalized")

	// ErrPaymentConfig: the company credential is missing or unusable,
	// detected before or while constructing the provider client.
	ErrPaymentConfig = errors.New("payment configuration error")

	// ErrPaymentProcessing: the payee or transfer call failed.
	ErrPaymentProcessing = errors.New("payment processing failed")
)

// Error pairs an error kind with a user-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

// E builds a workflow error of the given kind.
func E(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
