package engine

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when a mutation is attempted with no
// signed-in user. Nothing has been changed locally or remotely.
var ErrNotAuthenticated = errors.New("not authenticated")

// ValidationError rejects bad input before any network call or local
// mutation, so no rollback is ever needed for it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// TransportError reports a remote call that failed after an optimistic
// local write. The engine has already rolled the working set back when the
// caller sees one of these; it is recoverable by retrying the intent.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was rejected before any mutation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransport reports whether err is a rolled-back remote failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
