package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates the user record does not exist locally.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailRequired indicates the user record has no email, which the
	// billing processor requires for customer creation.
	ErrEmailRequired = errors.New("user email is required")

	// ErrNoCustomer indicates an operation that requires an existing billing
	// customer was invoked for a user without one.
	ErrNoCustomer = errors.New("no billing customer for user")
)

// UpstreamError wraps a billing-processor failure. The processor's message is
// surfaced verbatim to callers.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err originates from the billing processor.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
