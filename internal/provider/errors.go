package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured means the provider exists but has no client
	// credentials. Maps to a user-actionable "service unavailable".
	ErrNotConfigured = errors.New("provider_not_configured")

	// ErrUnsupported means the provider name is not in the closed set.
	ErrUnsupported = errors.New("unsupported_provider")
)

// Error wraps a failed provider call with enough context to log and alert.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: %s failed with status %d: %s", e.Provider, e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s failed: %s", e.Provider, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(providerName, op string, status int, message string, err error) *Error {
	return &Error{
		Provider:   providerName,
		Op:         op,
		StatusCode: status,
		Message:    message,
		Err:        err,
	}
}
