package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is the protocol error returned when the CSRF state
	// does not match the one stored for the flow.
	ErrInvalidState = errors.New("invalid state")

	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
)

// ProviderError reports a token exchange or resource owner failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("keycloak %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CommandError reports a failed user command.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
