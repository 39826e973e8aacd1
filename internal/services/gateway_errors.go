package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProviderEnabled is a configuration error and is never retried.
	ErrNoProviderEnabled = errors.New("no provider backend is enabled")
	// ErrEntitlementUnavailable means the entitlement store could not be read; admission fails closed.
	ErrEntitlementUnavailable = errors.New("entitlement store unavailable")
)

// ValidationError rejects malformed or oversized input before any provider call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Message
}

type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ProviderError is returned once every attempted backend failed.
type ProviderError struct {
	Providers []string
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call failed (%s): %v", strings.Join(e.Providers, ", "), e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
