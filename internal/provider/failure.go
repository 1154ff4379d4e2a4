package provider

import (
	"errors"
	"fmt"
)

// FailureClass categorizes why a provider call failed.
type FailureClass string

const (
	ClassTimeout       FailureClass = "timeout"
	ClassAuth          FailureClass = "auth_failure"
	ClassNotConfigured FailureClass = "not_configured"
	ClassEmptyContent  FailureClass = "empty_content"
	ClassServerError   FailureClass = "server_error"
)

// ProviderName identifies which backend produced a result or failure.
type ProviderName string

const (
	ProviderPrimary  ProviderName = "primary"
	ProviderFallback ProviderName = "fallback"
)

// Failure is a typed provider error carrying the failure class and the
// originating provider.
type Failure struct {
	Provider ProviderName
	Class    FailureClass
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s provider %s: %v", f.Provider, f.Class, f.Err)
	}
	return fmt.Sprintf("%s provider %s", f.Provider, f.Class)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ErrProvidersUnavailable is returned when every configured provider failed.
// Per-provider failure detail travels in UnavailableError.
var ErrProvidersUnavailable = errors.New("all content providers unavailable")

// UnavailableError aggregates the individual provider failures behind
// ErrProvidersUnavailable.
type UnavailableError struct {
	Primary  *Failure
	Fallback *Failure
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("all content providers unavailable (primary: %v, fallback: %v)", e.Primary, e.Fallback)
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrProvidersUnavailable
}
