package core

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is on the typed errors below
var (
	ErrConfig = errors.New("provider configuration error")
	ErrHTTP   = errors.New("provider http error")
	ErrShape  = errors.New("provider response shape error")
)

// ConfigError is raised before any network call: unknown provider,
// unresolvable credential, missing endpoint parameter.
type ConfigError struct {
	Kind   ProviderKind
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// HTTPError carries a non-successful upstream status. Status is 0 when the
// request never got a response (connection failure).
type HTTPError struct {
	Kind    ProviderKind
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("provider %s: request failed: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s: HTTP %d: %s", e.Kind, e.Status, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ShapeError means a response was received but does not match the expected envelope
type ShapeError struct {
	Kind   ProviderKind
	Reason string
	Err    error
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: unexpected response: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("provider %s: unexpected response: %s", e.Kind, e.Reason)
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrShape
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}
