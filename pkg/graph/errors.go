package graph

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel behind every ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a setting that prevents any work from starting,
// such as a remote oracle without credentials.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// OracleFailure records one failed (window, sub-schema) oracle call. It never
// aborts an extraction; it is folded into the extraction status.
type OracleFailure struct {
	Window    int
	SubSchema string
	Err       error
}

func (e *OracleFailure) Error() string {
	return fmt.Sprintf("oracle failed on window %d, schema %q: %v", e.Window, e.SubSchema, e.Err)
}

func (e *OracleFailure) Unwrap() error {
	return e.Err
}
