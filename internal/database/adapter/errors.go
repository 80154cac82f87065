package adapter

import (
	"context"
	"errors"
	"fmt"
)

// Standard adapter errors
var (
	// ErrConfigMismatch is returned when a config's backend discriminant does
	// not match the adapter variant it was handed to.
	ErrConfigMismatch = errors.New("configuration does not match adapter backend")

	// ErrConfigInvalid is returned when a configuration fails validation.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrNotInitialized is returned when an operation is attempted before a
	// successful connect (or after disconnect).
	ErrNotInitialized = errors.New("adapter is not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrConnectionTestFailed is returned when a freshly created adapter
	// fails its liveness ping.
	ErrConnectionTestFailed = errors.New("connection test failed")

	// ErrOperationTimeout marks an operation that lost its timeout race.
	// The underlying operation may still be running; the outcome is unknown.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrTransactionClosed is returned when commit or rollback is called on a
	// transaction that has already been resolved.
	ErrTransactionClosed = errors.New("transaction already resolved")
)

// ConnectionErrorKind classifies connection-establishment failures.
type ConnectionErrorKind string

const (
	ConnRefused         ConnectionErrorKind = "refused"
	ConnAuthFailed      ConnectionErrorKind = "auth-failed"
	ConnUnknownDatabase ConnectionErrorKind = "unknown-database"
	ConnInvalidPort     ConnectionErrorKind = "invalid-port"
	ConnHostUnresolved  ConnectionErrorKind = "host-unresolved"
	ConnUnknown         ConnectionErrorKind = "unknown"
)

// ConnectionError wraps a failed connection attempt with its classification.
type ConnectionError struct {
	Backend BackendType
	Host    string
	Port    int
	Kind    ConnectionErrorKind
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %s:%d (%s): %v", e.Backend, e.Host, e.Port, e.Kind, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches ErrConnectionFailed or the underlying cause.
func (e *ConnectionError) Is(target error) bool {
	if errors.Is(target, ErrConnectionFailed) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(backend BackendType, host string, port int, kind ConnectionErrorKind, cause error) *ConnectionError {
	return &ConnectionError{
		Backend: backend,
		Host:    host,
		Port:    port,
		Kind:    kind,
		Cause:   cause,
	}
}

// ConfigError is returned when a configuration fails validation.
type ConfigError struct {
	Backend BackendType
	Field   string
	Reason  string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid configuration for %s: field '%s': %s", e.Backend, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s: %s", e.Backend, e.Reason)
}

// Is checks if the error is ErrConfigInvalid.
func (e *ConfigError) Is(target error) bool {
	return errors.Is(target, ErrConfigInvalid)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(backend BackendType, field string, reason string) *ConfigError {
	return &ConfigError{
		Backend: backend,
		Field:   field,
		Reason:  reason,
	}
}

// IsTimeout reports whether an error carries the timeout marker, either the
// adapter's own sentinel or a context deadline from a racing timer.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrOperationTimeout) || errors.Is(err, context.DeadlineExceeded)
}
