package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared across packages.
var (
	// ErrDuplicateID is returned when a transaction id already exists in the ledger.
	ErrDuplicateID = errors.New("duplicate transaction id")

	// ErrNotFound is returned when a transaction or job does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a field value that violates a transaction invariant.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on '%s' (%q): %s", e.Field, e.Value, e.Message)
}

// ParseError reports a canonical line that could not be turned into a transaction.
// Err carries the underlying field failure, if any.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigurationError lists every missing or malformed setting found at startup.
type ConfigurationError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		keys := make([]string, 0, len(e.Invalid))
		for k := range e.Invalid {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("invalid %s: %s", k, e.Invalid[k]))
		}
	}
	return "configuration error: " + strings.Join(parts, "; ")
}

// Empty reports whether no problems were recorded.
func (e *ConfigurationError) Empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// StorageRecoveryError describes why the ledger was reinitialized on open.
// It is logged and exposed as status, never returned to callers.
type StorageRecoveryError struct {
	Path   string
	Reason string
	Err    error
}

func (e *StorageRecoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger %s recovered (%s): %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("ledger %s recovered (%s)", e.Path, e.Reason)
}

func (e *StorageRecoveryError) Unwrap() error {
	return e.Err
}

// TransportError indicates an alert could not be delivered.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error [%s]: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExternalServiceError indicates a failure in an external service call
// such as the vision model or a mirror.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
