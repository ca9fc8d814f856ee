package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("record not found")
	ErrRunAlreadyGenerated = errors.New("replenishment run already generated")
	ErrRunInProgress       = errors.New("another replenishment run is in progress for this source warehouse")
	ErrDuplicateTransfer   = errors.New("transfer already emitted for this run and warehouse")
)

// ConfigurationError reports setup problems that must be fixed by an operator
// before a run can be generated (missing destinations, missing routing).
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}

// NewConfigurationError formats a ConfigurationError
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError reports malformed record values rejected at save time
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
