package model

import (
	"errors"
	"fmt"
)

// ErrConfiguration is returned when a cell, source or strategy is set up with
// missing or malformed inputs. Runs must abort before the first cycle.
var ErrConfiguration = errors.New("configuration error")

// ConfigError names the offending field. It unwraps to ErrConfiguration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewConfigError is the exported constructor used by sibling packages.
func NewConfigError(field, format string, args ...any) error {
	return configErr(field, format, args...)
}
