// pkg/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel matched by every ConfigurationError.
var ErrConfiguration = errors.New("invalid room configuration")

// ConfigurationError reports a malformed or missing room definition.
type ConfigurationError struct {
	Room   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Room == "" {
		return fmt.Sprintf("room configuration: %s", e.Reason)
	}
	return fmt.Sprintf("room configuration %q: %s", e.Room, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
