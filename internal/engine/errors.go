package engine

import (
	"errors"

	"github.com/coinhunt/roomengine/pkg/core"
)

var (
	// ErrNotFound is the normal negative result of a grab or query.
	ErrNotFound = errors.New("not found")

	// ErrIndexUnavailable wraps failures of the geospatial index.
	ErrIndexUnavailable = errors.New("geo index unavailable")

	// ErrInvalidQuery reports a malformed proximity query.
	ErrInvalidQuery = errors.New("invalid query")

	ErrConfiguration = core.ErrConfiguration
)

// ConfigurationError reports an invalid room definition.
type ConfigurationError = core.ConfigurationError
