package sandbox

import "errors"

var (
	// ErrEnvironmentUnavailable means the runtime or its image is missing.
	ErrEnvironmentUnavailable = errors.New("sandbox environment unavailable")
	ErrInvalidCommand         = errors.New("invalid sandbox command")
)
