package config

import "errors"

var (
	// ErrParsingConfig wraps env parsing failures, including missing required vars.
	ErrParsingConfig = errors.New("config: failed to parse environment")
	ErrNilPointer    = errors.New("config: target must be a non-nil pointer")
	// ErrLoadingEnv is returned when a .env file exists but cannot be read.
	ErrLoadingEnv = errors.New("config: failed to load .env file")
)
