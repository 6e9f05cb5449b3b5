package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidBackend indicates an unknown measurement backend name.
	ErrInvalidBackend = errors.New("invalid backend")

	// ErrInvalidThreshold indicates a threshold outside the backend's value range.
	ErrInvalidThreshold = errors.New("threshold out of range")

	// ErrInvalidFrameRate indicates a non-positive frame rate.
	ErrInvalidFrameRate = errors.New("frame rate must be positive")

	// ErrMissingTemplate indicates a configured script template that does not exist.
	ErrMissingTemplate = errors.New("script template not found")
)
