package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidTargetSize indicates the target size is zero or not a preset.
	ErrInvalidTargetSize = errors.New("invalid target size")

	// ErrInvalidSpeedPreset indicates an unknown speed preset name.
	ErrInvalidSpeedPreset = errors.New("invalid speed preset")

	// ErrInvalidConcurrency indicates max concurrency is out of range.
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrConflictingEncoders indicates both an explicit encoder and
	// force-software were requested.
	ErrConflictingEncoders = errors.New("conflicting encoder selection")
)
