// Package config provides configuration types and defaults for capsize.
package config

import (
	"fmt"
	"strings"
)

// Default constants
const (
	// DefaultTargetMB is the target size preset used when none is given.
	DefaultTargetMB uint64 = 10

	// DefaultFFmpegPath is the ffmpeg binary resolved from PATH.
	DefaultFFmpegPath string = "ffmpeg"

	// DefaultFFprobePath is the ffprobe binary resolved from PATH.
	DefaultFFprobePath string = "ffprobe"

	// DefaultEncoderName selects automatic encoder resolution.
	DefaultEncoderName string = "auto"

	// DefaultMaxConcurrent is the number of batch encodes run at once.
	DefaultMaxConcurrent int = 1

	// MaxBatchConcurrent caps batch concurrency regardless of configuration.
	MaxBatchConcurrent int = 8

	// MemoryFraction is the share of available memory the memory-optimized
	// mode budgets across concurrent encodes.
	MemoryFraction float64 = 0.7

	// DiskSpaceHeadroomFactor is how many times the target size must be free
	// on the output filesystem before encoding starts.
	DiskSpaceHeadroomFactor uint64 = 2
)

// TargetPresetsMB lists the supported target size presets in megabytes.
var TargetPresetsMB = []uint64{1, 5, 10, 30, 50}

// IsValidTargetPreset reports whether mb is one of the supported presets.
func IsValidTargetPreset(mb uint64) bool {
	for _, preset := range TargetPresetsMB {
		if mb == preset {
			return true
		}
	}
	return false
}

// SpeedPreset trades encoding speed against compression efficiency.
type SpeedPreset string

const (
	SpeedFast     SpeedPreset = "fast"
	SpeedBalanced SpeedPreset = "balanced"
	SpeedQuality  SpeedPreset = "quality"
)

// ParseSpeedPreset parses a string into a SpeedPreset.
func ParseSpeedPreset(s string) (SpeedPreset, error) {
	switch strings.ToLower(s) {
	case "fast":
		return SpeedFast, nil
	case "balanced", "":
		return SpeedBalanced, nil
	case "quality":
		return SpeedQuality, nil
	default:
		return "", fmt.Errorf("%w: '%s', valid options: fast, balanced, quality", ErrInvalidSpeedPreset, s)
	}
}

// String returns the string representation of the preset.
func (p SpeedPreset) String() string {
	return string(p)
}

// Config holds all configuration for size-targeted compression.
type Config struct {
	// External tool paths
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`

	// Input/output paths
	OutputDir string `mapstructure:"output_dir"`
	LogDir    string `mapstructure:"log_dir"`
	TempDir   string `mapstructure:"temp_dir"`   // Optional, defaults to OutputDir

	// Target size: preset megabytes, or an explicit byte count which wins
	// when non-zero.
	TargetMB    uint64 `mapstructure:"target_mb"`
	TargetBytes uint64 `mapstructure:"target_bytes"`

	// Encoder selection
	Encoder           string `mapstructure:"encoder"`            // "auto" or an explicit encoder name
	ForceSoftware     bool   `mapstructure:"force_software"`
	DeviceID          int    `mapstructure:"device_id"`          // CUDA device index, -1 for unset
	QueueOnBusy       bool   `mapstructure:"queue_on_busy"`
	CompatibilityMode bool   `mapstructure:"compatibility_mode"` // force H.264 variants

	// Quality behavior
	AutoQuality bool        `mapstructure:"auto_quality"` // estimator-recommended CRF hint
	Speed       SpeedPreset `mapstructure:"speed"`

	// Batch behavior
	MaxConcurrent   int  `mapstructure:"max_concurrent"`
	MemoryOptimized bool `mapstructure:"memory_optimized"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	Verbose  bool   `mapstructure:"verbose"`
	NoLog    bool   `mapstructure:"no_log"`
}

// NewConfig creates a new Config with default values.
func NewConfig(outputDir, logDir string) *Config {
	return &Config{
		FFmpegPath:    DefaultFFmpegPath,
		FFprobePath:   DefaultFFprobePath,
		OutputDir:     outputDir,
		LogDir:        logDir,
		TargetMB:      DefaultTargetMB,
		Encoder:       DefaultEncoderName,
		DeviceID:      -1,
		Speed:         SpeedBalanced,
		MaxConcurrent: DefaultMaxConcurrent,
		LogLevel:      "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.TargetMB == 0 && c.TargetBytes == 0 {
		return fmt.Errorf("%w: target size must be set", ErrInvalidTargetSize)
	}

	if c.TargetBytes == 0 && !IsValidTargetPreset(c.TargetMB) {
		return fmt.Errorf("%w: %dmb is not a preset, valid presets: 1mb, 5mb, 10mb, 30mb, 50mb",
			ErrInvalidTargetSize, c.TargetMB)
	}

	if _, err := ParseSpeedPreset(string(c.Speed)); err != nil {
		return err
	}

	if c.MaxConcurrent < 1 || c.MaxConcurrent > MaxBatchConcurrent {
		return fmt.Errorf("%w: must be 1-%d, got %d", ErrInvalidConcurrency, MaxBatchConcurrent, c.MaxConcurrent)
	}

	if c.ForceSoftware && c.Encoder != DefaultEncoderName && c.Encoder != "" && c.Encoder != "software" {
		return fmt.Errorf("%w: --force-software conflicts with explicit encoder '%s'", ErrConflictingEncoders, c.Encoder)
	}

	return nil
}

// GetTempDir returns the temp directory, falling back to OutputDir if not set.
func (c *Config) GetTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return c.OutputDir
}
