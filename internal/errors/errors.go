// Package errors provides structured error types for capsize operations.
package errors

import (
	"errors"
	"fmt"
	"os/exec"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// KindIO represents I/O errors.
	KindIO ErrorKind = iota
	// KindPath represents path-related errors.
	KindPath
	// KindCommand represents external command execution errors.
	KindCommand
	// KindProbe represents unreadable or undecodable input media.
	KindProbe
	// KindInfeasibleTarget represents a target size unachievable for the source duration.
	KindInfeasibleTarget
	// KindEncoderUnavailable represents an explicitly requested encoder that is not present.
	KindEncoderUnavailable
	// KindBackendEncode represents a transcoding backend failure mid-encode.
	KindBackendEncode
	// KindSizeOvershoot represents output exceeding the target after all corrective retries.
	KindSizeOvershoot
	// KindFallbackExhausted represents every candidate encoder failing in sequence.
	KindFallbackExhausted
	// KindValidation represents output verification failures.
	KindValidation
	// KindConfig represents configuration validation errors.
	KindConfig
	// KindNoFilesFound represents no suitable video files found.
	KindNoFilesFound
	// KindCancelled represents user-cancelled operations.
	KindCancelled
)

// String returns a string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "I/O error"
	case KindPath:
		return "Path error"
	case KindCommand:
		return "Command error"
	case KindProbe:
		return "Probe error"
	case KindInfeasibleTarget:
		return "Infeasible target size"
	case KindEncoderUnavailable:
		return "Encoder unavailable"
	case KindBackendEncode:
		return "Encode failed"
	case KindSizeOvershoot:
		return "Size overshoot"
	case KindFallbackExhausted:
		return "All encoders exhausted"
	case KindValidation:
		return "Validation error"
	case KindConfig:
		return "Configuration error"
	case KindNoFilesFound:
		return "No files found"
	case KindCancelled:
		return "Operation cancelled"
	default:
		return "Unknown error"
	}
}

// CommandErrorKind represents the type of command error.
type CommandErrorKind int

const (
	// CommandStart means the command failed to start.
	CommandStart CommandErrorKind = iota
	// CommandWait means waiting for the command failed.
	CommandWait
	// CommandFailed means the command returned non-zero exit status.
	CommandFailed
)

// CommandError represents an error from executing an external command.
type CommandError struct {
	Command    string
	Kind       CommandErrorKind
	ExitCode   int
	Stderr     string
	Underlying error
}

func (e *CommandError) Error() string {
	switch e.Kind {
	case CommandStart:
		return fmt.Sprintf("failed to execute %s: %v", e.Command, e.Underlying)
	case CommandWait:
		return fmt.Sprintf("failed to wait for %s: %v", e.Command, e.Underlying)
	case CommandFailed:
		if e.Stderr != "" {
			return fmt.Sprintf("command %s failed with exit code %d: %s", e.Command, e.ExitCode, e.Stderr)
		}
		return fmt.Sprintf("command %s failed with exit code %d", e.Command, e.ExitCode)
	default:
		return fmt.Sprintf("command %s error: %v", e.Command, e.Underlying)
	}
}

func (e *CommandError) Unwrap() error {
	return e.Underlying
}

// InfeasibleTargetError carries the numbers behind an unachievable target size
// so callers can suggest a workable one.
type InfeasibleTargetError struct {
	TargetBytes     uint64
	DurationSeconds float64
	ComputedKbps    float64
	FloorKbps       uint32
}

func (e *InfeasibleTargetError) Error() string {
	return fmt.Sprintf("target of %d bytes over %.1fs leaves %.1f kbps for video, below the %d kbps floor",
		e.TargetBytes, e.DurationSeconds, e.ComputedKbps, e.FloorKbps)
}

// SizeOvershootError carries both the target and the achieved size after the
// corrective retries were spent.
type SizeOvershootError struct {
	TargetBytes uint64
	ActualBytes uint64
	Retries     int
}

func (e *SizeOvershootError) Error() string {
	return fmt.Sprintf("output is %d bytes, exceeds target of %d bytes after %d corrective retries",
		e.ActualBytes, e.TargetBytes, e.Retries)
}

// CoreError is the main error type for capsize operations.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	Underlying error
}

func (e *CoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CoreError) Unwrap() error {
	return e.Underlying
}

// Is reports whether target matches this error's kind.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewIOError creates a new I/O error.
func NewIOError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindIO, Message: message, Underlying: underlying}
}

// NewPathError creates a new path-related error.
func NewPathError(message string) *CoreError {
	return &CoreError{Kind: KindPath, Message: message}
}

// NewCommandError creates a new command execution error.
func NewCommandError(cmd string, kind CommandErrorKind, underlying error) *CoreError {
	cmdErr := &CommandError{
		Command:    cmd,
		Kind:       kind,
		Underlying: underlying,
	}
	return &CoreError{Kind: KindCommand, Message: cmdErr.Error(), Underlying: cmdErr}
}

// NewCommandStartError creates an error for when a command fails to start.
func NewCommandStartError(cmd string, err error) *CoreError {
	return NewCommandError(cmd, CommandStart, err)
}

// NewCommandWaitError creates an error for when waiting for a command fails.
func NewCommandWaitError(cmd string, err error) *CoreError {
	return NewCommandError(cmd, CommandWait, err)
}

// NewCommandFailedError creates an error for when a command returns non-zero exit status.
func NewCommandFailedError(cmd string, exitCode int, stderr string) *CoreError {
	cmdErr := &CommandError{
		Command:  cmd,
		Kind:     CommandFailed,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
	return &CoreError{Kind: KindCommand, Message: cmdErr.Error(), Underlying: cmdErr}
}

// NewProbeError creates an error for unreadable or undecodable input.
func NewProbeError(message string, underlying error) *CoreError {
	return &CoreError{Kind: KindProbe, Message: message, Underlying: underlying}
}

// NewInfeasibleTargetError creates an error for a target size no bitrate can meet.
func NewInfeasibleTargetError(targetBytes uint64, duration, computedKbps float64, floorKbps uint32) *CoreError {
	inner := &InfeasibleTargetError{
		TargetBytes:     targetBytes,
		DurationSeconds: duration,
		ComputedKbps:    computedKbps,
		FloorKbps:       floorKbps,
	}
	return &CoreError{Kind: KindInfeasibleTarget, Message: inner.Error(), Underlying: inner}
}

// NewEncoderUnavailableError creates an error for an explicit encoder choice
// that is not present on this system. The choice is never silently substituted.
func NewEncoderUnavailableError(encoder string) *CoreError {
	return &CoreError{
		Kind:    KindEncoderUnavailable,
		Message: fmt.Sprintf("requested encoder %s is not available on this system", encoder),
	}
}

// NewBackendEncodeError creates an error for a backend failure mid-encode.
func NewBackendEncodeError(encoder, message string, underlying error) *CoreError {
	return &CoreError{
		Kind:       KindBackendEncode,
		Message:    fmt.Sprintf("%s: %s", encoder, message),
		Underlying: underlying,
	}
}

// NewSizeOvershootError creates an error for output that exceeded the target
// after the corrective retries were spent.
func NewSizeOvershootError(targetBytes, actualBytes uint64, retries int) *CoreError {
	inner := &SizeOvershootError{
		TargetBytes: targetBytes,
		ActualBytes: actualBytes,
		Retries:     retries,
	}
	return &CoreError{Kind: KindSizeOvershoot, Message: inner.Error(), Underlying: inner}
}

// NewFallbackExhaustedError creates an error for when every candidate encoder
// failed in sequence, software included.
func NewFallbackExhaustedError(tried []string, lastErr error) *CoreError {
	return &CoreError{
		Kind:       KindFallbackExhausted,
		Message:    fmt.Sprintf("all encoders failed: tried %v", tried),
		Underlying: lastErr,
	}
}

// NewValidationError creates a new output verification error.
func NewValidationError(message string) *CoreError {
	return &CoreError{Kind: KindValidation, Message: message}
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *CoreError {
	return &CoreError{Kind: KindConfig, Message: message}
}

// NewNoFilesFoundError creates an error for when no video files are found.
func NewNoFilesFoundError(dir string) *CoreError {
	return &CoreError{Kind: KindNoFilesFound, Message: fmt.Sprintf("no suitable video files found in %s", dir)}
}

// NewCancelledError creates an error for user-cancelled operations.
func NewCancelledError() *CoreError {
	return &CoreError{Kind: KindCancelled, Message: "operation was cancelled by the user"}
}

// IsKind checks if the error has the specified kind.
func IsKind(err error, kind ErrorKind) bool {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr.Kind == kind
	}
	return false
}

// IsCancelled checks if the error is a cancellation error.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// IsNoFilesFound checks if the error is a no-files-found error.
func IsNoFilesFound(err error) bool {
	return IsKind(err, KindNoFilesFound)
}

// IsStartupFailure reports whether the error prevented the encode from ever
// starting (bad input, bad parameters, missing encoder), as opposed to a
// failure to guarantee the size once encoding had begun. The remediation
// differs: pick different parameters versus try a different encoder.
func IsStartupFailure(err error) bool {
	var coreErr *CoreError
	if !errors.As(err, &coreErr) {
		return false
	}
	switch coreErr.Kind {
	case KindProbe, KindInfeasibleTarget, KindEncoderUnavailable,
		KindConfig, KindPath, KindNoFilesFound:
		return true
	default:
		return false
	}
}

// WrapExecError wraps an exec.ExitError into a CoreError.
func WrapExecError(cmd string, err error, stderr string) *CoreError {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return NewCommandFailedError(cmd, exitErr.ExitCode(), stderr)
	}
	return NewCommandStartError(cmd, err)
}
