// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// HardwareSummary describes the host and the outcome of encoder detection.
type HardwareSummary struct {
	Hostname  string
	CPUModel  string
	Encoders  []string
	Devices   []DeviceSummary
	Preferred string
}

// DeviceSummary describes one detected GPU.
type DeviceSummary struct {
	ID          int
	Name        string
	VRAMMB      uint64
	ComputeCap  string
	MaxSessions int
}

// InitializationSummary describes the current file before encoding.
type InitializationSummary struct {
	SessionID        string
	InputFile        string
	OutputFile       string
	Duration         string
	Resolution       string
	DynamicRange     string
	AudioDescription string
	SourceSize       uint64
	TargetSize       uint64
}

// PlanSummary describes the resolved encode plan.
type PlanSummary struct {
	SessionID        string
	Encoder          string
	VideoBitrateKbps uint32
	AudioBitrateKbps uint32
	TwoPass          bool
	QualityHint      *uint32
	Complexity       string
	PredictedSize    uint64
	EstimatedTime    time.Duration
	TargetSize       uint64
}

// ProgressSnapshot contains encoding progress information.
type ProgressSnapshot struct {
	CurrentFrame uint64
	TotalFrames  uint64
	Percent      float32
	Speed        float32
	FPS          float32
	ETA          time.Duration
	Bitrate      string
	Pass         int
	TotalPasses  int
}

// FallbackSummary describes one encoder fallback transition.
type FallbackSummary struct {
	From    string
	To      string
	Reason  string
	Attempt int
}

// RetrySummary describes a corrective re-encode after a size overshoot.
type RetrySummary struct {
	Attempt             int
	MaxAttempts         int
	ActualBytes         uint64
	TargetBytes         uint64
	NewVideoBitrateKbps uint32
}

// ValidationSummary contains output verification results.
type ValidationSummary struct {
	Passed bool
	Steps  []ValidationStep
}

// ValidationStep represents a single verification check.
type ValidationStep struct {
	Name    string
	Passed  bool
	Details string
}

// EncodingOutcome contains final encoding results.
type EncodingOutcome struct {
	SessionID        string
	InputFile        string
	OutputFile       string
	Encoder          string
	OriginalSize     uint64
	EncodedSize      uint64
	TargetSize       uint64
	VideoBitrateKbps uint32
	TotalTime        time.Duration
	AverageSpeed     float32
	OutputPath       string
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalFiles int
	FileList   []string
	OutputDir  string
}

// FileProgressContext contains current file index within a batch.
type FileProgressContext struct {
	CurrentFile int
	TotalFiles  int
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	SuccessfulCount   int
	FailedCount       int
	TotalFiles        int
	TotalOriginalSize uint64
	TotalEncodedSize  uint64
	TotalDuration     time.Duration
	AverageSpeed      float32
	FileResults       []FileResult
}

// FileResult contains per-file encoding result.
type FileResult struct {
	Filename  string
	Reduction float64
	Success   bool
}
