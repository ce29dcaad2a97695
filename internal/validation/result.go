// Package validation verifies encoded output against the size target and
// the properties promised by the encode plan.
package validation

import (
	"fmt"

	"github.com/tfells/capsize/internal/util"
)

// Result contains the overall verification result for one output file.
type Result struct {
	IsSizeOK     bool
	IsCodecOK    bool
	IsDurationOK bool
	IsAudioOK    bool

	// Details
	ActualBytes      uint64
	TargetBytes      uint64
	Utilization      float64 // fraction of the target actually used
	CodecName        string
	ActualDuration   float64
	ExpectedDuration float64

	SizeMessage     string
	CodecMessage    string
	DurationMessage string
	AudioMessage    string
}

// ValidationStep represents a single verification check.
type ValidationStep struct {
	Name    string
	Passed  bool
	Details string
}

// IsValid returns true if all verification checks passed.
func (r *Result) IsValid() bool {
	return r.IsSizeOK &&
		r.IsCodecOK &&
		r.IsDurationOK &&
		r.IsAudioOK
}

// GetValidationSteps returns all verification steps with results.
func (r *Result) GetValidationSteps() []ValidationStep {
	return []ValidationStep{
		{
			Name:    "Target size",
			Passed:  r.IsSizeOK,
			Details: r.SizeMessage,
		},
		{
			Name:    "Video codec",
			Passed:  r.IsCodecOK,
			Details: r.CodecMessage,
		},
		{
			Name:    "Duration",
			Passed:  r.IsDurationOK,
			Details: r.DurationMessage,
		},
		{
			Name:    "Audio streams",
			Passed:  r.IsAudioOK,
			Details: r.AudioMessage,
		},
	}
}

// GetFailures returns descriptions of failed verification checks.
func (r *Result) GetFailures() []string {
	var failures []string
	for _, step := range r.GetValidationSteps() {
		if !step.Passed {
			failures = append(failures, step.Name+": "+step.Details)
		}
	}
	return failures
}

// Summary returns a one-line description of the size outcome.
func (r *Result) Summary() string {
	if r.IsSizeOK {
		return fmt.Sprintf("%s of %s target (%.1f%% used)",
			util.FormatBytes(r.ActualBytes), util.FormatBytes(r.TargetBytes), r.Utilization*100)
	}
	return fmt.Sprintf("%s exceeds %s target",
		util.FormatBytes(r.ActualBytes), util.FormatBytes(r.TargetBytes))
}
