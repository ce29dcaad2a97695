// Package plan computes encode parameters that keep output files under a
// byte target. The budget works backwards from the target: fixed audio
// allocation and container overhead come off the top, and the remainder
// becomes the video bitrate with a safety margin applied.
package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/probe"
	"github.com/tfells/capsize/internal/util"
)

// Budget constants
const (
	// AudioBitrateKbps is the fixed AAC audio allocation when the source
	// carries audio.
	AudioBitrateKbps uint32 = 128

	// ContainerOverheadFraction reserves space for MP4 container overhead.
	ContainerOverheadFraction float64 = 0.02

	// SafetyMarginFactor shaves the computed video bitrate so encoder rate
	// control drift stays inside the target.
	SafetyMarginFactor float64 = 0.95

	// MinVideoBitrateKbps is the floor below which output quality is
	// unusable and the target is rejected as infeasible.
	MinVideoBitrateKbps uint32 = 50

	// MaxCorrectiveRetries bounds how many re-encodes a size overshoot
	// may trigger.
	MaxCorrectiveRetries int = 2

	// RetryBitrateReduction is the video bitrate cut applied per
	// corrective retry.
	RetryBitrateReduction float64 = 0.10
)

// TargetSize is an output size ceiling: one of the preset megabyte sizes
// or an explicit byte count. Megabytes are binary (1 MB = 1048576 bytes).
type TargetSize struct {
	presetMB uint64
	bytes    uint64
}

// TargetFromPreset builds a TargetSize from a preset megabyte value.
func TargetFromPreset(mb uint64) (TargetSize, error) {
	if !config.IsValidTargetPreset(mb) {
		return TargetSize{}, errors.NewValidationError(
			fmt.Sprintf("unsupported target size %dmb, valid presets: 1mb, 5mb, 10mb, 30mb, 50mb", mb))
	}
	return TargetSize{presetMB: mb, bytes: mb * 1024 * 1024}, nil
}

// TargetFromBytes builds a TargetSize from an explicit byte count.
func TargetFromBytes(n uint64) (TargetSize, error) {
	if n == 0 {
		return TargetSize{}, errors.NewValidationError("target size must be greater than zero bytes")
	}
	return TargetSize{bytes: n}, nil
}

// ParseTarget parses a preset string such as "10mb" into a TargetSize.
func ParseTarget(s string) (TargetSize, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if !strings.HasSuffix(trimmed, "mb") {
		return TargetSize{}, errors.NewValidationError(
			fmt.Sprintf("unrecognized target size '%s', valid presets: 1mb, 5mb, 10mb, 30mb, 50mb", s))
	}

	mb, err := strconv.ParseUint(strings.TrimSuffix(trimmed, "mb"), 10, 64)
	if err != nil {
		return TargetSize{}, errors.NewValidationError(
			fmt.Sprintf("unrecognized target size '%s', valid presets: 1mb, 5mb, 10mb, 30mb, 50mb", s))
	}

	return TargetFromPreset(mb)
}

// Bytes returns the size ceiling in bytes.
func (t TargetSize) Bytes() uint64 {
	return t.bytes
}

// PresetMB returns the preset megabyte value, or 0 for explicit byte targets.
func (t TargetSize) PresetMB() uint64 {
	return t.presetMB
}

// IsPreset reports whether the target came from a preset.
func (t TargetSize) IsPreset() bool {
	return t.presetMB != 0
}

// Suffix returns the output filename suffix for this target.
func (t TargetSize) Suffix() string {
	return util.SuffixForTargetMB(t.presetMB)
}

// String returns a human-readable form of the target.
func (t TargetSize) String() string {
	if t.presetMB != 0 {
		return fmt.Sprintf("%d MB", t.presetMB)
	}
	return util.FormatBytes(t.bytes)
}

// EncodePlan is the resolved set of encode parameters for one session.
type EncodePlan struct {
	PlanID           string
	VideoBitrateKbps uint32
	AudioBitrateKbps uint32

	// QualityParam is an advisory CRF hint. Rate control from the bitrate
	// ceiling is what guarantees size, never this value.
	QualityParam *uint32

	Encoder  hardware.Encoder
	DeviceID *int
	TwoPass  bool
}

// Budget computes the video bitrate in kbps that fits the target.
//
// The whole target is expressed in bits, the fixed audio allocation and
// container overhead are subtracted, and the remainder is spread over the
// duration with a safety margin. Fails with an infeasible-target error
// when the result would drop below MinVideoBitrateKbps.
func Budget(meta *probe.VideoMetadata, target TargetSize) (uint32, error) {
	totalBits := float64(target.Bytes()) * 8.0

	var audioBits float64
	if meta.HasAudio {
		audioBits = float64(AudioBitrateKbps) * 1000.0 * meta.DurationSeconds
	}

	overheadBits := totalBits * ContainerOverheadFraction
	availableBits := totalBits - audioBits - overheadBits

	rawKbps := availableBits / meta.DurationSeconds / 1000.0
	finalKbps := rawKbps * SafetyMarginFactor

	if finalKbps < float64(MinVideoBitrateKbps) {
		return 0, errors.NewInfeasibleTargetError(target.Bytes(), meta.DurationSeconds, finalKbps, MinVideoBitrateKbps)
	}

	return uint32(finalKbps), nil
}

// NewPlan builds an EncodePlan for the given source and target.
// Software encodes run two-pass so the first pass can map bit
// distribution before rate control commits.
func NewPlan(meta *probe.VideoMetadata, target TargetSize, enc hardware.Encoder, deviceID *int) (*EncodePlan, error) {
	videoKbps, err := Budget(meta, target)
	if err != nil {
		return nil, err
	}

	var audioKbps uint32
	if meta.HasAudio {
		audioKbps = AudioBitrateKbps
	}

	return &EncodePlan{
		PlanID:           uuid.NewString(),
		VideoBitrateKbps: videoKbps,
		AudioBitrateKbps: audioKbps,
		Encoder:          enc,
		DeviceID:         deviceID,
		TwoPass:          enc == hardware.Software,
	}, nil
}

// ProjectedBytes returns the expected output size for the plan including
// container overhead.
func (p *EncodePlan) ProjectedBytes(durationSeconds float64) uint64 {
	streamBits := float64(p.VideoBitrateKbps+p.AudioBitrateKbps) * 1000.0 * durationSeconds
	return uint64(streamBits / 8.0 * (1.0 + ContainerOverheadFraction))
}

// TightenForRetry derives a plan with the video bitrate reduced by
// RetryBitrateReduction for a corrective re-encode after an overshoot.
// Returns false when the reduced bitrate would fall below the
// feasibility floor and no further retry is possible.
func (p *EncodePlan) TightenForRetry() (*EncodePlan, bool) {
	reduced := uint32(float64(p.VideoBitrateKbps) * (1.0 - RetryBitrateReduction))
	if reduced < MinVideoBitrateKbps {
		return nil, false
	}

	tightened := *p
	tightened.PlanID = uuid.NewString()
	tightened.VideoBitrateKbps = reduced
	return &tightened, true
}

// RetargetEncoder returns a copy of the plan bound to a different backend.
// Bitrate parameters never change across a backend fallback; only the
// encoder binding, pass mode, and device affinity are rebuilt.
func (p *EncodePlan) RetargetEncoder(enc hardware.Encoder) *EncodePlan {
	retargeted := *p
	retargeted.PlanID = uuid.NewString()
	retargeted.Encoder = enc
	retargeted.TwoPass = enc == hardware.Software
	if !enc.UsesCUDA() {
		retargeted.DeviceID = nil
	}
	return &retargeted
}

// WithQualityHint returns a copy of the plan carrying an advisory CRF.
func (p *EncodePlan) WithQualityHint(crf uint32) *EncodePlan {
	hinted := *p
	hinted.QualityParam = &crf
	return &hinted
}
