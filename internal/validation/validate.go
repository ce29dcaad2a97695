package validation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/util"
)

// durationToleranceSecs is the maximum allowed difference in duration
// between input and output.
const durationToleranceSecs = 1.0

// Expectation describes what the encode plan promised the output
// would look like.
type Expectation struct {
	TargetBytes    uint64
	Encoder        hardware.Encoder
	SourceDuration float64
	ExpectAudio    bool
}

// VerifyOutput checks the finished output file against the expectation.
// The size check is the contract: an output over the target is never
// valid, whatever else matches.
func VerifyOutput(ctx context.Context, analyzer MediaAnalyzer, outputPath string, exp Expectation) (*Result, error) {
	result := &Result{TargetBytes: exp.TargetBytes}

	size, err := analyzer.FileSize(outputPath)
	if err != nil {
		return nil, errors.NewIOError(fmt.Sprintf("failed to stat output %s", outputPath), err)
	}
	result.ActualBytes = size
	if exp.TargetBytes > 0 {
		result.Utilization = float64(size) / float64(exp.TargetBytes)
	}
	result.IsSizeOK, result.SizeMessage = validateSize(size, exp.TargetBytes)

	meta, err := analyzer.Analyze(ctx, outputPath)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("output %s is not a decodable video: %v", outputPath, err))
	}

	result.CodecName = meta.Codec
	result.IsCodecOK, result.CodecMessage = validateCodec(meta.Codec, exp.Encoder)

	result.ActualDuration = meta.DurationSeconds
	result.ExpectedDuration = exp.SourceDuration
	result.IsDurationOK, result.DurationMessage = validateDuration(meta.DurationSeconds, exp.SourceDuration)

	result.IsAudioOK, result.AudioMessage = validateAudio(meta.HasAudio, exp.ExpectAudio)

	return result, nil
}

// validateSize checks the output never exceeds the target.
func validateSize(actual, target uint64) (bool, string) {
	if actual <= target {
		used := 0.0
		if target > 0 {
			used = float64(actual) / float64(target) * 100
		}
		return true, fmt.Sprintf("Output is %s, within the %s target (%.1f%% used)",
			util.FormatBytes(actual), util.FormatBytes(target), used)
	}
	return false, fmt.Sprintf("Output is %s, exceeds the %s target by %s",
		util.FormatBytes(actual), util.FormatBytes(target), util.FormatBytes(actual-target))
}

// validateCodec checks the output stream carries the codec the chosen
// backend produces.
func validateCodec(actual string, enc hardware.Encoder) (bool, string) {
	expected := enc.StreamCodec()
	if strings.EqualFold(actual, expected) {
		return true, fmt.Sprintf("Codec is %s as encoded by %s", actual, enc.DisplayName())
	}
	return false, fmt.Sprintf("Codec mismatch: got %s, expected %s from %s",
		actual, expected, enc.DisplayName())
}

// validateDuration checks that duration is within acceptable tolerance.
func validateDuration(actual, expected float64) (bool, string) {
	diff := math.Abs(actual - expected)

	if diff <= durationToleranceSecs {
		return true, fmt.Sprintf("Duration matches input (%.1fs)", actual)
	}
	return false, fmt.Sprintf("Duration mismatch: got %.1fs, expected %.1fs (diff: %.1fs)",
		actual, expected, diff)
}

// validateAudio checks audio presence matches the plan's allocation.
func validateAudio(actual, expected bool) (bool, string) {
	switch {
	case actual == expected && actual:
		return true, "Audio track present as planned"
	case actual == expected:
		return true, "No audio, as planned"
	case actual:
		return false, "Unexpected audio track in output"
	default:
		return false, "Audio track missing from output"
	}
}
