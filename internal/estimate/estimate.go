// Package estimate predicts output sizes and recommends quality
// settings. Predictions are advisory: rate control from the plan's
// bitrate ceiling is what guarantees size, so an estimate that misses
// costs quality, never the size target.
package estimate

import (
	"math"
	"time"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/probe"
)

// Search constants
const (
	// SearchCRFMin and SearchCRFMax bound the quality search range.
	SearchCRFMin uint32 = 18
	SearchCRFMax uint32 = 51

	// ClampCRFMin and ClampCRFMax bound the recommendation actually
	// issued, keeping hints inside the visually useful band.
	ClampCRFMin uint32 = 20
	ClampCRFMax uint32 = 40

	// MaxSearchIterations bounds the binary search.
	MaxSearchIterations int = 10

	// SearchToleranceBytes is the convergence window around the target.
	SearchToleranceBytes uint64 = 512 * 1024
)

// Curve constants. The bits-per-pixel model anchors on x264 at CRF 23
// and halves roughly every six CRF steps.
const (
	referenceCRF float64 = 23
	referenceBPP float64 = 0.08
	crfHalving   float64 = 6
)

// Complexity classifies how hard a source is to compress.
type Complexity uint8

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

// String returns the complexity label.
func (c Complexity) String() string {
	switch c {
	case ComplexityHigh:
		return "high"
	case ComplexityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ClassifyComplexity buckets a source by its bits per pixel per frame.
// Dense sources (grain, action) carry more information per pixel.
func ClassifyComplexity(meta *probe.VideoMetadata) Complexity {
	bpp := meta.BitsPerPixel()
	switch {
	case bpp > 0.2:
		return ComplexityHigh
	case bpp > 0.1:
		return ComplexityMedium
	default:
		return ComplexityLow
	}
}

// adjustmentFor returns the prediction multiplier for a complexity class.
func adjustmentFor(c Complexity) float64 {
	switch c {
	case ComplexityHigh:
		return 0.9
	case ComplexityMedium:
		return 1.0
	default:
		return 1.1
	}
}

// efficiencyFor returns quality-per-bit relative to software x264.
// Predicted size scales inversely: less efficient backends emit larger
// files at the same quality setting.
func efficiencyFor(enc hardware.Encoder) float64 {
	switch enc {
	case hardware.NvencH264:
		return 0.85
	case hardware.NvencH265:
		return 0.90
	case hardware.NvencAV1:
		return 0.95
	case hardware.AmfH264:
		return 0.80
	case hardware.AmfH265:
		return 0.85
	case hardware.QsvH264:
		return 0.82
	case hardware.QsvH265:
		return 0.87
	case hardware.QsvAV1:
		return 0.92
	case hardware.Vaapi:
		return 0.80
	case hardware.VideoToolbox:
		return 0.83
	default:
		return 1.00
	}
}

// bppForCRF maps a CRF value to predicted bits per pixel per frame.
// Strictly decreasing in CRF.
func bppForCRF(crf uint32) float64 {
	return referenceBPP * math.Pow(2, (referenceCRF-float64(crf))/crfHalving)
}

// PredictSize predicts the output size in bytes for encoding the source
// at the given CRF with the given backend. Includes the fixed audio
// allocation and container overhead so predictions compare directly
// against targets.
func PredictSize(meta *probe.VideoMetadata, enc hardware.Encoder, crf uint32) uint64 {
	frameRate := meta.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	pixelsPerSecond := float64(meta.Width) * float64(meta.Height) * frameRate
	videoBits := pixelsPerSecond * meta.DurationSeconds * bppForCRF(crf)
	videoBits *= adjustmentFor(ClassifyComplexity(meta))
	videoBits /= efficiencyFor(enc)

	var audioBits float64
	if meta.HasAudio {
		audioBits = 128000.0 * meta.DurationSeconds
	}

	totalBits := (videoBits + audioBits) * 1.02
	return uint64(totalBits / 8.0)
}

// RecommendQuality binary-searches for the CRF whose predicted size
// lands closest to targetBytes, then clamps the result to the useful
// band. Higher CRF means smaller output, so the search walks up when
// the prediction overshoots.
func RecommendQuality(meta *probe.VideoMetadata, enc hardware.Encoder, targetBytes uint64) uint32 {
	lo, hi := SearchCRFMin, SearchCRFMax
	crf := (lo + hi) / 2

	for i := 0; i < MaxSearchIterations && lo <= hi; i++ {
		crf = (lo + hi) / 2
		predicted := PredictSize(meta, enc, crf)

		if within(predicted, targetBytes, SearchToleranceBytes) {
			break
		}

		if predicted > targetBytes {
			lo = crf + 1
		} else {
			hi = crf - 1
		}
	}

	return clampCRF(crf)
}

// within reports whether got is inside tolerance of want.
func within(got, want, tolerance uint64) bool {
	if got > want {
		return got-want <= tolerance
	}
	return want-got <= tolerance
}

func clampCRF(crf uint32) uint32 {
	if crf < ClampCRFMin {
		return ClampCRFMin
	}
	if crf > ClampCRFMax {
		return ClampCRFMax
	}
	return crf
}

// EstimateEncodingTime predicts wall-clock encode time: a software x264
// baseline of a fifth of the source duration, scaled down by the
// backend speed multiplier and up or down by the speed preset.
func EstimateEncodingTime(meta *probe.VideoMetadata, enc hardware.Encoder, preset config.SpeedPreset) time.Duration {
	baseSeconds := meta.DurationSeconds * 0.2
	seconds := baseSeconds / enc.SpeedMultiplier() * presetModifier(preset)
	return time.Duration(seconds * float64(time.Second))
}

// presetModifier scales the time estimate by preset.
func presetModifier(preset config.SpeedPreset) float64 {
	switch preset {
	case config.SpeedFast:
		return 0.7
	case config.SpeedQuality:
		return 1.5
	default:
		return 1.0
	}
}
