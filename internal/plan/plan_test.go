package plan

import (
	"errors"
	"testing"

	"github.com/tfells/capsize/internal/config"
	caperrors "github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/probe"
)

func makeMeta(durationSeconds float64, hasAudio bool) *probe.VideoMetadata {
	meta := &probe.VideoMetadata{
		DurationSeconds:   durationSeconds,
		Width:             1920,
		Height:            1080,
		SourceBitrateKbps: 8000,
		FrameRate:         30,
		Codec:             "h264",
		HasAudio:          hasAudio,
	}
	if hasAudio {
		meta.AudioChannels = 2
	}
	return meta
}

func mustTarget(t *testing.T, mb uint64) TargetSize {
	t.Helper()
	target, err := TargetFromPreset(mb)
	if err != nil {
		t.Fatalf("TargetFromPreset(%d) error = %v", mb, err)
	}
	return target
}

// checkSizeGuarantee verifies that the budgeted streams plus container
// overhead fit under the target.
func checkSizeGuarantee(t *testing.T, videoKbps, audioKbps uint32, durationSeconds float64, targetBytes uint64) {
	t.Helper()
	streamBits := float64(videoKbps+audioKbps) * 1000.0 * durationSeconds
	projected := streamBits / 8.0 * (1.0 + ContainerOverheadFraction)
	if projected > float64(targetBytes) {
		t.Errorf("projected size %.0f bytes exceeds target %d bytes (video=%d audio=%d duration=%.0fs)",
			projected, targetBytes, videoKbps, audioKbps, durationSeconds)
	}
}

func TestBudgetNormativeExample(t *testing.T) {
	// 60 second clip with audio targeting 10 MB
	meta := makeMeta(60, true)
	target := mustTarget(t, 10)

	got, err := Budget(meta, target)
	if err != nil {
		t.Fatalf("Budget() error = %v", err)
	}
	if got != 1180 {
		t.Errorf("Budget() = %d kbps, want 1180", got)
	}
}

func TestBudgetSizeGuarantee(t *testing.T) {
	durations := []float64{10, 60, 120, 600, 3600, 5400}
	targets := []uint64{1, 5, 10, 30, 50}

	for _, duration := range durations {
		for _, targetMB := range targets {
			for _, hasAudio := range []bool{false, true} {
				meta := makeMeta(duration, hasAudio)
				target := mustTarget(t, targetMB)

				videoKbps, err := Budget(meta, target)
				if err != nil {
					if !caperrors.IsKind(err, caperrors.KindInfeasibleTarget) {
						t.Errorf("Budget(%.0fs, %dmb, audio=%v) unexpected error kind: %v",
							duration, targetMB, hasAudio, err)
					}
					continue
				}

				if videoKbps < MinVideoBitrateKbps {
					t.Errorf("Budget(%.0fs, %dmb, audio=%v) = %d kbps, below floor %d",
						duration, targetMB, hasAudio, videoKbps, MinVideoBitrateKbps)
				}

				var audioKbps uint32
				if hasAudio {
					audioKbps = AudioBitrateKbps
				}
				checkSizeGuarantee(t, videoKbps, audioKbps, duration, target.Bytes())
			}
		}
	}
}

func TestBudgetMonotonicInTarget(t *testing.T) {
	meta := makeMeta(60, false)

	var prev uint32
	for _, targetMB := range config.TargetPresetsMB {
		got, err := Budget(meta, mustTarget(t, targetMB))
		if err != nil {
			t.Fatalf("Budget(%dmb) error = %v", targetMB, err)
		}
		if got < prev {
			t.Errorf("Budget(%dmb) = %d kbps, smaller than previous budget %d", targetMB, got, prev)
		}
		prev = got
	}
}

func TestBudgetAudioReducesVideoAllocation(t *testing.T) {
	target := mustTarget(t, 10)

	withAudio, err := Budget(makeMeta(60, true), target)
	if err != nil {
		t.Fatalf("Budget(with audio) error = %v", err)
	}
	withoutAudio, err := Budget(makeMeta(60, false), target)
	if err != nil {
		t.Fatalf("Budget(without audio) error = %v", err)
	}

	if withAudio >= withoutAudio {
		t.Errorf("Budget with audio = %d, want less than %d without audio", withAudio, withoutAudio)
	}
}

func TestBudgetInfeasibleTarget(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		hasAudio bool
		targetMB uint64
	}{
		{"two hours into 1mb", 7200, false, 1},
		{"audio alone exceeds 1mb", 120, true, 1},
		{"feature length into 5mb", 5400, true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := makeMeta(tt.duration, tt.hasAudio)
			_, err := Budget(meta, mustTarget(t, tt.targetMB))
			if err == nil {
				t.Fatal("Budget() expected infeasible target error, got nil")
			}
			if !caperrors.IsKind(err, caperrors.KindInfeasibleTarget) {
				t.Errorf("error kind = %v, want KindInfeasibleTarget", err)
			}

			var infeasible *caperrors.InfeasibleTargetError
			if !errors.As(err, &infeasible) {
				t.Fatal("error does not carry InfeasibleTargetError details")
			}
			if infeasible.FloorKbps != MinVideoBitrateKbps {
				t.Errorf("FloorKbps = %d, want %d", infeasible.FloorKbps, MinVideoBitrateKbps)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		input   string
		wantMB  uint64
		wantErr bool
	}{
		{"1mb", 1, false},
		{"5mb", 5, false},
		{"10mb", 10, false},
		{"30mb", 30, false},
		{"50mb", 50, false},
		{"10MB", 10, false},
		{" 5mb ", 5, false},
		{"3mb", 0, true},
		{"100mb", 0, true},
		{"10", 0, true},
		{"mb", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTarget(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTarget(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if err != nil {
				if !caperrors.IsKind(err, caperrors.KindValidation) {
					t.Errorf("ParseTarget(%q) error kind = %v, want KindValidation", tt.input, err)
				}
				return
			}
			if got.PresetMB() != tt.wantMB {
				t.Errorf("ParseTarget(%q).PresetMB() = %d, want %d", tt.input, got.PresetMB(), tt.wantMB)
			}
			if got.Bytes() != tt.wantMB*1024*1024 {
				t.Errorf("ParseTarget(%q).Bytes() = %d, want %d", tt.input, got.Bytes(), tt.wantMB*1024*1024)
			}
		})
	}
}

func TestTargetFromBytes(t *testing.T) {
	target, err := TargetFromBytes(7_500_000)
	if err != nil {
		t.Fatalf("TargetFromBytes() error = %v", err)
	}
	if target.Bytes() != 7_500_000 {
		t.Errorf("Bytes() = %d, want 7500000", target.Bytes())
	}
	if target.IsPreset() {
		t.Error("IsPreset() = true, want false for explicit byte target")
	}
	if target.Suffix() != "_compressed" {
		t.Errorf("Suffix() = %q, want %q", target.Suffix(), "_compressed")
	}

	if _, err := TargetFromBytes(0); err == nil {
		t.Error("TargetFromBytes(0) expected error, got nil")
	}
}

func TestTargetSuffixes(t *testing.T) {
	tests := []struct {
		mb   uint64
		want string
	}{
		{1, "_squeezed"},
		{5, "_compact"},
		{10, "_small"},
		{30, "_compressed"},
		{50, "_compressed"},
	}

	for _, tt := range tests {
		target := mustTarget(t, tt.mb)
		if got := target.Suffix(); got != tt.want {
			t.Errorf("Suffix(%dmb) = %q, want %q", tt.mb, got, tt.want)
		}
	}
}

func TestNewPlan(t *testing.T) {
	target := mustTarget(t, 10)

	t.Run("with audio", func(t *testing.T) {
		p, err := NewPlan(makeMeta(60, true), target, hardware.NvencH264, nil)
		if err != nil {
			t.Fatalf("NewPlan() error = %v", err)
		}
		if p.AudioBitrateKbps != AudioBitrateKbps {
			t.Errorf("AudioBitrateKbps = %d, want %d", p.AudioBitrateKbps, AudioBitrateKbps)
		}
		if p.TwoPass {
			t.Error("TwoPass = true, want false for hardware encoder")
		}
		if p.PlanID == "" {
			t.Error("PlanID is empty")
		}
		checkSizeGuarantee(t, p.VideoBitrateKbps, p.AudioBitrateKbps, 60, target.Bytes())
	})

	t.Run("without audio", func(t *testing.T) {
		p, err := NewPlan(makeMeta(60, false), target, hardware.Software, nil)
		if err != nil {
			t.Fatalf("NewPlan() error = %v", err)
		}
		if p.AudioBitrateKbps != 0 {
			t.Errorf("AudioBitrateKbps = %d, want 0", p.AudioBitrateKbps)
		}
		if !p.TwoPass {
			t.Error("TwoPass = false, want true for software encoder")
		}
	})

	t.Run("device passthrough", func(t *testing.T) {
		device := 1
		p, err := NewPlan(makeMeta(60, true), target, hardware.NvencH265, &device)
		if err != nil {
			t.Fatalf("NewPlan() error = %v", err)
		}
		if p.DeviceID == nil || *p.DeviceID != 1 {
			t.Errorf("DeviceID = %v, want 1", p.DeviceID)
		}
	})

	t.Run("infeasible target propagates", func(t *testing.T) {
		_, err := NewPlan(makeMeta(7200, true), mustTarget(t, 1), hardware.Software, nil)
		if err == nil {
			t.Fatal("NewPlan() expected error, got nil")
		}
		if !caperrors.IsKind(err, caperrors.KindInfeasibleTarget) {
			t.Errorf("error kind = %v, want KindInfeasibleTarget", err)
		}
	})
}

func TestProjectedBytesFitsTarget(t *testing.T) {
	target := mustTarget(t, 10)
	p, err := NewPlan(makeMeta(60, true), target, hardware.NvencH264, nil)
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}

	if projected := p.ProjectedBytes(60); projected > target.Bytes() {
		t.Errorf("ProjectedBytes() = %d, exceeds target %d", projected, target.Bytes())
	}
}

func TestTightenForRetry(t *testing.T) {
	base := &EncodePlan{
		PlanID:           "base",
		VideoBitrateKbps: 1000,
		AudioBitrateKbps: 128,
		Encoder:          hardware.NvencH264,
	}

	first, ok := base.TightenForRetry()
	if !ok {
		t.Fatal("TightenForRetry() = false, want true")
	}
	if first.VideoBitrateKbps != 900 {
		t.Errorf("first retry bitrate = %d, want 900", first.VideoBitrateKbps)
	}
	if first.PlanID == base.PlanID {
		t.Error("tightened plan should carry a fresh PlanID")
	}
	if first.AudioBitrateKbps != 128 {
		t.Errorf("audio bitrate changed to %d, want 128", first.AudioBitrateKbps)
	}

	second, ok := first.TightenForRetry()
	if !ok {
		t.Fatal("TightenForRetry() second = false, want true")
	}
	if second.VideoBitrateKbps != 810 {
		t.Errorf("second retry bitrate = %d, want 810", second.VideoBitrateKbps)
	}

	// Original plan untouched
	if base.VideoBitrateKbps != 1000 {
		t.Errorf("base plan mutated to %d kbps", base.VideoBitrateKbps)
	}
}

func TestTightenForRetryFloor(t *testing.T) {
	base := &EncodePlan{VideoBitrateKbps: 54}

	if _, ok := base.TightenForRetry(); ok {
		t.Error("TightenForRetry() below floor = true, want false")
	}
}

func TestRetargetEncoder(t *testing.T) {
	device := 1
	base := &EncodePlan{
		PlanID:           "original",
		VideoBitrateKbps: 1180,
		AudioBitrateKbps: 128,
		Encoder:          hardware.NvencH265,
		DeviceID:         &device,
		TwoPass:          false,
	}

	t.Run("to software", func(t *testing.T) {
		got := base.RetargetEncoder(hardware.Software)
		if got.Encoder != hardware.Software {
			t.Errorf("Encoder = %v, want %v", got.Encoder, hardware.Software)
		}
		if !got.TwoPass {
			t.Error("TwoPass = false, want true for software")
		}
		if got.DeviceID != nil {
			t.Errorf("DeviceID = %v, want nil for non-CUDA backend", *got.DeviceID)
		}
		if got.VideoBitrateKbps != base.VideoBitrateKbps || got.AudioBitrateKbps != base.AudioBitrateKbps {
			t.Errorf("bitrates changed: video %d audio %d, want %d and %d",
				got.VideoBitrateKbps, got.AudioBitrateKbps, base.VideoBitrateKbps, base.AudioBitrateKbps)
		}
		if got.PlanID == base.PlanID {
			t.Error("retargeted plan reused the original PlanID")
		}
	})

	t.Run("within cuda keeps device", func(t *testing.T) {
		got := base.RetargetEncoder(hardware.NvencH264)
		if got.DeviceID == nil || *got.DeviceID != device {
			t.Errorf("DeviceID = %v, want %d", got.DeviceID, device)
		}
		if got.TwoPass {
			t.Error("TwoPass = true, want false for hardware backend")
		}
	})

	t.Run("to non-cuda hardware drops device", func(t *testing.T) {
		got := base.RetargetEncoder(hardware.QsvH264)
		if got.DeviceID != nil {
			t.Errorf("DeviceID = %v, want nil", *got.DeviceID)
		}
	})

	if base.Encoder != hardware.NvencH265 || base.DeviceID == nil {
		t.Error("base plan mutated by RetargetEncoder")
	}
}

func TestWithQualityHint(t *testing.T) {
	base := &EncodePlan{VideoBitrateKbps: 1000}

	hinted := base.WithQualityHint(28)
	if hinted.QualityParam == nil || *hinted.QualityParam != 28 {
		t.Errorf("QualityParam = %v, want 28", hinted.QualityParam)
	}
	if base.QualityParam != nil {
		t.Error("base plan mutated by WithQualityHint")
	}
}
