// Package ffmpeg builds and runs the backend encode commands.
package ffmpeg

import (
	"fmt"
	"os"
	"strconv"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/hardware"
)

// DefaultRenderNode is the DRM render node handed to VAAPI encodes.
const DefaultRenderNode = "/dev/dri/renderD128"

// EncodeParams describes a single backend invocation: input, output, the
// encoder binding, and the rate-control numbers the budget produced.
type EncodeParams struct {
	FFmpegPath string
	InputPath  string
	OutputPath string

	Encoder          hardware.Encoder
	DeviceID         *int
	VideoBitrateKbps uint32
	AudioBitrateKbps uint32             // 0 drops the audio stream entirely
	QualityParam     *uint32
	TwoPass          bool
	Speed            config.SpeedPreset
	IsHDR            bool               // source uses an HDR transfer curve; forces the tone-map filter

	// DurationSeconds and TotalFrames come from the probe and drive
	// progress percentages; neither affects the produced output.
	DurationSeconds float64
	TotalFrames     uint64

	// PassLogPrefix is the base path for two-pass stat files. Derived
	// from OutputPath when empty.
	PassLogPrefix string
}

// PassCount reports how many backend invocations the encode needs.
// Two-pass applies only to bitrate-targeted software encodes; a quality
// hint switches x264 to capped-CRF in a single pass, since pass stats
// assume a fixed bitrate.
func (p *EncodeParams) PassCount() int {
	if p.TwoPass && p.QualityParam == nil {
		return 2
	}
	return 1
}

func (p *EncodeParams) passLog() string {
	if p.PassLogPrefix != "" {
		return p.PassLogPrefix
	}
	return p.OutputPath + ".passlog"
}

// BuildArgs assembles the ffmpeg argument list for one invocation.
// pass is 0 for single-pass encodes, 1 or 2 for the two-pass stages.
// The first pass analyzes only: audio is dropped and output goes to the
// null muxer. Video filters apply on every pass so the rate stats match
// the frames the second pass encodes.
func BuildArgs(p *EncodeParams, pass int) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	args = append(args, inputAccelArgs(p)...)
	args = append(args, "-i", p.InputPath)
	args = append(args, "-c:v", p.Encoder.CodecName())
	args = append(args, rateControlArgs(p)...)
	args = append(args, encoderTuneArgs(p)...)
	args = append(args, videoFilterArgs(p)...)

	if pass > 0 {
		args = append(args, "-pass", strconv.Itoa(pass), "-passlogfile", p.passLog())
	}
	if pass == 1 {
		args = append(args, "-an", "-f", "null", os.DevNull)
		return args
	}

	args = append(args, audioArgs(p)...)
	args = append(args, "-movflags", "+faststart")
	args = append(args, p.OutputPath)
	return args
}

// inputAccelArgs returns the decode-side acceleration flags. These precede
// -i on the command line. QSV and AMF decode in software; only their
// encoders are hardware-backed.
func inputAccelArgs(p *EncodeParams) []string {
	switch {
	case p.Encoder.UsesCUDA():
		args := []string{"-hwaccel", "cuda"}
		if p.DeviceID != nil {
			args = append(args, "-hwaccel_device", strconv.Itoa(*p.DeviceID))
		}
		return args
	case p.Encoder == hardware.Vaapi:
		return []string{"-vaapi_device", DefaultRenderNode}
	case p.Encoder == hardware.VideoToolbox:
		return []string{"-hwaccel", "videotoolbox"}
	default:
		return nil
	}
}

// rateControlArgs caps the stream at the budgeted bitrate. maxrate equals
// the target bitrate so transient spikes cannot break the size guarantee;
// bufsize at twice the bitrate smooths allocation within that cap.
func rateControlArgs(p *EncodeParams) []string {
	bitrate := fmt.Sprintf("%dk", p.VideoBitrateKbps)
	bufsize := fmt.Sprintf("%dk", p.VideoBitrateKbps*2)
	return []string{"-b:v", bitrate, "-maxrate", bitrate, "-bufsize", bufsize}
}

// encoderTuneArgs returns the per-family rate-control and preset flags.
// The advisory quality parameter is honored only by backends that support
// capped-quality modes under a maxrate ceiling (NVENC -cq, x264 -crf);
// the rest stay on plain VBR.
func encoderTuneArgs(p *EncodeParams) []string {
	switch p.Encoder {
	case hardware.NvencH264, hardware.NvencH265, hardware.NvencAV1:
		args := []string{"-preset", nvencPreset(p.Speed), "-rc", "vbr", "-multipass", "fullres"}
		if p.QualityParam != nil {
			args = append(args, "-cq", strconv.FormatUint(uint64(*p.QualityParam), 10))
		}
		return args
	case hardware.AmfH264, hardware.AmfH265:
		return []string{"-quality", amfQuality(p.Speed), "-rc", "vbr_latency"}
	case hardware.QsvH264, hardware.QsvH265, hardware.QsvAV1:
		return []string{"-preset", qsvPreset(p.Speed), "-look_ahead", "1"}
	case hardware.Vaapi:
		return []string{"-profile:v", "main", "-level", "4.0"}
	case hardware.VideoToolbox:
		return []string{"-profile:v", "main"}
	default:
		args := []string{"-preset", x264Preset(p.Speed)}
		if p.QualityParam != nil {
			args = append(args, "-crf", strconv.FormatUint(uint64(*p.QualityParam), 10))
		}
		return args
	}
}

func audioArgs(p *EncodeParams) []string {
	if p.AudioBitrateKbps == 0 {
		return []string{"-an"}
	}
	return []string{"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", p.AudioBitrateKbps), "-ac", "2"}
}

func nvencPreset(s config.SpeedPreset) string {
	switch s {
	case config.SpeedFast:
		return "p2"
	case config.SpeedQuality:
		return "p6"
	default:
		return "p4"
	}
}

func amfQuality(s config.SpeedPreset) string {
	switch s {
	case config.SpeedFast:
		return "speed"
	case config.SpeedQuality:
		return "quality"
	default:
		return "balanced"
	}
}

func qsvPreset(s config.SpeedPreset) string {
	switch s {
	case config.SpeedFast:
		return "veryfast"
	case config.SpeedQuality:
		return "veryslow"
	default:
		return "medium"
	}
}

func x264Preset(s config.SpeedPreset) string {
	switch s {
	case config.SpeedFast:
		return "veryfast"
	case config.SpeedQuality:
		return "slow"
	default:
		return "medium"
	}
}
