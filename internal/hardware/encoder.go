// Package hardware detects available video encoders and manages
// per-device encode session limits.
package hardware

import (
	"fmt"

	"github.com/tfells/capsize/internal/errors"
)

// Encoder identifies a concrete encode backend.
type Encoder uint8

const (
	NvencH264 Encoder = iota
	NvencH265
	NvencAV1
	AmfH264
	AmfH265
	QsvH264
	QsvH265
	QsvAV1
	Vaapi
	VideoToolbox
	Software
)

// encoderIDs are the stable names used on the command line and in logs.
var encoderIDs = map[Encoder]string{
	NvencH264:    "nvenc-h264",
	NvencH265:    "nvenc-h265",
	NvencAV1:     "nvenc-av1",
	AmfH264:      "amf-h264",
	AmfH265:      "amf-h265",
	QsvH264:      "qsv-h264",
	QsvH265:      "qsv-h265",
	QsvAV1:       "qsv-av1",
	Vaapi:        "vaapi",
	VideoToolbox: "videotoolbox",
	Software:     "software",
}

// String returns the stable identifier for the encoder.
func (e Encoder) String() string {
	if id, ok := encoderIDs[e]; ok {
		return id
	}
	return fmt.Sprintf("encoder(%d)", uint8(e))
}

// ParseEncoder parses a command-line encoder identifier.
func ParseEncoder(s string) (Encoder, error) {
	for enc, id := range encoderIDs {
		if s == id {
			return enc, nil
		}
	}
	return Software, errors.NewValidationError(fmt.Sprintf(
		"unknown encoder '%s', valid options: nvenc-h264, nvenc-h265, nvenc-av1, amf-h264, amf-h265, qsv-h264, qsv-h265, qsv-av1, vaapi, videotoolbox, software", s))
}

// CodecName returns the ffmpeg encoder id for this backend.
func (e Encoder) CodecName() string {
	switch e {
	case NvencH264:
		return "h264_nvenc"
	case NvencH265:
		return "hevc_nvenc"
	case NvencAV1:
		return "av1_nvenc"
	case AmfH264:
		return "h264_amf"
	case AmfH265:
		return "hevc_amf"
	case QsvH264:
		return "h264_qsv"
	case QsvH265:
		return "hevc_qsv"
	case QsvAV1:
		return "av1_qsv"
	case Vaapi:
		return "h264_vaapi"
	case VideoToolbox:
		return "h264_videotoolbox"
	default:
		return "libx264"
	}
}

// StreamCodec returns the codec name ffprobe reports for streams this
// backend produces.
func (e Encoder) StreamCodec() string {
	switch e {
	case NvencH265, AmfH265, QsvH265:
		return "hevc"
	case NvencAV1, QsvAV1:
		return "av1"
	default:
		return "h264"
	}
}

// DisplayName returns a human-readable encoder name.
func (e Encoder) DisplayName() string {
	switch e {
	case NvencH264:
		return "NVIDIA NVENC H.264"
	case NvencH265:
		return "NVIDIA NVENC H.265"
	case NvencAV1:
		return "NVIDIA NVENC AV1"
	case AmfH264:
		return "AMD AMF H.264"
	case AmfH265:
		return "AMD AMF H.265"
	case QsvH264:
		return "Intel QuickSync H.264"
	case QsvH265:
		return "Intel QuickSync H.265"
	case QsvAV1:
		return "Intel QuickSync AV1"
	case Vaapi:
		return "VAAPI H.264"
	case VideoToolbox:
		return "Apple VideoToolbox H.264"
	default:
		return "Software x264"
	}
}

// Vendor returns the encoder vendor family.
func (e Encoder) Vendor() string {
	switch e {
	case NvencH264, NvencH265, NvencAV1:
		return "nvidia"
	case AmfH264, AmfH265:
		return "amd"
	case QsvH264, QsvH265, QsvAV1:
		return "intel"
	case Vaapi:
		return "vaapi"
	case VideoToolbox:
		return "apple"
	default:
		return "software"
	}
}

// SpeedMultiplier returns the empirical speed factor relative to
// single-threaded software encoding.
func (e Encoder) SpeedMultiplier() float64 {
	switch e {
	case NvencH264, NvencH265:
		return 8.0
	case QsvH264, QsvH265:
		return 7.0
	case NvencAV1, VideoToolbox:
		return 6.0
	case AmfH264, AmfH265:
		return 5.5
	case QsvAV1:
		return 5.0
	case Vaapi:
		return 4.0
	default:
		return 1.0
	}
}

// RelativeMemoryMB returns the static memory footprint estimate for the
// backend, before device VRAM is taken into account.
func (e Encoder) RelativeMemoryMB() uint64 {
	switch {
	case e.UsesCUDA():
		return 512
	case e.IsHardware():
		return 128
	default:
		return 256
	}
}

// IsHardware reports whether the encoder runs on dedicated hardware.
func (e Encoder) IsHardware() bool {
	return e != Software
}

// UsesCUDA reports whether the encoder runs through the CUDA stack and
// is bound to NVENC session limits.
func (e Encoder) UsesCUDA() bool {
	switch e {
	case NvencH264, NvencH265, NvencAV1:
		return true
	}
	return false
}

// CompatibilityVariant returns the H.264 encoder of the same family, for
// outputs that must play everywhere. Encoders that already produce H.264
// return themselves.
func (e Encoder) CompatibilityVariant() Encoder {
	switch e {
	case NvencH265, NvencAV1:
		return NvencH264
	case AmfH265:
		return AmfH264
	case QsvH265, QsvAV1:
		return QsvH264
	default:
		return e
	}
}

// PriorityOrder lists all encoders fastest-first, hardware before
// software. Fallback walks this order.
func PriorityOrder() []Encoder {
	return []Encoder{
		NvencH264,
		NvencH265,
		QsvH264,
		QsvH265,
		NvencAV1,
		VideoToolbox,
		AmfH264,
		AmfH265,
		QsvAV1,
		Vaapi,
		Software,
	}
}
