// Package probe extracts media information from input files using ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/util"
)

// VideoMetadata describes the input file properties the planner and
// estimator operate on.
type VideoMetadata struct {
	DurationSeconds   float64
	Width             uint32
	Height            uint32
	SourceBitrateKbps uint32
	FrameRate         float64
	Codec             string
	HasAudio          bool
	AudioChannels     uint32
	SizeBytes         uint64
	IsHDR             bool
}

// BitsPerPixel returns the source bits per pixel per frame, used to
// classify content complexity. Returns 0 when dimensions or frame rate
// are unknown.
func (m *VideoMetadata) BitsPerPixel() float64 {
	if m.Width == 0 || m.Height == 0 || m.FrameRate <= 0 {
		return 0
	}
	return float64(m.SourceBitrateKbps) * 1000.0 / (float64(m.Width) * float64(m.Height) * m.FrameRate)
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType      string `json:"codec_type"`
	CodecName      string `json:"codec_name"`
	Width          int64  `json:"width"`
	Height         int64  `json:"height"`
	BitRate        string `json:"bit_rate"`
	AvgFrameRate   string `json:"avg_frame_rate"`
	RFrameRate     string `json:"r_frame_rate"`
	Channels       int    `json:"channels"`
	ColorPrimaries string `json:"color_primaries"`
	ColorTransfer  string `json:"color_transfer"`
	ColorSpace     string `json:"color_space"`
}

// Probe inspects inputPath with ffprobe and returns its metadata.
// All failures are probe errors: the file could not be read, carries no
// video stream, or reports a zero duration.
func Probe(ctx context.Context, ffprobePath, inputPath string) (*VideoMetadata, error) {
	raw, err := runFFprobe(ctx, ffprobePath, inputPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError()
		}
		return nil, errors.NewProbeError(fmt.Sprintf("ffprobe failed for %s", inputPath), err)
	}

	out, err := parseFFprobeOutput(raw)
	if err != nil {
		return nil, errors.NewProbeError(fmt.Sprintf("unparseable ffprobe output for %s", inputPath), err)
	}

	meta, err := extractMetadata(out, inputPath)
	if err != nil {
		return nil, err
	}

	if meta.SizeBytes == 0 {
		if size, statErr := util.GetFileSize(inputPath); statErr == nil {
			meta.SizeBytes = size
		}
	}

	return meta, nil
}

// runFFprobe executes ffprobe and returns its raw JSON output.
func runFFprobe(ctx context.Context, ffprobePath, inputPath string) ([]byte, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)

	return cmd.Output()
}

// parseFFprobeOutput decodes raw ffprobe JSON.
func parseFFprobeOutput(data []byte) (*ffprobeOutput, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// extractMetadata builds VideoMetadata from parsed ffprobe output,
// validating that the file is usable as an encode source.
func extractMetadata(out *ffprobeOutput, inputPath string) (*VideoMetadata, error) {
	var video *ffprobeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}

	if video == nil {
		return nil, errors.NewProbeError(fmt.Sprintf("no video stream found in %s", inputPath), nil)
	}

	if video.Width <= 0 || video.Height <= 0 {
		return nil, errors.NewProbeError(
			fmt.Sprintf("invalid dimensions in %s: %dx%d", inputPath, video.Width, video.Height), nil)
	}

	duration := parseFloatField(out.Format.Duration)
	if duration <= 0 {
		return nil, errors.NewProbeError(
			fmt.Sprintf("zero or unknown duration in %s", inputPath), nil)
	}

	meta := &VideoMetadata{
		DurationSeconds: duration,
		Width:           uint32(video.Width),
		Height:          uint32(video.Height),
		Codec:           video.CodecName,
		FrameRate:       extractFrameRate(video),
		SizeBytes:       parseUintField(out.Format.Size),
		IsHDR:           detectHDR(video.ColorPrimaries, video.ColorTransfer, video.ColorSpace),
	}

	meta.SourceBitrateKbps = extractBitrateKbps(out, video, meta)

	for _, stream := range out.Streams {
		if stream.CodecType == "audio" && stream.Channels > 0 {
			meta.HasAudio = true
			meta.AudioChannels = uint32(stream.Channels)
			break
		}
	}

	return meta, nil
}

// extractFrameRate prefers the average frame rate and falls back to the
// raw one. Both arrive as fractions like "30000/1001".
func extractFrameRate(video *ffprobeStream) float64 {
	if fps := util.ParseFrameRate(video.AvgFrameRate); fps > 0 {
		return fps
	}
	return util.ParseFrameRate(video.RFrameRate)
}

// extractBitrateKbps resolves the source bitrate: the video stream rate
// when present, then the container rate, then size over duration.
func extractBitrateKbps(out *ffprobeOutput, video *ffprobeStream, meta *VideoMetadata) uint32 {
	if bps := parseUintField(video.BitRate); bps > 0 {
		return uint32(bps / 1000)
	}
	if bps := parseUintField(out.Format.BitRate); bps > 0 {
		return uint32(bps / 1000)
	}
	if meta.SizeBytes > 0 && meta.DurationSeconds > 0 {
		return uint32(float64(meta.SizeBytes) * 8.0 / meta.DurationSeconds / 1000.0)
	}
	return 0
}

func parseFloatField(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseUintField(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// detectHDR determines if content is HDR based on color metadata.
func detectHDR(primaries, transfer, matrix string) bool {
	// BT.2020 / BT.2100 primaries
	if containsCI(primaries, "bt2020") || containsCI(primaries, "bt.2020") || containsCI(primaries, "bt2100") {
		return true
	}

	// PQ and HLG transfer characteristics
	if containsCI(transfer, "pq") || containsCI(transfer, "smpte2084") || containsCI(transfer, "hlg") || containsCI(transfer, "arib-std-b67") {
		return true
	}

	if containsCI(matrix, "bt2020") || containsCI(matrix, "bt.2020") {
		return true
	}

	return false
}

// containsCI performs a case-insensitive substring check.
func containsCI(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
