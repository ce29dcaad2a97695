package ffmpeg

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/util"
)

// Progress represents encoding progress information.
type Progress struct {
	CurrentFrame uint64
	TotalFrames  uint64
	Percent      float32
	Speed        float32
	FPS          float32
	ETA          time.Duration
	Bitrate      string
	ElapsedSecs  float64
	Pass         int
	TotalPasses  int
}

// Fraction returns overall progress in [0,1].
func (p Progress) Fraction() float64 {
	return float64(p.Percent) / 100.0
}

// ProgressCallback is called with progress updates during encoding.
type ProgressCallback func(Progress)

// Result contains the result of a backend encode operation.
type Result struct {
	Success bool
	Error   error
	Stderr  string
}

var timeRegex = regexp.MustCompile(`time=(\d{2}:\d{2}:\d{2}\.?\d*)`)

// stderrTailLines bounds how much backend output rides along on errors.
const stderrTailLines = 10

// RunEncode executes a full encode, running both passes for two-pass
// plans, with progress reported across the whole operation. Percentages
// from a pass are scaled into the overall range, so a two-pass encode
// reports 0-50 during analysis and 50-100 during the encode proper.
func RunEncode(ctx context.Context, params *EncodeParams, callback ProgressCallback) Result {
	passes := params.PassCount()
	if passes > 1 {
		defer removePassLogs(params.passLog())
	}

	var result Result
	for pass := 1; pass <= passes; pass++ {
		if ctx.Err() != nil {
			return Result{Error: errors.NewCancelledError()}
		}
		passArg := pass
		if passes == 1 {
			passArg = 0
		}
		result = runPass(ctx, params, passArg, pass, passes, callback)
		if !result.Success {
			return result
		}
	}
	return result
}

func runPass(ctx context.Context, params *EncodeParams, passArg, passIndex, passCount int, callback ProgressCallback) Result {
	args := BuildArgs(params, passArg)
	ffmpegPath := params.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Error: errors.NewCommandStartError(ffmpegPath, err)}
	}
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return Result{Error: errors.NewCancelledError()}
		}
		return Result{Error: errors.NewCommandStartError(ffmpegPath, err)}
	}

	scaled := callback
	if callback != nil {
		scaled = func(p Progress) {
			callback(scalePassProgress(p, passIndex, passCount))
		}
	}

	var stderrBuilder strings.Builder
	parseProgress(stderr, &stderrBuilder, params.DurationSeconds, params.TotalFrames, scaled)

	err = cmd.Wait()
	stderrStr := stderrBuilder.String()

	if err != nil {
		if ctx.Err() != nil {
			return Result{Error: errors.NewCancelledError(), Stderr: stderrStr}
		}
		wrapped := errors.WrapExecError(ffmpegPath, err, stderrTail(stderrStr))
		return Result{
			Error:  errors.NewBackendEncodeError(params.Encoder.String(), "backend exited with an error", wrapped),
			Stderr: stderrStr,
		}
	}

	return Result{Success: true, Stderr: stderrStr}
}

// scalePassProgress maps a single pass's percentage into the overall
// range for the whole encode.
func scalePassProgress(p Progress, passIndex, passCount int) Progress {
	p.Pass = passIndex
	p.TotalPasses = passCount
	p.Percent = (float32(passIndex-1)*100 + p.Percent) / float32(passCount)
	return p
}

func removePassLogs(prefix string) {
	// x264 writes <prefix>-0.log plus an mbtree sidecar.
	_ = util.RemoveIfExists(prefix + "-0.log")
	_ = util.RemoveIfExists(prefix + "-0.log.mbtree")
}

// stderrTail keeps the last few lines of backend output, which is where
// ffmpeg puts the actual failure reason.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimRight(stderr, "\r\n"), "\n")
	if len(lines) > stderrTailLines {
		lines = lines[len(lines)-stderrTailLines:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parseProgress reads backend stderr and parses progress updates.
// Progress lines are terminated with \r, so reading is byte-wise rather
// than line-scanned.
func parseProgress(stderr io.Reader, stderrBuilder *strings.Builder, duration float64, totalFrames uint64, callback ProgressCallback) {
	reader := bufio.NewReader(stderr)
	var lineBuf strings.Builder

	for {
		b, err := reader.ReadByte()
		if err != nil {
			break
		}

		stderrBuilder.WriteByte(b)

		if b == '\r' || b == '\n' {
			line := lineBuf.String()
			lineBuf.Reset()

			if callback != nil && strings.Contains(line, "frame=") {
				progress := parseProgressLine(line, duration, totalFrames)
				if progress != nil {
					callback(*progress)
				}
			}
		} else {
			lineBuf.WriteByte(b)
		}
	}
}

// parseProgressLine extracts progress information from a backend status line.
func parseProgressLine(line string, duration float64, totalFrames uint64) *Progress {
	var elapsedSecs float64
	if matches := timeRegex.FindStringSubmatch(line); len(matches) >= 2 {
		if secs, ok := util.ParseFFmpegTime(matches[1]); ok {
			elapsedSecs = secs
		}
	}

	var frame uint64
	var fps, speed float32
	var bitrate string

	if idx := strings.Index(line, "frame="); idx >= 0 {
		remaining := strings.TrimLeft(line[idx+6:], " ")
		if spaceIdx := strings.IndexAny(remaining, " \t"); spaceIdx > 0 {
			if f, err := strconv.ParseUint(remaining[:spaceIdx], 10, 64); err == nil {
				frame = f
			}
		}
	}

	if idx := strings.Index(line, "fps="); idx >= 0 {
		remaining := strings.TrimLeft(line[idx+4:], " ")
		if spaceIdx := strings.IndexAny(remaining, " \t"); spaceIdx > 0 {
			if f, err := strconv.ParseFloat(remaining[:spaceIdx], 32); err == nil {
				fps = float32(f)
			}
		}
	}

	if idx := strings.Index(line, "bitrate="); idx >= 0 {
		remaining := strings.TrimLeft(line[idx+8:], " ")
		if spaceIdx := strings.IndexAny(remaining, " \t"); spaceIdx > 0 {
			bitrate = remaining[:spaceIdx]
		}
	}

	if idx := strings.Index(line, "speed="); idx >= 0 {
		remaining := strings.TrimLeft(line[idx+6:], " ")
		if spaceIdx := strings.IndexAny(remaining, " \t\r\n"); spaceIdx > 0 {
			remaining = remaining[:spaceIdx]
		}
		remaining = strings.TrimSuffix(remaining, "x")
		if s, err := strconv.ParseFloat(remaining, 32); err == nil {
			speed = float32(s)
		}
	}

	var percent float32
	if duration > 0 {
		percent = float32((elapsedSecs / duration) * 100)
		if percent > 100 {
			percent = 100
		}
	}

	var eta time.Duration
	if speed > 0 && duration > 0 {
		remainingDuration := duration - elapsedSecs
		eta = time.Duration(remainingDuration/float64(speed)) * time.Second
	}

	return &Progress{
		CurrentFrame: frame,
		TotalFrames:  totalFrames,
		Percent:      percent,
		Speed:        speed,
		FPS:          fps,
		ETA:          eta,
		Bitrate:      bitrate,
		ElapsedSecs:  elapsedSecs,
	}
}
