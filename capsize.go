// Package capsize compresses videos to a guaranteed maximum output size.
//
// Capsize is an opinionated FFmpeg wrapper that turns a size target into a
// bitrate budget, picks the fastest usable encoder on the machine, and
// verifies the result, re-encoding at tighter bitrates when the first
// attempt lands over target.
//
// Basic usage:
//
//	comp, err := capsize.New(
//	    capsize.WithTargetPreset(10),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := comp.Compress(ctx, "input.mkv", "output/", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Compressed: %s (%.1f%% of target)\n",
//	    result.OutputFile, result.TargetUtilization*100)
package capsize

import (
	"context"
	"io"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/discovery"
	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/plan"
	"github.com/tfells/capsize/internal/processing"
	"github.com/tfells/capsize/internal/reporter"
	"github.com/tfells/capsize/internal/session"
	"github.com/tfells/capsize/internal/util"
)

// Re-exported types so callers never import internal packages.
type (
	Reporter     = reporter.Reporter
	TargetSize   = plan.TargetSize
	Capabilities = hardware.Capabilities
	Device       = hardware.Device
	SpeedPreset  = config.SpeedPreset
)

const (
	SpeedFast     = config.SpeedFast
	SpeedBalanced = config.SpeedBalanced
	SpeedQuality  = config.SpeedQuality
)

// ParseTarget converts a target size string to a TargetSize. Valid values
// are the presets "1mb", "5mb", "10mb", "30mb", and "50mb".
func ParseTarget(s string) (TargetSize, error) {
	return plan.ParseTarget(s)
}

// ParseSpeedPreset converts a speed string to a SpeedPreset. Valid values
// are "fast", "balanced", and "quality" (case-insensitive).
func ParseSpeedPreset(s string) (SpeedPreset, error) {
	return config.ParseSpeedPreset(s)
}

// NewTerminalReporter returns a Reporter that renders progress to the
// terminal.
func NewTerminalReporter(verbose bool) Reporter {
	return reporter.NewTerminalReporter(verbose)
}

// NewJSONReporter returns a Reporter that emits NDJSON events to w.
func NewJSONReporter(w io.Writer) Reporter {
	return reporter.NewJSONReporterWithWriter(w)
}

// NewCompositeReporter fans events out to several reporters.
func NewCompositeReporter(reporters ...Reporter) Reporter {
	return reporter.NewCompositeReporter(reporters...)
}

// Compressor is the main entry point for size-targeted compression.
type Compressor struct {
	config   *config.Config
	registry *hardware.Registry
}

// Result contains the outcome of a single file compression.
type Result struct {
	OutputFile           string
	Success              bool
	Err                  error
	OriginalSize         uint64
	CompressedSize       uint64
	TargetSize           uint64
	TargetUtilization    float64
	SizeReductionPercent float64
	Encoder              string
	Retries              int
	EncodingSpeed        float32
}

// BatchResult contains the result of a batch compression.
type BatchResult struct {
	Results            []Result
	TotalFiles         int
	SuccessfulCount    int
	FailedCount        int
	TotalSizeReduction float64
}

// Option configures the compressor.
type Option func(*config.Config)

// New creates a new Compressor with the given options.
func New(opts ...Option) (*Compressor, error) {
	cfg := config.NewConfig("", "")

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Compressor{
		config:   cfg,
		registry: hardware.NewRegistry(cfg.FFmpegPath),
	}, nil
}

// WithTargetPreset sets the target size to one of the preset values
// (1, 5, 10, 30, or 50 MB).
func WithTargetPreset(mb uint64) Option {
	return func(c *config.Config) {
		c.TargetMB = mb
		c.TargetBytes = 0
	}
}

// WithTargetBytes sets an explicit target size in bytes.
func WithTargetBytes(n uint64) Option {
	return func(c *config.Config) {
		c.TargetBytes = n
	}
}

// WithTarget applies a parsed TargetSize.
func WithTarget(t TargetSize) Option {
	return func(c *config.Config) {
		if t.IsPreset() {
			c.TargetMB = t.PresetMB()
			c.TargetBytes = 0
		} else {
			c.TargetBytes = t.Bytes()
		}
	}
}

// WithEncoder pins a specific encoder instead of automatic selection.
// Selection fails rather than substituting when it is unavailable.
func WithEncoder(name string) Option {
	return func(c *config.Config) {
		c.Encoder = name
	}
}

// WithForceSoftware skips hardware encoders entirely.
func WithForceSoftware() Option {
	return func(c *config.Config) {
		c.ForceSoftware = true
	}
}

// WithAutoQuality adds an advisory quality hint to the encode plan from
// the size estimator.
func WithAutoQuality() Option {
	return func(c *config.Config) {
		c.AutoQuality = true
	}
}

// WithDevice pins the hardware device index for multi-GPU machines.
func WithDevice(id int) Option {
	return func(c *config.Config) {
		c.DeviceID = id
	}
}

// WithQueueOnBusy waits for a free device session instead of falling back
// to software encoding when every slot is taken.
func WithQueueOnBusy() Option {
	return func(c *config.Config) {
		c.QueueOnBusy = true
	}
}

// WithCompatibilityMode restricts output to H.264 for maximum player
// compatibility.
func WithCompatibilityMode() Option {
	return func(c *config.Config) {
		c.CompatibilityMode = true
	}
}

// WithSpeed applies a speed/quality tradeoff preset.
func WithSpeed(p SpeedPreset) Option {
	return func(c *config.Config) {
		c.Speed = p
	}
}

// WithMaxConcurrent sets how many files a batch compresses at once (1-8).
func WithMaxConcurrent(n int) Option {
	return func(c *config.Config) {
		c.MaxConcurrent = n
	}
}

// WithMemoryOptimized caps batch concurrency by available system memory.
func WithMemoryOptimized() Option {
	return func(c *config.Config) {
		c.MemoryOptimized = true
	}
}

// WithFFmpegPath overrides the ffmpeg binary location.
func WithFFmpegPath(path string) Option {
	return func(c *config.Config) {
		c.FFmpegPath = path
	}
}

// WithFFprobePath overrides the ffprobe binary location.
func WithFFprobePath(path string) Option {
	return func(c *config.Config) {
		c.FFprobePath = path
	}
}

// WithTempDir sets the directory for two-pass log files and other
// scratch state.
func WithTempDir(dir string) Option {
	return func(c *config.Config) {
		c.TempDir = dir
	}
}

// Hardware returns the detected encoder capabilities, probing the system
// on first use.
func (c *Compressor) Hardware(ctx context.Context) Capabilities {
	return c.registry.Get(ctx)
}

// RefreshHardware discards the cached detection result and probes again.
func (c *Compressor) RefreshHardware(ctx context.Context) Capabilities {
	return c.registry.Refresh(ctx)
}

// Compress compresses a single video file into outputDir. A nil Reporter
// suppresses progress events.
func (c *Compressor) Compress(ctx context.Context, input, outputDir string, rep Reporter) (*Result, error) {
	deps, err := c.prepare(ctx, outputDir, rep)
	if err != nil {
		return nil, err
	}

	results, err := processing.ProcessVideos(ctx, []string{input}, "", deps)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.NewPathError("nothing to do: output file already exists")
	}

	result := mapResult(results[0])
	return &result, nil
}

// CompressBatch compresses multiple video files into outputDir. Files
// that fail are reported in the batch result; the batch only errors when
// no file succeeds.
func (c *Compressor) CompressBatch(ctx context.Context, inputs []string, outputDir string, rep Reporter) (*BatchResult, error) {
	deps, err := c.prepare(ctx, outputDir, rep)
	if err != nil {
		return nil, err
	}

	results, err := processing.ProcessVideos(ctx, inputs, "", deps)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{TotalFiles: len(inputs)}
	var totalInputSize, totalOutputSize uint64
	for _, r := range results {
		batch.Results = append(batch.Results, mapResult(r))
		if !r.Success {
			batch.FailedCount++
			continue
		}
		batch.SuccessfulCount++
		totalInputSize += r.InputSize
		totalOutputSize += r.OutputSize
	}
	batch.TotalSizeReduction = util.CalculateSizeReduction(totalInputSize, totalOutputSize)

	return batch, nil
}

// FindVideos lists the video files directly under dir, sorted by name.
func FindVideos(dir string) ([]string, error) {
	result, err := discovery.ScanDirectory(dir)
	if err != nil {
		return nil, err
	}
	return result.Files, nil
}

// prepare clones the configuration for one call and assembles the session
// dependencies around the shared hardware registry.
func (c *Compressor) prepare(ctx context.Context, outputDir string, rep Reporter) (session.Deps, error) {
	cfg := *c.config
	cfg.OutputDir = outputDir

	if err := util.EnsureDirectory(outputDir); err != nil {
		return session.Deps{}, errors.NewIOError("cannot create output directory "+outputDir, err)
	}

	if rep == nil {
		rep = reporter.NullReporter{}
	}

	return session.Deps{
		Config:       &cfg,
		Capabilities: c.registry.Get(ctx),
		Permits:      c.registry.Permits(ctx),
		Reporter:     rep,
	}, nil
}

func mapResult(r processing.EncodeResult) Result {
	result := Result{
		OutputFile:           r.OutputPath,
		Success:              r.Success,
		Err:                  r.Err,
		OriginalSize:         r.InputSize,
		CompressedSize:       r.OutputSize,
		TargetSize:           r.TargetSize,
		SizeReductionPercent: util.CalculateSizeReduction(r.InputSize, r.OutputSize),
		Encoder:              r.Encoder,
		Retries:              r.Retries,
		EncodingSpeed:        r.EncodingSpeed,
	}
	if r.TargetSize > 0 {
		result.TargetUtilization = float64(r.OutputSize) / float64(r.TargetSize)
	}
	return result
}
