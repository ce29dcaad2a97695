// Package session drives a single input file through probing, planning,
// encoding, and verification. A session owns the retry loop that keeps
// the size guarantee honest and the fallback loop that walks down the
// encoder priority order when a backend fails.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/estimate"
	"github.com/tfells/capsize/internal/ffmpeg"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/logging"
	"github.com/tfells/capsize/internal/plan"
	"github.com/tfells/capsize/internal/probe"
	"github.com/tfells/capsize/internal/reporter"
	"github.com/tfells/capsize/internal/selector"
	"github.com/tfells/capsize/internal/util"
	"github.com/tfells/capsize/internal/validation"
)

// ProbeFunc matches probe.Probe so tests can supply metadata without
// invoking ffprobe.
type ProbeFunc func(ctx context.Context, ffprobePath, inputPath string) (*probe.VideoMetadata, error)

// EncodeFunc matches ffmpeg.RunEncode so tests can simulate backend
// outcomes without invoking ffmpeg.
type EncodeFunc func(ctx context.Context, params *ffmpeg.EncodeParams, callback ffmpeg.ProgressCallback) ffmpeg.Result

// Deps carries the collaborators a session needs. Nil fields get
// production defaults.
type Deps struct {
	Config       *config.Config
	Capabilities hardware.Capabilities
	Permits      *hardware.DevicePermits
	Reporter     reporter.Reporter
	Logger       *logging.Logger
	Analyzer     validation.MediaAnalyzer
	Probe        ProbeFunc
	Encode       EncodeFunc
}

// Result summarizes a session that reached PhaseCompleted.
type Result struct {
	SessionID         string
	InputPath         string
	OutputPath        string
	Encoder           hardware.Encoder
	InputBytes        uint64
	OutputBytes       uint64
	TargetBytes       uint64
	VideoBitrateKbps  uint32
	SourceDurationSec float64
	Retries           int
	FallbacksUsed     []string
	Elapsed           time.Duration
	AverageSpeed      float32
	Validation        *validation.Result
}

// Session is the state machine for one compression task. Create with New
// and drive with Run; a session runs exactly once.
type Session struct {
	ID string

	cfg     *config.Config
	caps    hardware.Capabilities
	permits *hardware.DevicePermits
	rep     reporter.Reporter
	log     *logging.Logger

	probeFn  ProbeFunc
	encodeFn EncodeFunc
	analyzer validation.MediaAnalyzer

	inputPath  string
	outputPath string
	target     plan.TargetSize

	mu       sync.Mutex
	phase    Phase
	fraction float64

	meta *probe.VideoMetadata
}

// New creates a session that will compress inputPath to outputPath under
// the target ceiling.
func New(inputPath, outputPath string, target plan.TargetSize, deps Deps) *Session {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig(filepath.Dir(outputPath), "")
	}
	rep := deps.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	probeFn := deps.Probe
	if probeFn == nil {
		probeFn = probe.Probe
	}
	encodeFn := deps.Encode
	if encodeFn == nil {
		encodeFn = ffmpeg.RunEncode
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = validation.NewDefaultAnalyzer(cfg.FFprobePath)
	}

	id := uuid.NewString()
	return &Session{
		ID:         id,
		cfg:        cfg,
		caps:       deps.Capabilities,
		permits:    deps.Permits,
		rep:        rep,
		log:        deps.Logger.WithSession(id),
		probeFn:    probeFn,
		encodeFn:   encodeFn,
		analyzer:   analyzer,
		inputPath:  inputPath,
		outputPath: outputPath,
		target:     target,
		phase:      PhaseCreated,
	}
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Progress returns overall encode progress in [0, 1].
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fraction
}

// transition advances the lifecycle. Terminal phases are final: once the
// session has completed, failed, or been cancelled, further transitions
// are ignored.
func (s *Session) transition(next Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.Terminal() {
		return
	}
	s.phase = next
	s.log.Debugf("phase: %s", next)
}

func (s *Session) setFraction(f float64) {
	s.mu.Lock()
	s.fraction = f
	s.mu.Unlock()
}

// Run executes the session to a terminal phase. On success the result
// describes the verified output; on any failure the output file is
// removed so a failed session never leaves a partial file behind.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	started := time.Now()

	s.transition(PhaseProbing)
	meta, err := s.probeFn(ctx, s.cfg.FFprobePath, s.inputPath)
	if err != nil {
		return nil, s.fail(err)
	}
	s.meta = meta
	s.reportInitialization(meta)
	if meta.IsHDR {
		s.rep.Warning("HDR source detected: output will be tone-mapped to 8-bit SDR")
	}

	s.transition(PhasePlanning)
	encodePlan, err := s.buildPlan(meta)
	if err != nil {
		return nil, s.fail(err)
	}

	encodePlan, release, err := s.acquireDevice(ctx, encodePlan)
	if err != nil {
		return nil, s.fail(err)
	}
	defer release()

	result, err := s.encodeAndVerify(ctx, encodePlan, started)
	if err != nil {
		s.removePartial()
		return nil, s.fail(err)
	}

	s.transition(PhaseCompleted)
	s.rep.OperationComplete(fmt.Sprintf("Compressed %s to %s (%.1f%% of target)",
		util.GetFilename(s.inputPath), util.FormatBytes(result.OutputBytes), result.Validation.Utilization*100))
	return result, nil
}

// fail drives the session to its failure terminal phase and reports the
// error. Cancellation is not a failure: it gets its own phase and a
// warning rather than an error report.
func (s *Session) fail(err error) error {
	if errors.IsCancelled(err) {
		s.transition(PhaseCancelled)
		s.log.Warn("session cancelled")
		s.rep.Warning("Operation cancelled")
	} else {
		s.transition(PhaseFailed)
		s.log.ErrorWithErr("session failed", err)
		s.rep.Error(reporterErrorFor(err))
	}
	return err
}

func (s *Session) reportInitialization(meta *probe.VideoMetadata) {
	dynamicRange := "SDR"
	if meta.IsHDR {
		dynamicRange = "HDR"
	}
	s.rep.Initialization(reporter.InitializationSummary{
		SessionID:        s.ID,
		InputFile:        util.GetFilename(s.inputPath),
		OutputFile:       util.GetFilename(s.outputPath),
		Duration:         util.FormatDuration(meta.DurationSeconds),
		Resolution:       fmt.Sprintf("%dx%d", meta.Width, meta.Height),
		DynamicRange:     dynamicRange,
		AudioDescription: audioDescription(meta),
		SourceSize:       meta.SizeBytes,
		TargetSize:       s.target.Bytes(),
	})
}

func audioDescription(meta *probe.VideoMetadata) string {
	if !meta.HasAudio {
		return "none"
	}
	switch meta.AudioChannels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	case 6:
		return "5.1 surround"
	case 8:
		return "7.1 surround"
	default:
		return fmt.Sprintf("%d channels", meta.AudioChannels)
	}
}

// buildPlan selects the backend and computes the bitrate budget for the
// probed source.
func (s *Session) buildPlan(meta *probe.VideoMetadata) (*plan.EncodePlan, error) {
	prefs, err := selector.PreferencesFromConfig(s.cfg)
	if err != nil {
		return nil, err
	}
	enc, err := selector.Select(s.caps, prefs)
	if err != nil {
		return nil, err
	}

	encodePlan, err := plan.NewPlan(meta, s.target, enc, s.deviceFor(enc))
	if err != nil {
		return nil, err
	}
	if s.cfg.AutoQuality {
		crf := estimate.RecommendQuality(meta, enc, s.target.Bytes())
		encodePlan = encodePlan.WithQualityHint(crf)
	}

	s.log.LogPlan(encodePlan.VideoBitrateKbps, encodePlan.AudioBitrateKbps, s.target.Bytes(), enc.String(), encodePlan.TwoPass)
	s.rep.PlanResolved(reporter.PlanSummary{
		SessionID:        s.ID,
		Encoder:          encodePlan.Encoder.DisplayName(),
		VideoBitrateKbps: encodePlan.VideoBitrateKbps,
		AudioBitrateKbps: encodePlan.AudioBitrateKbps,
		TwoPass:          encodePlan.TwoPass,
		QualityHint:      encodePlan.QualityParam,
		Complexity:       estimate.ClassifyComplexity(meta).String(),
		PredictedSize:    encodePlan.ProjectedBytes(meta.DurationSeconds),
		EstimatedTime:    estimate.EstimateEncodingTime(meta, encodePlan.Encoder, s.cfg.Speed),
		TargetSize:       s.target.Bytes(),
	})
	return encodePlan, nil
}

func (s *Session) deviceFor(enc hardware.Encoder) *int {
	if !enc.UsesCUDA() {
		return nil
	}
	if s.cfg.DeviceID >= 0 {
		id := s.cfg.DeviceID
		return &id
	}
	if len(s.caps.Devices) > 0 {
		id := s.caps.Devices[0].ID
		return &id
	}
	return nil
}

// acquireDevice enforces the per-device NVENC session quota. With
// queue-on-busy the session waits for a permit; otherwise a busy device
// reroutes the plan to software encoding immediately.
func (s *Session) acquireDevice(ctx context.Context, p *plan.EncodePlan) (*plan.EncodePlan, func(), error) {
	noop := func() {}
	if s.permits == nil || !p.Encoder.UsesCUDA() {
		return p, noop, nil
	}

	deviceID := 0
	if p.DeviceID != nil {
		deviceID = *p.DeviceID
	}
	pool := s.permits.For(deviceID)

	if pool.TryAcquire() {
		return p, pool.Release, nil
	}

	if s.cfg.QueueOnBusy {
		s.rep.Warning(fmt.Sprintf("All NVENC sessions on device %d are busy, waiting for a free slot", deviceID))
		s.log.Infof("waiting for a session permit on device %d", deviceID)
		if err := pool.Acquire(ctx); err != nil {
			return nil, noop, errors.NewCancelledError()
		}
		return p, pool.Release, nil
	}

	s.rep.Warning(fmt.Sprintf("All NVENC sessions on device %d are busy, using software encoding", deviceID))
	s.log.LogFallback(p.Encoder.String(), hardware.Software.String(), "device session limit reached")
	return p.RetargetEncoder(hardware.Software), noop, nil
}

// encodeAndVerify runs the encode loop. Backend failures walk the
// fallback chain with the same bitrate budget; verified overshoots
// tighten the budget and re-encode up to the retry cap.
func (s *Session) encodeAndVerify(ctx context.Context, initial *plan.EncodePlan, started time.Time) (*Result, error) {
	current := initial
	fallback := selector.NewFallback(s.caps, initial.Encoder)
	retries := 0
	var fallbacksUsed []string

	for {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError()
		}

		s.transition(PhaseEncoding)
		encResult := s.encodeOnce(ctx, current)
		if !encResult.Success {
			if errors.IsCancelled(encResult.Error) {
				return nil, encResult.Error
			}

			next, ok := fallback.Next()
			if !ok {
				return nil, errors.NewFallbackExhaustedError(fallback.Tried(), encResult.Error)
			}
			s.reportFallback(current.Encoder, next, encResult.Error, len(fallbacksUsed)+1)
			fallbacksUsed = append(fallbacksUsed, next.String())
			current = current.RetargetEncoder(next)
			continue
		}

		s.transition(PhaseVerifying)
		verification, err := validation.VerifyOutput(ctx, s.analyzer, s.outputPath, validation.Expectation{
			TargetBytes:    s.target.Bytes(),
			Encoder:        current.Encoder,
			SourceDuration: s.meta.DurationSeconds,
			ExpectAudio:    current.AudioBitrateKbps > 0,
		})
		if err != nil {
			return nil, err
		}
		s.reportValidation(verification)

		if !verification.IsSizeOK {
			tightened, ok := current.TightenForRetry()
			if retries >= plan.MaxCorrectiveRetries || !ok {
				return nil, errors.NewSizeOvershootError(s.target.Bytes(), verification.ActualBytes, retries)
			}
			retries++
			s.transition(PhasePlanning)
			s.rep.RetryAttempt(reporter.RetrySummary{
				Attempt:             retries,
				MaxAttempts:         plan.MaxCorrectiveRetries,
				ActualBytes:         verification.ActualBytes,
				TargetBytes:         s.target.Bytes(),
				NewVideoBitrateKbps: tightened.VideoBitrateKbps,
			})
			s.log.Warnf("output exceeded target by %s, retrying at %d kbps",
				util.FormatBytes(verification.ActualBytes-s.target.Bytes()), tightened.VideoBitrateKbps)
			current = tightened
			continue
		}

		if !verification.IsValid() {
			return nil, errors.NewValidationError(strings.Join(verification.GetFailures(), "; "))
		}

		return s.buildResult(current, verification, retries, fallbacksUsed, started), nil
	}
}

func (s *Session) encodeOnce(ctx context.Context, p *plan.EncodePlan) ffmpeg.Result {
	params := s.encodeParams(p)
	s.rep.EncodingStarted(params.TotalFrames)
	s.log.WithEncoder(p.Encoder.String()).Infof("encoding at %d kbps", p.VideoBitrateKbps)

	return s.encodeFn(ctx, params, func(progress ffmpeg.Progress) {
		s.setFraction(progress.Fraction())
		s.rep.EncodingProgress(reporter.ProgressSnapshot{
			CurrentFrame: progress.CurrentFrame,
			TotalFrames:  progress.TotalFrames,
			Percent:      progress.Percent,
			Speed:        progress.Speed,
			FPS:          progress.FPS,
			ETA:          progress.ETA,
			Bitrate:      progress.Bitrate,
			Pass:         progress.Pass,
			TotalPasses:  progress.TotalPasses,
		})
	})
}

func (s *Session) encodeParams(p *plan.EncodePlan) *ffmpeg.EncodeParams {
	params := &ffmpeg.EncodeParams{
		FFmpegPath:       s.cfg.FFmpegPath,
		InputPath:        s.inputPath,
		OutputPath:       s.outputPath,
		Encoder:          p.Encoder,
		DeviceID:         p.DeviceID,
		VideoBitrateKbps: p.VideoBitrateKbps,
		AudioBitrateKbps: p.AudioBitrateKbps,
		QualityParam:     p.QualityParam,
		TwoPass:          p.TwoPass,
		Speed:            s.cfg.Speed,
		IsHDR:            s.meta.IsHDR,
		DurationSeconds:  s.meta.DurationSeconds,
		TotalFrames:      totalFrames(s.meta),
	}
	if dir := s.cfg.GetTempDir(); dir != "" {
		params.PassLogPrefix = filepath.Join(dir, "capsize_"+s.ID)
	}
	return params
}

func totalFrames(meta *probe.VideoMetadata) uint64 {
	if meta.FrameRate <= 0 || meta.DurationSeconds <= 0 {
		return 0
	}
	return uint64(meta.FrameRate * meta.DurationSeconds)
}

func (s *Session) reportFallback(from, to hardware.Encoder, cause error, attempt int) {
	reason := "backend failure"
	if cause != nil {
		reason = cause.Error()
	}
	s.log.LogFallback(from.String(), to.String(), reason)
	s.rep.FallbackAttempt(reporter.FallbackSummary{
		From:    from.DisplayName(),
		To:      to.DisplayName(),
		Reason:  reason,
		Attempt: attempt,
	})
}

func (s *Session) reportValidation(v *validation.Result) {
	var steps []reporter.ValidationStep
	for _, step := range v.GetValidationSteps() {
		steps = append(steps, reporter.ValidationStep{Name: step.Name, Passed: step.Passed, Details: step.Details})
	}
	s.rep.ValidationComplete(reporter.ValidationSummary{Passed: v.IsValid(), Steps: steps})
}

func (s *Session) buildResult(p *plan.EncodePlan, v *validation.Result, retries int, fallbacksUsed []string, started time.Time) *Result {
	elapsed := time.Since(started)
	inputBytes := s.meta.SizeBytes
	if inputBytes == 0 {
		inputBytes, _ = util.GetFileSize(s.inputPath)
	}

	var speed float32
	if elapsed.Seconds() > 0 {
		speed = float32(s.meta.DurationSeconds / elapsed.Seconds())
	}

	s.rep.EncodingComplete(reporter.EncodingOutcome{
		SessionID:        s.ID,
		InputFile:        util.GetFilename(s.inputPath),
		OutputFile:       util.GetFilename(s.outputPath),
		Encoder:          p.Encoder.DisplayName(),
		OriginalSize:     inputBytes,
		EncodedSize:      v.ActualBytes,
		TargetSize:       s.target.Bytes(),
		VideoBitrateKbps: p.VideoBitrateKbps,
		TotalTime:        elapsed,
		AverageSpeed:     speed,
		OutputPath:       s.outputPath,
	})

	return &Result{
		SessionID:         s.ID,
		InputPath:         s.inputPath,
		OutputPath:        s.outputPath,
		Encoder:           p.Encoder,
		InputBytes:        inputBytes,
		OutputBytes:       v.ActualBytes,
		TargetBytes:       s.target.Bytes(),
		VideoBitrateKbps:  p.VideoBitrateKbps,
		SourceDurationSec: s.meta.DurationSeconds,
		Retries:           retries,
		FallbacksUsed:     fallbacksUsed,
		Elapsed:           elapsed,
		AverageSpeed:      speed,
		Validation:        v,
	}
}

// removePartial deletes the output file after a failed or cancelled
// session.
func (s *Session) removePartial() {
	if err := util.RemoveIfExists(s.outputPath); err != nil {
		s.log.Warnf("could not remove partial output %s: %v", s.outputPath, err)
	}
}

// reporterErrorFor maps the error taxonomy to a reporter payload with an
// actionable suggestion where one exists.
func reporterErrorFor(err error) reporter.ReporterError {
	title := "Compression failed"
	var suggestion string
	switch {
	case errors.IsKind(err, errors.KindProbe):
		title = "Source analysis failed"
		suggestion = "Check that the input is a readable video file"
	case errors.IsKind(err, errors.KindInfeasibleTarget):
		title = "Target size too small"
		suggestion = "Choose a larger target size or trim the source"
	case errors.IsKind(err, errors.KindEncoderUnavailable):
		title = "Encoder unavailable"
		suggestion = "Run 'capsize hardware' to list detected encoders"
	case errors.IsKind(err, errors.KindSizeOvershoot):
		title = "Size guarantee not met"
		suggestion = "Choose a larger target size for this source"
	case errors.IsKind(err, errors.KindFallbackExhausted):
		title = "All encoders failed"
		suggestion = "Check the ffmpeg installation and its codec support"
	case errors.IsKind(err, errors.KindValidation):
		title = "Output verification failed"
	}
	return reporter.ReporterError{Title: title, Message: err.Error(), Suggestion: suggestion}
}
