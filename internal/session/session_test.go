package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tfells/capsize/internal/config"
	caperrors "github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/ffmpeg"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/plan"
	"github.com/tfells/capsize/internal/probe"
	"github.com/tfells/capsize/internal/reporter"
	"github.com/tfells/capsize/internal/util"
)

func sourceMeta() *probe.VideoMetadata {
	return &probe.VideoMetadata{
		DurationSeconds: 60.0,
		Width:           1920,
		Height:          1080,
		FrameRate:       30.0,
		Codec:           "h264",
		HasAudio:        true,
		AudioChannels:   2,
		SizeBytes:       50 * 1024 * 1024,
	}
}

func outputMeta() *probe.VideoMetadata {
	return &probe.VideoMetadata{
		DurationSeconds: 60.2,
		Width:           1920,
		Height:          1080,
		Codec:           "h264",
		HasAudio:        true,
		AudioChannels:   2,
	}
}

func softwareCaps() hardware.Capabilities {
	return hardware.Capabilities{
		Available: []hardware.Encoder{hardware.Software},
		Preferred: hardware.Software,
	}
}

func nvencCaps() hardware.Capabilities {
	return hardware.Capabilities{
		Available: []hardware.Encoder{hardware.NvencH264, hardware.Software},
		Preferred: hardware.NvencH264,
		Devices: []hardware.Device{
			{ID: 0, Name: "GeForce RTX 3060", VRAMMB: 12288, MaxConcurrentSessions: 5, NVENCSupported: true},
		},
	}
}

func fakeProbe(meta *probe.VideoMetadata, err error) ProbeFunc {
	return func(ctx context.Context, ffprobePath, inputPath string) (*probe.VideoMetadata, error) {
		if err != nil {
			return nil, err
		}
		return meta, nil
	}
}

// backendOutcome scripts one call to the fake backend. The zero value is
// a successful encode.
type backendOutcome struct {
	err     error
	partial bool
}

type fakeBackend struct {
	mu       sync.Mutex
	outcomes []backendOutcome
	calls    []ffmpeg.EncodeParams
}

func (f *fakeBackend) encode(ctx context.Context, params *ffmpeg.EncodeParams, callback ffmpeg.ProgressCallback) ffmpeg.Result {
	f.mu.Lock()
	var out backendOutcome
	if len(f.outcomes) > 0 {
		out = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	f.calls = append(f.calls, *params)
	f.mu.Unlock()

	if out.err != nil {
		if out.partial {
			os.WriteFile(params.OutputPath, []byte("partial"), 0o644)
		}
		return ffmpeg.Result{Success: false, Error: out.err}
	}

	if err := os.WriteFile(params.OutputPath, []byte("encoded"), 0o644); err != nil {
		return ffmpeg.Result{Success: false, Error: err}
	}
	if callback != nil {
		callback(ffmpeg.Progress{
			CurrentFrame: params.TotalFrames,
			TotalFrames:  params.TotalFrames,
			Percent:      100,
			Pass:         params.PassCount(),
			TotalPasses:  params.PassCount(),
		})
	}
	return ffmpeg.Result{Success: true}
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeBackend) call(i int) ffmpeg.EncodeParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// fakeAnalyzer reports scripted file sizes, repeating the last one, and
// fixed metadata for every output.
type fakeAnalyzer struct {
	meta  *probe.VideoMetadata
	sizes []uint64
	next  int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, path string) (*probe.VideoMetadata, error) {
	return f.meta, nil
}

func (f *fakeAnalyzer) FileSize(path string) (uint64, error) {
	if f.next < len(f.sizes) {
		n := f.sizes[f.next]
		f.next++
		return n, nil
	}
	if len(f.sizes) > 0 {
		return f.sizes[len(f.sizes)-1], nil
	}
	return 0, nil
}

type recordingReporter struct {
	reporter.NullReporter
	mu        sync.Mutex
	events    []string
	warnings  []string
	errs      []reporter.ReporterError
	retries   []reporter.RetrySummary
	fallbacks []reporter.FallbackSummary
}

func (r *recordingReporter) record(name string) {
	r.mu.Lock()
	r.events = append(r.events, name)
	r.mu.Unlock()
}

func (r *recordingReporter) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == name {
			return true
		}
	}
	return false
}

func (r *recordingReporter) warningContaining(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func (r *recordingReporter) Initialization(reporter.InitializationSummary) { r.record("initialization") }
func (r *recordingReporter) PlanResolved(reporter.PlanSummary)             { r.record("plan") }
func (r *recordingReporter) EncodingStarted(uint64)                        { r.record("encoding_started") }
func (r *recordingReporter) ValidationComplete(reporter.ValidationSummary) { r.record("validation") }
func (r *recordingReporter) EncodingComplete(reporter.EncodingOutcome)     { r.record("encoding_complete") }
func (r *recordingReporter) OperationComplete(string)                      { r.record("operation_complete") }

func (r *recordingReporter) FallbackAttempt(s reporter.FallbackSummary) {
	r.mu.Lock()
	r.fallbacks = append(r.fallbacks, s)
	r.mu.Unlock()
	r.record("fallback")
}

func (r *recordingReporter) RetryAttempt(s reporter.RetrySummary) {
	r.mu.Lock()
	r.retries = append(r.retries, s)
	r.mu.Unlock()
	r.record("retry")
}

func (r *recordingReporter) Warning(msg string) {
	r.mu.Lock()
	r.warnings = append(r.warnings, msg)
	r.mu.Unlock()
}

func (r *recordingReporter) Error(e reporter.ReporterError) {
	r.mu.Lock()
	r.errs = append(r.errs, e)
	r.mu.Unlock()
}

func newTestSession(t *testing.T, caps hardware.Capabilities, deps Deps) (*Session, string) {
	t.Helper()
	dir := t.TempDir()
	target, err := plan.TargetFromPreset(10)
	if err != nil {
		t.Fatalf("TargetFromPreset(10) error: %v", err)
	}
	if deps.Config == nil {
		deps.Config = config.NewConfig(dir, "")
	}
	deps.Capabilities = caps
	if deps.Probe == nil {
		deps.Probe = fakeProbe(sourceMeta(), nil)
	}
	output := filepath.Join(dir, "clip.10mb.mp4")
	return New(filepath.Join(dir, "clip.mp4"), output, target, deps), output
}

func TestRunSuccess(t *testing.T) {
	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{9 * 1024 * 1024}}
	rec := &recordingReporter{}
	s, output := newTestSession(t, softwareCaps(), Deps{Encode: backend.encode, Analyzer: analyzer, Reporter: rec})

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if s.Phase() != PhaseCompleted {
		t.Errorf("Phase() = %v, want %v", s.Phase(), PhaseCompleted)
	}
	if result.Encoder != hardware.Software {
		t.Errorf("result.Encoder = %v, want %v", result.Encoder, hardware.Software)
	}
	if result.OutputBytes != 9*1024*1024 {
		t.Errorf("result.OutputBytes = %d, want %d", result.OutputBytes, 9*1024*1024)
	}
	if result.TargetBytes != 10*1024*1024 {
		t.Errorf("result.TargetBytes = %d, want %d", result.TargetBytes, 10*1024*1024)
	}
	if result.VideoBitrateKbps != 1180 {
		t.Errorf("result.VideoBitrateKbps = %d, want 1180", result.VideoBitrateKbps)
	}
	if result.Retries != 0 {
		t.Errorf("result.Retries = %d, want 0", result.Retries)
	}
	if !util.FileExists(output) {
		t.Error("output file should exist after a successful run")
	}

	if backend.callCount() != 1 {
		t.Fatalf("backend called %d times, want 1", backend.callCount())
	}
	params := backend.call(0)
	if !params.TwoPass {
		t.Error("software encode should run two passes")
	}
	if params.VideoBitrateKbps != 1180 {
		t.Errorf("params.VideoBitrateKbps = %d, want 1180", params.VideoBitrateKbps)
	}

	for _, event := range []string{"initialization", "plan", "encoding_started", "validation", "encoding_complete", "operation_complete"} {
		if !rec.has(event) {
			t.Errorf("reporter missing %s event", event)
		}
	}
}

func TestRunOvershootRetriesThenSucceeds(t *testing.T) {
	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{
		11 * 1024 * 1024,
		10*1024*1024 + 512*1024,
		9*1024*1024 + 900*1024,
	}}
	rec := &recordingReporter{}
	s, _ := newTestSession(t, softwareCaps(), Deps{Encode: backend.encode, Analyzer: analyzer, Reporter: rec})

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Retries != 2 {
		t.Errorf("result.Retries = %d, want 2", result.Retries)
	}
	if backend.callCount() != 3 {
		t.Fatalf("backend called %d times, want 3", backend.callCount())
	}

	wantBitrates := []uint32{1180, 1062, 955}
	for i, want := range wantBitrates {
		if got := backend.call(i).VideoBitrateKbps; got != want {
			t.Errorf("encode %d bitrate = %d, want %d", i, got, want)
		}
	}

	if len(rec.retries) != 2 {
		t.Fatalf("recorded %d retry events, want 2", len(rec.retries))
	}
	if rec.retries[0].Attempt != 1 || rec.retries[0].NewVideoBitrateKbps != 1062 {
		t.Errorf("retry 1 = attempt %d at %d kbps, want attempt 1 at 1062 kbps",
			rec.retries[0].Attempt, rec.retries[0].NewVideoBitrateKbps)
	}
	if rec.retries[1].Attempt != 2 || rec.retries[1].NewVideoBitrateKbps != 955 {
		t.Errorf("retry 2 = attempt %d at %d kbps, want attempt 2 at 955 kbps",
			rec.retries[1].Attempt, rec.retries[1].NewVideoBitrateKbps)
	}
}

func TestRunOvershootExhaustsRetries(t *testing.T) {
	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{11 * 1024 * 1024}}
	rec := &recordingReporter{}
	s, output := newTestSession(t, softwareCaps(), Deps{Encode: backend.encode, Analyzer: analyzer, Reporter: rec})

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when every retry overshoots")
	}
	if !caperrors.IsKind(err, caperrors.KindSizeOvershoot) {
		t.Errorf("error kind = %v, want size overshoot", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("Phase() = %v, want %v", s.Phase(), PhaseFailed)
	}
	if backend.callCount() != 3 {
		t.Errorf("backend called %d times, want 3", backend.callCount())
	}
	if util.FileExists(output) {
		t.Error("oversized output should be removed")
	}
	if len(rec.errs) != 1 || rec.errs[0].Title != "Size guarantee not met" {
		t.Errorf("reporter errors = %+v, want one size guarantee error", rec.errs)
	}
}

func TestRunBackendFailureFallsBack(t *testing.T) {
	backend := &fakeBackend{outcomes: []backendOutcome{
		{err: caperrors.NewBackendEncodeError(hardware.NvencH264.String(), "backend exited with an error", nil)},
	}}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{9 * 1024 * 1024}}
	rec := &recordingReporter{}
	s, _ := newTestSession(t, nvencCaps(), Deps{Encode: backend.encode, Analyzer: analyzer, Reporter: rec})

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Encoder != hardware.Software {
		t.Errorf("result.Encoder = %v, want %v", result.Encoder, hardware.Software)
	}
	if len(result.FallbacksUsed) != 1 || result.FallbacksUsed[0] != hardware.Software.String() {
		t.Errorf("result.FallbacksUsed = %v, want [%s]", result.FallbacksUsed, hardware.Software)
	}
	if backend.callCount() != 2 {
		t.Fatalf("backend called %d times, want 2", backend.callCount())
	}

	first := backend.call(0)
	if first.Encoder != hardware.NvencH264 {
		t.Errorf("first encode used %v, want %v", first.Encoder, hardware.NvencH264)
	}
	if first.DeviceID == nil || *first.DeviceID != 0 {
		t.Errorf("first encode DeviceID = %v, want 0", first.DeviceID)
	}

	second := backend.call(1)
	if second.Encoder != hardware.Software {
		t.Errorf("fallback encode used %v, want %v", second.Encoder, hardware.Software)
	}
	if second.DeviceID != nil {
		t.Error("software fallback should drop the device binding")
	}
	if second.VideoBitrateKbps != first.VideoBitrateKbps {
		t.Errorf("fallback bitrate = %d, want %d unchanged", second.VideoBitrateKbps, first.VideoBitrateKbps)
	}

	if len(rec.fallbacks) != 1 {
		t.Fatalf("recorded %d fallback events, want 1", len(rec.fallbacks))
	}
	if rec.fallbacks[0].From != hardware.NvencH264.DisplayName() || rec.fallbacks[0].To != hardware.Software.DisplayName() {
		t.Errorf("fallback event %+v, want %s to %s",
			rec.fallbacks[0], hardware.NvencH264.DisplayName(), hardware.Software.DisplayName())
	}
}

func TestRunFallbackExhausted(t *testing.T) {
	backend := &fakeBackend{outcomes: []backendOutcome{
		{err: caperrors.NewBackendEncodeError(hardware.Software.String(), "backend exited with an error", nil)},
	}}
	analyzer := &fakeAnalyzer{meta: outputMeta()}
	rec := &recordingReporter{}
	s, output := newTestSession(t, softwareCaps(), Deps{Encode: backend.encode, Analyzer: analyzer, Reporter: rec})

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when every encoder has failed")
	}
	if !caperrors.IsKind(err, caperrors.KindFallbackExhausted) {
		t.Errorf("error kind = %v, want fallback exhausted", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("Phase() = %v, want %v", s.Phase(), PhaseFailed)
	}
	if util.FileExists(output) {
		t.Error("no output should remain after fallback exhaustion")
	}
	if len(rec.errs) != 1 || rec.errs[0].Title != "All encoders failed" {
		t.Errorf("reporter errors = %+v, want one exhaustion error", rec.errs)
	}
}

func TestRunCancelledRemovesPartial(t *testing.T) {
	backend := &fakeBackend{outcomes: []backendOutcome{
		{err: caperrors.NewCancelledError(), partial: true},
	}}
	analyzer := &fakeAnalyzer{meta: outputMeta()}
	rec := &recordingReporter{}
	s, output := newTestSession(t, softwareCaps(), Deps{Encode: backend.encode, Analyzer: analyzer, Reporter: rec})

	_, err := s.Run(context.Background())
	if !caperrors.IsCancelled(err) {
		t.Fatalf("Run() error = %v, want cancelled", err)
	}
	if s.Phase() != PhaseCancelled {
		t.Errorf("Phase() = %v, want %v", s.Phase(), PhaseCancelled)
	}
	if util.FileExists(output) {
		t.Error("partial output should be removed on cancellation")
	}
	if len(rec.errs) != 0 {
		t.Errorf("cancellation reported as error: %+v", rec.errs)
	}
	if !rec.warningContaining("cancelled") {
		t.Error("expected a cancellation warning")
	}
}

func TestRunProbeFailure(t *testing.T) {
	backend := &fakeBackend{}
	rec := &recordingReporter{}
	s, _ := newTestSession(t, softwareCaps(), Deps{
		Encode:   backend.encode,
		Analyzer: &fakeAnalyzer{},
		Reporter: rec,
		Probe:    fakeProbe(nil, caperrors.NewProbeError("no duration in container metadata", nil)),
	})

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when probing fails")
	}
	if !caperrors.IsKind(err, caperrors.KindProbe) {
		t.Errorf("error kind = %v, want probe", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("Phase() = %v, want %v", s.Phase(), PhaseFailed)
	}
	if backend.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", backend.callCount())
	}
	if len(rec.errs) != 1 || rec.errs[0].Title != "Source analysis failed" {
		t.Errorf("reporter errors = %+v, want one analysis error", rec.errs)
	}
}

func TestRunInfeasibleTarget(t *testing.T) {
	dir := t.TempDir()
	target, err := plan.TargetFromBytes(100_000)
	if err != nil {
		t.Fatalf("TargetFromBytes(100000) error: %v", err)
	}
	backend := &fakeBackend{}
	rec := &recordingReporter{}
	s := New(filepath.Join(dir, "clip.mp4"), filepath.Join(dir, "out.mp4"), target, Deps{
		Config:       config.NewConfig(dir, ""),
		Capabilities: softwareCaps(),
		Encode:       backend.encode,
		Analyzer:     &fakeAnalyzer{},
		Reporter:     rec,
		Probe:        fakeProbe(sourceMeta(), nil),
	})

	_, err = s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail for an infeasible target")
	}
	if !caperrors.IsKind(err, caperrors.KindInfeasibleTarget) {
		t.Errorf("error kind = %v, want infeasible target", err)
	}
	if backend.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", backend.callCount())
	}
	if len(rec.errs) != 1 || rec.errs[0].Title != "Target size too small" {
		t.Errorf("reporter errors = %+v, want one infeasible target error", rec.errs)
	}
}

func TestRunCodecMismatchFails(t *testing.T) {
	wrongCodec := outputMeta()
	wrongCodec.Codec = "mpeg4"
	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: wrongCodec, sizes: []uint64{9 * 1024 * 1024}}
	s, output := newTestSession(t, softwareCaps(), Deps{Encode: backend.encode, Analyzer: analyzer})

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("Run() should fail when the output codec is wrong")
	}
	if !caperrors.IsKind(err, caperrors.KindValidation) {
		t.Errorf("error kind = %v, want validation", err)
	}
	if util.FileExists(output) {
		t.Error("invalid output should be removed")
	}
}

func TestRunHDRSourceWarns(t *testing.T) {
	hdr := sourceMeta()
	hdr.IsHDR = true
	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{9 * 1024 * 1024}}
	rec := &recordingReporter{}
	s, _ := newTestSession(t, softwareCaps(), Deps{
		Encode:   backend.encode,
		Analyzer: analyzer,
		Reporter: rec,
		Probe:    fakeProbe(hdr, nil),
	})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !rec.warningContaining("HDR") {
		t.Error("expected an HDR tone-mapping warning")
	}
	if len(backend.calls) != 1 || !backend.calls[0].IsHDR {
		t.Error("backend params should carry the HDR flag")
	}
}

func TestRunBusyDeviceFallsBackToSoftware(t *testing.T) {
	caps := nvencCaps()
	caps.Devices[0].MaxConcurrentSessions = 1
	permits := hardware.NewDevicePermits(caps.Devices)
	if !permits.For(0).TryAcquire() {
		t.Fatal("draining the device permit failed")
	}

	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{9 * 1024 * 1024}}
	rec := &recordingReporter{}
	s, _ := newTestSession(t, caps, Deps{
		Encode:   backend.encode,
		Analyzer: analyzer,
		Reporter: rec,
		Permits:  permits,
	})

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Encoder != hardware.Software {
		t.Errorf("result.Encoder = %v, want %v", result.Encoder, hardware.Software)
	}
	if got := backend.call(0).Encoder; got != hardware.Software {
		t.Errorf("encode used %v, want %v", got, hardware.Software)
	}
	if !rec.warningContaining("busy") {
		t.Error("expected a busy-device warning")
	}
}

func TestRunQueueOnBusyWaitsForPermit(t *testing.T) {
	caps := nvencCaps()
	caps.Devices[0].MaxConcurrentSessions = 1
	permits := hardware.NewDevicePermits(caps.Devices)
	pool := permits.For(0)
	if !pool.TryAcquire() {
		t.Fatal("draining the device permit failed")
	}

	cfg := config.NewConfig(t.TempDir(), "")
	cfg.QueueOnBusy = true

	backend := &fakeBackend{}
	analyzer := &fakeAnalyzer{meta: outputMeta(), sizes: []uint64{9 * 1024 * 1024}}
	s, _ := newTestSession(t, caps, Deps{
		Config:   cfg,
		Encode:   backend.encode,
		Analyzer: analyzer,
		Permits:  permits,
	})

	timer := time.AfterFunc(30*time.Millisecond, pool.Release)
	defer timer.Stop()

	result, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Encoder != hardware.NvencH264 {
		t.Errorf("result.Encoder = %v, want %v", result.Encoder, hardware.NvencH264)
	}
}

func TestRunQueueOnBusyCancelled(t *testing.T) {
	caps := nvencCaps()
	caps.Devices[0].MaxConcurrentSessions = 1
	permits := hardware.NewDevicePermits(caps.Devices)
	if !permits.For(0).TryAcquire() {
		t.Fatal("draining the device permit failed")
	}

	cfg := config.NewConfig(t.TempDir(), "")
	cfg.QueueOnBusy = true

	backend := &fakeBackend{}
	s, _ := newTestSession(t, caps, Deps{
		Config:   cfg,
		Encode:   backend.encode,
		Analyzer: &fakeAnalyzer{},
		Permits:  permits,
	})

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(30*time.Millisecond, cancel)
	defer timer.Stop()

	_, err := s.Run(ctx)
	if !caperrors.IsCancelled(err) {
		t.Fatalf("Run() error = %v, want cancelled", err)
	}
	if s.Phase() != PhaseCancelled {
		t.Errorf("Phase() = %v, want %v", s.Phase(), PhaseCancelled)
	}
	if backend.callCount() != 0 {
		t.Errorf("backend called %d times, want 0", backend.callCount())
	}
}

func TestTerminalPhasesAreFinal(t *testing.T) {
	s, _ := newTestSession(t, softwareCaps(), Deps{Analyzer: &fakeAnalyzer{}})
	s.transition(PhaseCompleted)
	s.transition(PhaseFailed)
	if s.Phase() != PhaseCompleted {
		t.Errorf("Phase() = %v after post-terminal transition, want %v", s.Phase(), PhaseCompleted)
	}
}

func TestPhaseTerminal(t *testing.T) {
	tests := []struct {
		phase Phase
		want  bool
	}{
		{PhaseCreated, false},
		{PhaseProbing, false},
		{PhasePlanning, false},
		{PhaseEncoding, false},
		{PhaseVerifying, false},
		{PhaseCompleted, true},
		{PhaseFailed, true},
		{PhaseCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.phase.Terminal(); got != tt.want {
			t.Errorf("%v.Terminal() = %v, want %v", tt.phase, got, tt.want)
		}
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseCreated, "created"},
		{PhaseProbing, "probing"},
		{PhasePlanning, "planning"},
		{PhaseEncoding, "encoding"},
		{PhaseVerifying, "verifying"},
		{PhaseCompleted, "completed"},
		{PhaseFailed, "failed"},
		{PhaseCancelled, "cancelled"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestEncodeParamsPassLogPrefix(t *testing.T) {
	dir := t.TempDir()
	cfg := config.NewConfig(dir, "")
	cfg.TempDir = filepath.Join(dir, "tmp")

	target, err := plan.TargetFromPreset(10)
	if err != nil {
		t.Fatalf("TargetFromPreset(10) error: %v", err)
	}
	s := New(filepath.Join(dir, "clip.mp4"), filepath.Join(dir, "out.mp4"), target, Deps{
		Config:   cfg,
		Analyzer: &fakeAnalyzer{},
	})
	s.meta = sourceMeta()

	p, err := plan.NewPlan(s.meta, target, hardware.Software, nil)
	if err != nil {
		t.Fatalf("NewPlan() error: %v", err)
	}

	params := s.encodeParams(p)
	want := filepath.Join(cfg.TempDir, "capsize_"+s.ID)
	if params.PassLogPrefix != want {
		t.Errorf("PassLogPrefix = %q, want %q", params.PassLogPrefix, want)
	}
	if params.TotalFrames != 1800 {
		t.Errorf("TotalFrames = %d, want 1800", params.TotalFrames)
	}
}

func TestAudioDescription(t *testing.T) {
	tests := []struct {
		name     string
		hasAudio bool
		channels uint32
		want     string
	}{
		{"no audio", false, 0, "none"},
		{"mono", true, 1, "mono"},
		{"stereo", true, 2, "stereo"},
		{"5.1", true, 6, "5.1 surround"},
		{"7.1", true, 8, "7.1 surround"},
		{"odd layout", true, 3, "3 channels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := &probe.VideoMetadata{HasAudio: tt.hasAudio, AudioChannels: tt.channels}
			if got := audioDescription(meta); got != tt.want {
				t.Errorf("audioDescription() = %q, want %q", got, tt.want)
			}
		})
	}
}
