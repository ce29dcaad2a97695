package reporter

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/tfells/capsize/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	progress   *progressbar.ProgressBar
	maxPercent float32
	verbose    bool
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	faint      *color.Color
	bold       *color.Color
}

// NewTerminalReporter creates a new terminal reporter. With verbose set,
// Verbose messages are printed; otherwise they are dropped.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return &TerminalReporter{
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		faint:   color.New(color.Faint),
		bold:    color.New(color.Bold),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("HARDWARE")
	r.printLabel(10, "Hostname:", summary.Hostname)
	if summary.CPUModel != "" {
		r.printLabel(10, "CPU:", summary.CPUModel)
	}
	for _, dev := range summary.Devices {
		detail := fmt.Sprintf("%s (%d MB VRAM, %d sessions)", dev.Name, dev.VRAMMB, dev.MaxSessions)
		r.printLabel(10, fmt.Sprintf("GPU %d:", dev.ID), detail)
	}
	if len(summary.Encoders) > 0 {
		r.printLabel(10, "Encoders:", fmt.Sprintf("%d detected", len(summary.Encoders)))
		for _, enc := range summary.Encoders {
			marker := " "
			if enc == summary.Preferred {
				marker = r.green.Sprint("*")
			}
			fmt.Printf("    %s %s\n", marker, enc)
		}
	}
}

func (r *TerminalReporter) Initialization(summary InitializationSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("VIDEO")
	r.printLabel(12, "File:", summary.InputFile)
	r.printLabel(12, "Output:", summary.OutputFile)
	r.printLabel(12, "Duration:", summary.Duration)
	r.printLabel(12, "Resolution:", summary.Resolution)
	r.printLabel(12, "Dynamic:", summary.DynamicRange)
	r.printLabel(12, "Audio:", summary.AudioDescription)
	r.printLabel(12, "Source:", util.FormatBytesReadable(summary.SourceSize))
	r.printLabel(12, "Target:", util.FormatBytes(summary.TargetSize))
}

func (r *TerminalReporter) PlanResolved(summary PlanSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("PLAN")
	r.printLabel(12, "Encoder:", summary.Encoder)
	r.printLabel(12, "Video:", util.FormatBitrate(summary.VideoBitrateKbps))
	if summary.AudioBitrateKbps > 0 {
		r.printLabel(12, "Audio:", util.FormatBitrate(summary.AudioBitrateKbps))
	} else {
		r.printLabel(12, "Audio:", "none")
	}

	mode := "single pass"
	if summary.TwoPass {
		mode = "two-pass"
	}
	if summary.QualityHint != nil {
		mode = fmt.Sprintf("%s, crf hint %d", mode, *summary.QualityHint)
	}
	r.printLabel(12, "Mode:", mode)
	r.printLabel(12, "Complexity:", summary.Complexity)
	r.printLabel(12, "Predicted:", fmt.Sprintf("%s of %s budget",
		util.FormatBytes(summary.PredictedSize), util.FormatBytes(summary.TargetSize)))
	r.printLabel(12, "Est. time:", util.FormatDurationFromSecs(int64(summary.EstimatedTime.Seconds())))
}

func (r *TerminalReporter) EncodingStarted(totalFrames uint64) {
	r.finishProgress()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Encoding [",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) EncodingProgress(progress ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	clamped := progress.Percent
	if clamped > 100 {
		clamped = 100
	}
	if clamped < 0 {
		clamped = 0
	}

	if clamped >= r.maxPercent {
		r.maxPercent = clamped
		_ = r.progress.Set64(int64(clamped))
	}

	desc := fmt.Sprintf("speed %.1fx, fps %.1f, eta %s",
		progress.Speed, progress.FPS, util.FormatDurationFromSecs(int64(progress.ETA.Seconds())))
	if progress.TotalPasses > 1 {
		desc = fmt.Sprintf("pass %d/%d, %s", progress.Pass, progress.TotalPasses, desc)
	}
	r.progress.Describe(desc)
}

func (r *TerminalReporter) FallbackAttempt(summary FallbackSummary) {
	r.finishProgress()
	fmt.Println()
	_, _ = r.yellow.Printf("FALLBACK: %s -> %s\n", summary.From, summary.To)
	fmt.Printf("  %s\n", r.faint.Sprint(summary.Reason))
}

func (r *TerminalReporter) RetryAttempt(summary RetrySummary) {
	r.finishProgress()
	fmt.Println()
	_, _ = r.yellow.Printf("RETRY %d/%d: output was %s against a %s target\n",
		summary.Attempt, summary.MaxAttempts,
		util.FormatBytes(summary.ActualBytes), util.FormatBytes(summary.TargetBytes))
	fmt.Printf("  Re-encoding at %s\n", util.FormatBitrate(summary.NewVideoBitrateKbps))
}

func (r *TerminalReporter) ValidationComplete(summary ValidationSummary) {
	r.finishProgress()

	fmt.Println()
	_, _ = r.cyan.Println("VALIDATION")

	if summary.Passed {
		fmt.Printf("  %s\n", r.green.Add(color.Bold).Sprint("All checks passed"))
	} else {
		fmt.Printf("  %s\n", r.red.Sprint("Validation failed"))
	}

	// Find the longest step name for alignment
	maxLen := 0
	for _, step := range summary.Steps {
		if len(step.Name) > maxLen {
			maxLen = len(step.Name)
		}
	}

	for _, step := range summary.Steps {
		var status string
		if step.Passed {
			status = r.green.Sprint("✓")
		} else {
			status = r.red.Sprint("✗")
		}
		paddedName := fmt.Sprintf("%-*s", maxLen, step.Name)
		fmt.Printf("  - %s: %s (%s)\n", paddedName, status, step.Details)
	}
}

func (r *TerminalReporter) EncodingComplete(summary EncodingOutcome) {
	reduction := util.CalculateSizeReduction(summary.OriginalSize, summary.EncodedSize)

	fmt.Println()
	_, _ = r.cyan.Println("RESULTS")
	fmt.Printf("  %s %s\n", r.bold.Sprint("Output:"), r.bold.Sprint(summary.OutputFile))
	r.printLabel(10, "Encoder:", summary.Encoder)
	fmt.Printf("  %s %s -> %s\n",
		r.bold.Sprint("Size:"),
		util.FormatBytesReadable(summary.OriginalSize),
		util.FormatBytesReadable(summary.EncodedSize))
	r.printLabel(10, "Target:", fmt.Sprintf("%s (under by %s)",
		util.FormatBytes(summary.TargetSize),
		util.FormatBytes(summary.TargetSize-summary.EncodedSize)))
	fmt.Printf("  %s %s\n", r.bold.Sprint("Reduction:"), r.bold.Sprintf("%.1f%%", reduction))
	fmt.Printf("  %s %s (avg speed %.1fx)\n",
		r.bold.Sprint("Time:"),
		util.FormatDurationFromSecs(int64(summary.TotalTime.Seconds())),
		summary.AverageSpeed)
	fmt.Printf("  %s %s\n", r.bold.Sprint("Saved to"), r.green.Sprint(summary.OutputPath))
}

func (r *TerminalReporter) Warning(message string) {
	fmt.Println()
	_, _ = r.yellow.Printf("WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	r.finishProgress()
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = r.red.Fprintf(os.Stderr, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(os.Stderr, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	fmt.Println()
	fmt.Printf("%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	fmt.Println()
	_, _ = r.cyan.Println("BATCH")
	fmt.Printf("  Processing %d files -> %s\n", info.TotalFiles, r.bold.Sprint(info.OutputDir))
	for i, name := range info.FileList {
		fmt.Printf("  %d. %s\n", i+1, name)
	}
}

func (r *TerminalReporter) FileProgress(context FileProgressContext) {
	fmt.Printf("\nFile %s of %d\n",
		r.bold.Sprint(context.CurrentFile),
		context.TotalFiles)
}

func (r *TerminalReporter) BatchComplete(summary BatchSummary) {
	reduction := util.CalculateSizeReduction(summary.TotalOriginalSize, summary.TotalEncodedSize)

	fmt.Println()
	_, _ = r.cyan.Println("BATCH SUMMARY")
	fmt.Printf("  %s", r.bold.Sprintf("%d of %d succeeded", summary.SuccessfulCount, summary.TotalFiles))
	if summary.FailedCount > 0 {
		fmt.Printf(" (%s)", r.red.Sprintf("%d failed", summary.FailedCount))
	}
	fmt.Println()
	fmt.Printf("  Size: %s -> %s (%.1f%% reduction)\n",
		util.FormatBytesReadable(summary.TotalOriginalSize),
		util.FormatBytesReadable(summary.TotalEncodedSize),
		reduction)
	fmt.Printf("  Time: %s (avg speed %.1fx)\n",
		util.FormatDurationFromSecs(int64(summary.TotalDuration.Seconds())),
		summary.AverageSpeed)

	for _, result := range summary.FileResults {
		if result.Success {
			fmt.Printf("  %s %s (%.1f%% reduction)\n", r.green.Sprint("✓"), result.Filename, result.Reduction)
		} else {
			fmt.Printf("  %s %s\n", r.red.Sprint("✗"), result.Filename)
		}
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	fmt.Printf("  %s\n", r.faint.Sprint(message))
}
