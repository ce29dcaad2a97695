// Package processing runs compression sessions over one or more input
// files and aggregates the batch outcome.
package processing

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/plan"
	"github.com/tfells/capsize/internal/reporter"
	"github.com/tfells/capsize/internal/session"
	"github.com/tfells/capsize/internal/util"
)

// EncodeResult contains the result of a single file in a batch.
type EncodeResult struct {
	Filename          string
	OutputPath        string
	Success           bool
	Err               error
	Duration          time.Duration
	InputSize         uint64
	OutputSize        uint64
	TargetSize        uint64
	Encoder           string
	VideoDurationSecs float64
	EncodingSpeed     float32
	Retries           int
}

// ProcessVideos compresses every listed file toward the configured target
// size. Files run through independent sessions built from deps,
// concurrently when the configuration allows it; one failed file never
// aborts the rest. The returned error is non-nil only when not a single
// file succeeded.
func ProcessVideos(ctx context.Context, files []string, targetFilenameOverride string, deps session.Deps) ([]EncodeResult, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig("", "")
		deps.Config = cfg
	}
	rep := deps.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
		deps.Reporter = rep
	}

	target, err := targetFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	ReportHardware(rep, deps.Capabilities)
	deps.Logger.LogHardware(len(deps.Capabilities.Available), len(deps.Capabilities.Devices), deps.Capabilities.Preferred.String())

	if len(files) > 1 {
		var fileNames []string
		for _, f := range files {
			fileNames = append(fileNames, util.GetFilename(f))
		}
		rep.BatchStarted(reporter.BatchStartInfo{
			TotalFiles: len(files),
			FileList:   fileNames,
			OutputDir:  cfg.OutputDir,
		})
	}

	concurrency := batchConcurrency(cfg, deps.Capabilities, len(files))
	if len(files) > 1 {
		rep.Verbose(fmt.Sprintf("Running up to %d sessions at once", concurrency))
		deps.Logger.Infof("batch of %d files, concurrency %d", len(files), concurrency)
	}

	slots := make([]EncodeResult, len(files))
	attempted := make([]bool, len(files))

	if concurrency <= 1 {
		for i, inputPath := range files {
			if ctx.Err() != nil {
				rep.Warning(fmt.Sprintf("Batch cancelled: %v", ctx.Err()))
				break
			}
			slots[i], attempted[i] = processOne(ctx, deps, target, inputPath, targetFilenameOverride, i, len(files))
		}
	} else {
		sem := make(chan struct{}, concurrency)
		var wg sync.WaitGroup
		for i, inputPath := range files {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, path string) {
				defer wg.Done()
				defer func() { <-sem }()
				slots[idx], attempted[idx] = processOne(ctx, deps, target, path, targetFilenameOverride, idx, len(files))
			}(i, inputPath)
		}
		wg.Wait()
		if ctx.Err() != nil {
			rep.Warning(fmt.Sprintf("Batch cancelled: %v", ctx.Err()))
		}
	}

	var results []EncodeResult
	for i := range slots {
		if attempted[i] {
			results = append(results, slots[i])
		}
	}

	summarize(rep, len(files), results)

	successes := 0
	var firstErr error
	for _, r := range results {
		if r.Success {
			successes++
		} else if firstErr == nil && r.Err != nil {
			firstErr = r.Err
		}
	}
	if successes == 0 {
		if firstErr != nil {
			return results, firstErr
		}
		if ctx.Err() != nil {
			return results, errors.NewCancelledError()
		}
	}
	return results, nil
}

// processOne runs a single file through a session. The bool result is
// false when the file was skipped rather than attempted.
func processOne(
	ctx context.Context,
	deps session.Deps,
	target plan.TargetSize,
	inputPath, targetFilenameOverride string,
	fileIdx, totalFiles int,
) (EncodeResult, bool) {
	rep := deps.Reporter
	if totalFiles > 1 {
		rep.FileProgress(reporter.FileProgressContext{
			CurrentFile: fileIdx + 1,
			TotalFiles:  totalFiles,
		})
	}

	inputFilename := util.GetFilename(inputPath)

	override := ""
	if totalFiles == 1 {
		override = targetFilenameOverride
	}
	outputPath := resolveOutput(deps.Config, target, inputPath, override)

	if util.FileExists(outputPath) {
		rep.Warning(fmt.Sprintf("Output file already exists: %s. Skipping.", outputPath))
		return EncodeResult{}, false
	}

	if needed := target.Bytes() * config.DiskSpaceHeadroomFactor; !util.HasEnoughSpace(filepath.Dir(outputPath), needed) {
		rep.Warning(fmt.Sprintf("Low disk space for %s: less than %s free", outputPath, util.FormatBytes(needed)))
	}

	result, err := session.New(inputPath, outputPath, target, deps).Run(ctx)
	if err != nil {
		return EncodeResult{
			Filename:   inputFilename,
			OutputPath: outputPath,
			Success:    false,
			Err:        err,
			TargetSize: target.Bytes(),
		}, true
	}

	return EncodeResult{
		Filename:          inputFilename,
		OutputPath:        result.OutputPath,
		Success:           true,
		Duration:          result.Elapsed,
		InputSize:         result.InputBytes,
		OutputSize:        result.OutputBytes,
		TargetSize:        result.TargetBytes,
		Encoder:           result.Encoder.DisplayName(),
		VideoDurationSecs: result.SourceDurationSec,
		EncodingSpeed:     result.AverageSpeed,
		Retries:           result.Retries,
	}, true
}

// resolveOutput picks the output path: an explicit filename override, the
// configured output directory, or a suffixed sibling of the input.
func resolveOutput(cfg *config.Config, target plan.TargetSize, inputPath, override string) string {
	if override != "" {
		return filepath.Join(cfg.OutputDir, override)
	}
	if cfg.OutputDir != "" {
		return util.ResolveOutputPath(inputPath, cfg.OutputDir, "")
	}
	return util.GenerateOutputPath(inputPath, target.PresetMB())
}

func targetFromConfig(cfg *config.Config) (plan.TargetSize, error) {
	if cfg.TargetBytes > 0 {
		return plan.TargetFromBytes(cfg.TargetBytes)
	}
	return plan.TargetFromPreset(cfg.TargetMB)
}

// ReportHardware emits a hardware summary for the detected capabilities.
// Shared with the CLI's hardware subcommand.
func ReportHardware(rep reporter.Reporter, caps hardware.Capabilities) {
	sysInfo := util.GetSystemInfo()

	encoders := make([]string, 0, len(caps.Available))
	for _, enc := range caps.Available {
		encoders = append(encoders, enc.DisplayName())
	}
	devices := make([]reporter.DeviceSummary, 0, len(caps.Devices))
	for _, dev := range caps.Devices {
		devices = append(devices, reporter.DeviceSummary{
			ID:          dev.ID,
			Name:        dev.Name,
			VRAMMB:      dev.VRAMMB,
			ComputeCap:  fmt.Sprintf("%d.%d", dev.ComputeCapMajor, dev.ComputeCapMinor),
			MaxSessions: dev.MaxConcurrentSessions,
		})
	}

	rep.Hardware(reporter.HardwareSummary{
		Hostname:  sysInfo.Hostname,
		CPUModel:  sysInfo.CPUModel,
		Encoders:  encoders,
		Devices:   devices,
		Preferred: caps.Preferred.DisplayName(),
	})
}

// batchConcurrency bounds how many sessions run at once: the configured
// limit, capped by the hard batch maximum and, in memory-optimized mode,
// by what available memory supports.
func batchConcurrency(cfg *config.Config, caps hardware.Capabilities, fileCount int) int {
	limit := cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}
	if limit > config.MaxBatchConcurrent {
		limit = config.MaxBatchConcurrent
	}

	if cfg.MemoryOptimized {
		sessionBytes := hardware.EstimateMemoryMB(caps.Preferred, caps.Devices) * util.MiB
		if byMemory := util.MaxConcurrentForMemory(sessionBytes, config.MemoryFraction); byMemory < limit {
			limit = byMemory
		}
	}

	if fileCount > 0 && fileCount < limit {
		limit = fileCount
	}
	return limit
}

func summarize(rep reporter.Reporter, totalFiles int, results []EncodeResult) {
	if totalFiles <= 1 {
		// The session reports its own completion or failure.
		return
	}

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		}
	}
	if successes == 0 {
		rep.Warning("No files were successfully compressed")
		return
	}

	var totalDuration time.Duration
	var totalOriginalSize, totalEncodedSize uint64
	var totalVideoDuration float64
	var fileResults []reporter.FileResult

	for _, r := range results {
		fileResults = append(fileResults, reporter.FileResult{
			Filename:  r.Filename,
			Reduction: util.CalculateSizeReduction(r.InputSize, r.OutputSize),
			Success:   r.Success,
		})
		if !r.Success {
			continue
		}
		totalDuration += r.Duration
		totalOriginalSize += r.InputSize
		totalEncodedSize += r.OutputSize
		totalVideoDuration += r.VideoDurationSecs
	}

	avgSpeed := float32(0)
	if totalDuration.Seconds() > 0 {
		avgSpeed = float32(totalVideoDuration / totalDuration.Seconds())
	}

	rep.BatchComplete(reporter.BatchSummary{
		SuccessfulCount:   successes,
		FailedCount:       len(results) - successes,
		TotalFiles:        totalFiles,
		TotalOriginalSize: totalOriginalSize,
		TotalEncodedSize:  totalEncodedSize,
		TotalDuration:     totalDuration,
		AverageSpeed:      avgSpeed,
		FileResults:       fileResults,
	})
}
