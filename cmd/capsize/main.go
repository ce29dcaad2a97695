// Package main provides the CLI entry point for capsize.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tfells/capsize/internal/config"
	"github.com/tfells/capsize/internal/discovery"
	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/hardware"
	"github.com/tfells/capsize/internal/logging"
	"github.com/tfells/capsize/internal/plan"
	"github.com/tfells/capsize/internal/processing"
	"github.com/tfells/capsize/internal/reporter"
	"github.com/tfells/capsize/internal/session"
	"github.com/tfells/capsize/internal/util"
)

const (
	appName    = "capsize"
	appVersion = "0.3.0"
)

// Exit codes distinguish failures that prevented compression from starting
// (bad input or parameters) from failures to guarantee the size once
// encoding had begun.
const (
	exitFailure   = 1
	exitStartup   = 2
	exitCancelled = 130
)

// staleTempAge is how old an abandoned pass log must be before the
// startup sweep removes it.
const staleTempAge = 24 * time.Hour

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		switch {
		case errors.IsCancelled(err):
			return exitCancelled
		case errors.IsStartupFailure(err):
			return exitStartup
		default:
			return exitFailure
		}
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Compress videos to a guaranteed maximum size",
		Long: `Capsize compresses videos so the output never exceeds a chosen size
target, picking the fastest usable encoder on the machine and verifying
the result.`,
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newCompressCmd())
	root.AddCommand(newHardwareCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// compressOptions holds the parsed flags for the compress command.
type compressOptions struct {
	output        string
	size          string
	sizeBytes     uint64
	encoder       string
	forceSoftware bool
	autoQuality   bool
	device        int
	queue         bool
	compat        bool
	speed         string
	maxConcurrent int
	jsonOutput    bool
	verbose       bool
	configFile    string
	logDir        string
	noLog         bool
}

func newCompressCmd() *cobra.Command {
	var opts compressOptions

	cmd := &cobra.Command{
		Use:   "compress INPUT",
		Short: "Compress a video file or a directory of videos",
		Long: `Compress a video so the output fits within the size target. When INPUT
is a directory, every video file directly inside it is compressed.

Without -o, output is written next to the input with a size suffix
(clip.mkv -> clip_small.mp4 for the 10mb target).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompress(cmd, args[0], &opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output directory, or an .mp4 filename for single file input")
	flags.StringVar(&opts.size, "size", "", "target size preset: 1mb, 5mb, 10mb, 30mb, 50mb (default 10mb)")
	flags.Uint64Var(&opts.sizeBytes, "size-bytes", 0, "explicit target size in bytes")
	flags.StringVar(&opts.encoder, "encoder", "", "pin a specific encoder (see 'capsize hardware')")
	flags.BoolVar(&opts.forceSoftware, "force-software", false, "skip hardware encoders")
	flags.BoolVar(&opts.autoQuality, "auto-quality", false, "add an estimator quality hint to the encode plan")
	flags.IntVar(&opts.device, "device", -1, "hardware device index for multi-GPU machines")
	flags.BoolVar(&opts.queue, "queue", false, "wait for a free device session instead of falling back to software")
	flags.BoolVar(&opts.compat, "compat", false, "restrict output to H.264 for maximum player compatibility")
	flags.StringVar(&opts.speed, "speed", "", "speed preset: fast, balanced, quality (default balanced)")
	flags.IntVar(&opts.maxConcurrent, "max-concurrent", 0, "files to compress at once in batch mode (1-8)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "emit NDJSON events instead of terminal output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&opts.configFile, "config", "", "config file path")
	flags.StringVar(&opts.logDir, "log-dir", "", "log directory (default OUTPUT/logs)")
	flags.BoolVar(&opts.noLog, "no-log", false, "disable run log file creation")

	cmd.MarkFlagsMutuallyExclusive("size", "size-bytes")
	cmd.MarkFlagsMutuallyExclusive("encoder", "force-software")

	return cmd
}

func runCompress(cmd *cobra.Command, input string, opts *compressOptions) error {
	ctx := cmd.Context()

	inputPath, err := filepath.Abs(input)
	if err != nil {
		return errors.NewPathError("invalid input path: " + input)
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return errors.NewConfigError(err.Error())
	}
	if err := applyFlags(cmd, cfg, opts); err != nil {
		return err
	}

	outputDir, filenameOverride, err := resolveOutput(inputPath, opts.output)
	if err != nil {
		return err
	}
	cfg.OutputDir = outputDir
	if outputDir != "" {
		if err := util.EnsureDirectory(outputDir); err != nil {
			return errors.NewIOError("cannot create output directory "+outputDir, err)
		}
		if err := util.EnsureDirectoryWritable(outputDir); err != nil {
			return errors.NewIOError("cannot write to output directory "+outputDir, err)
		}
	}

	logDir := opts.logDir
	if logDir == "" {
		base := outputDir
		if base == "" {
			base = filepath.Dir(inputPath)
		}
		logDir = filepath.Join(base, "logs")
	}
	cfg.LogDir = logDir

	if err := cfg.Validate(); err != nil {
		return err
	}

	runLog, err := logging.Setup(logDir, opts.verbose, opts.noLog)
	if err != nil {
		return errors.NewIOError("cannot set up logging", err)
	}
	defer func() { _ = runLog.Close() }()
	log := runLog.Log()

	files, err := discovery.ResolveInputs(inputPath, log)
	if err != nil {
		return err
	}

	var rep reporter.Reporter
	if opts.jsonOutput {
		rep = reporter.NewJSONReporter()
	} else {
		rep = reporter.NewTerminalReporter(opts.verbose)
	}

	// Pass logs from runs that died mid-encode are never reclaimed by the
	// normal cleanup path.
	if tmpDir := cfg.GetTempDir(); tmpDir != "" {
		if removed, err := util.CleanupStaleTempFiles(tmpDir, "capsize", staleTempAge); err == nil && removed > 0 {
			log.Infof("removed %d stale temp files from %s", removed, tmpDir)
		}
	}

	registry := hardware.NewRegistry(cfg.FFmpegPath)
	deps := session.Deps{
		Config:       cfg,
		Capabilities: registry.Get(ctx),
		Permits:      registry.Permits(ctx),
		Reporter:     rep,
		Logger:       log,
	}

	_, err = processing.ProcessVideos(ctx, files, filenameOverride, deps)
	return err
}

// applyFlags layers explicitly-set flags over the loaded configuration so
// config file and environment values survive unset flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts *compressOptions) error {
	flags := cmd.Flags()

	if flags.Changed("size") {
		target, err := plan.ParseTarget(opts.size)
		if err != nil {
			return err
		}
		cfg.TargetMB = target.PresetMB()
		cfg.TargetBytes = 0
	}
	if flags.Changed("size-bytes") {
		cfg.TargetBytes = opts.sizeBytes
	}
	if flags.Changed("encoder") {
		cfg.Encoder = opts.encoder
	}
	if flags.Changed("force-software") {
		cfg.ForceSoftware = opts.forceSoftware
	}
	if flags.Changed("auto-quality") {
		cfg.AutoQuality = opts.autoQuality
	}
	if flags.Changed("device") {
		cfg.DeviceID = opts.device
	}
	if flags.Changed("queue") {
		cfg.QueueOnBusy = opts.queue
	}
	if flags.Changed("compat") {
		cfg.CompatibilityMode = opts.compat
	}
	if flags.Changed("speed") {
		speed, err := config.ParseSpeedPreset(opts.speed)
		if err != nil {
			return err
		}
		cfg.Speed = speed
	}
	if flags.Changed("max-concurrent") {
		cfg.MaxConcurrent = opts.maxConcurrent
	}
	cfg.Verbose = opts.verbose
	cfg.NoLog = opts.noLog

	return nil
}

// resolveOutput interprets -o as a directory, or as an .mp4 filename when
// the input is a single file. Empty keeps the suffixed-sibling default.
func resolveOutput(inputPath, outputArg string) (outputDir, filenameOverride string, err error) {
	if outputArg == "" {
		return "", "", nil
	}

	info, err := util.ResolveOutputArg(inputPath, outputArg)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", errors.NewPathError("input path does not exist: " + inputPath)
		}
		return "", "", errors.NewValidationError("output filename must use the .mp4 extension")
	}

	absDir, err := filepath.Abs(info.OutputDir)
	if err != nil {
		return "", "", errors.NewPathError("invalid output path: " + outputArg)
	}
	return absDir, info.FilenameOverride, nil
}

func newHardwareCmd() *cobra.Command {
	var jsonOutput, refresh bool
	var configFile string

	cmd := &cobra.Command{
		Use:   "hardware",
		Short: "Show detected encoders and devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return errors.NewConfigError(err.Error())
			}

			registry := hardware.NewRegistry(cfg.FFmpegPath)
			var caps hardware.Capabilities
			if refresh {
				caps = registry.Refresh(cmd.Context())
			} else {
				caps = registry.Get(cmd.Context())
			}

			var rep reporter.Reporter
			if jsonOutput {
				rep = reporter.NewJSONReporter()
			} else {
				rep = reporter.NewTerminalReporter(false)
			}
			processing.ReportHardware(rep, caps)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the capability report as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-run detection instead of using any cached result")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, appVersion)
		},
	}
}
