// Run-log support: a timestamped per-invocation log file for the capsize CLI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunLog couples a Logger with the file backing it.
type RunLog struct {
	*Logger
	file     *os.File
	filePath string
}

// Setup creates a logger that writes JSON events to a timestamped log file.
// Returns nil if logging is disabled (noLog=true); a nil RunLog is safe to use.
func Setup(logDir string, verbose, noLog bool) (*RunLog, error) {
	if noLog {
		return nil, nil
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("capsize_run_%s.log", timestamp)
	filePath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", filePath, err)
	}

	level := "info"
	if verbose {
		level = "debug"
	}

	logger := New(Config{Level: level, Format: "json", Output: file})

	rl := &RunLog{
		Logger:   logger,
		file:     file,
		filePath: filePath,
	}

	rl.Info("capsize starting")
	if verbose {
		rl.Info("Debug level logging enabled")
	}
	rl.Infof("Log file: %s", filePath)

	return rl, nil
}

// Close closes the log file.
func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// FilePath returns the path to the log file.
func (r *RunLog) FilePath() string {
	if r == nil {
		return ""
	}
	return r.filePath
}

// Log returns the underlying Logger, nil-safe.
func (r *RunLog) Log() *Logger {
	if r == nil {
		return nil
	}
	return r.Logger
}
