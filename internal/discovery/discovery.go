// Package discovery resolves compression inputs: a single video file, or a
// directory scanned for video files.
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tfells/capsize/internal/errors"
	"github.com/tfells/capsize/internal/logging"
	"github.com/tfells/capsize/internal/util"
)

// Result carries the discovered files plus scan metadata.
type Result struct {
	Files        []string
	SkippedCount int
}

// ResolveInputs expands inputPath into the list of files to compress. A video
// file resolves to itself; a directory is scanned non-recursively.
func ResolveInputs(inputPath string, log *logging.Logger) ([]string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, errors.NewPathError("input does not exist: " + inputPath)
	}

	if !info.IsDir() {
		if !util.IsVideoFile(inputPath) {
			return nil, errors.NewPathError("not a recognized video file: " + inputPath)
		}
		return []string{inputPath}, nil
	}

	result, err := ScanDirectory(inputPath)
	if err != nil {
		return nil, err
	}
	logDiscovered(result, log)
	return result.Files, nil
}

// ScanDirectory finds video files directly under dir, sorted by filename
// (case-insensitive). Hidden files and subdirectories are skipped.
func ScanDirectory(dir string) (*Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewIOError("cannot read directory "+dir, err)
	}

	result := &Result{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		fullPath := filepath.Join(dir, name)
		if util.IsVideoFile(fullPath) {
			result.Files = append(result.Files, fullPath)
		} else {
			result.SkippedCount++
		}
	}

	if len(result.Files) == 0 {
		return nil, errors.NewNoFilesFoundError(dir)
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(result.Files[i])) < strings.ToLower(filepath.Base(result.Files[j]))
	})

	return result, nil
}

// logDiscovered records the first few discovered files plus a count.
func logDiscovered(result *Result, log *logging.Logger) {
	log.Infof("Found %d video file(s), skipped %d other entries", len(result.Files), result.SkippedCount)

	maxToLog := min(5, len(result.Files))
	for i := 0; i < maxToLog; i++ {
		log.Debugf("  %s", filepath.Base(result.Files[i]))
	}
	if len(result.Files) > 5 {
		log.Debugf("  ... and %d more", len(result.Files)-5)
	}
}
