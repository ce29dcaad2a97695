package validation

import (
	"context"

	"github.com/tfells/capsize/internal/probe"
	"github.com/tfells/capsize/internal/util"
)

// DefaultAnalyzer implements MediaAnalyzer using ffprobe.
type DefaultAnalyzer struct {
	ffprobePath string
}

// NewDefaultAnalyzer creates a new DefaultAnalyzer using the given
// ffprobe binary.
func NewDefaultAnalyzer(ffprobePath string) *DefaultAnalyzer {
	return &DefaultAnalyzer{ffprobePath: ffprobePath}
}

// Analyze returns stream properties using ffprobe.
func (a *DefaultAnalyzer) Analyze(ctx context.Context, path string) (*probe.VideoMetadata, error) {
	return probe.Probe(ctx, a.ffprobePath, path)
}

// FileSize returns the file size in bytes.
func (a *DefaultAnalyzer) FileSize(path string) (uint64, error) {
	return util.GetFileSize(path)
}
