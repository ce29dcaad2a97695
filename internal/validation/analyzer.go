package validation

import (
	"context"

	"github.com/tfells/capsize/internal/probe"
)

// MediaAnalyzer supplies the output media properties verification needs.
// This interface allows verification logic to be tested without external
// tools.
type MediaAnalyzer interface {
	// Analyze returns stream properties for the given file.
	Analyze(ctx context.Context, path string) (*probe.VideoMetadata, error)

	// FileSize returns the size of the given file in bytes.
	FileSize(path string) (uint64, error)
}
