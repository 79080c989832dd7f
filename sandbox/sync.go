package sandbox

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/isdmx/mendbox/runtime"
)

// Synchronizer stages a FileSet to a scratch directory and pushes it into a
// session's container workspace. Pushes are incremental overlays: existing
// workspace files are overwritten, files absent from the set are left alone.
type Synchronizer struct {
	logger *zap.Logger
	rt     runtime.Runtime
}

// NewSynchronizer creates a Synchronizer backed by the given runtime
func NewSynchronizer(logger *zap.Logger, rt runtime.Runtime) *Synchronizer {
	return &Synchronizer{logger: logger, rt: rt}
}

// Stage writes the file set to a fresh temporary directory and returns its
// path. Every call gets its own directory so concurrent sessions never
// share one. The caller removes the directory when done.
func (s *Synchronizer) Stage(files FileSet) (string, error) {
	dir, err := os.MkdirTemp("", "mendbox-stage-*")
	if err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	if err := files.WriteDir(dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("stage files: %w", err)
	}
	return dir, nil
}

// Push copies a staged directory into the named session's workspace
func (s *Synchronizer) Push(ctx context.Context, name, localDir string) error {
	return s.rt.CopyTree(ctx, name, localDir)
}

// Sync stages the file set and pushes it in one step, cleaning up the
// staging directory afterwards
func (s *Synchronizer) Sync(ctx context.Context, name string, files FileSet) error {
	dir, err := s.Stage(files)
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if err := s.Push(ctx, name, dir); err != nil {
		return fmt.Errorf("push files: %w", err)
	}
	s.logger.Debug("files synchronized",
		zap.String("container", name),
		zap.Int("files", len(files)))
	return nil
}
