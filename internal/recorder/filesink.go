package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink is the default StorageSink: it writes artifacts under
// DataPath/.../eventNNN/ using the same temp-file-then-rename atomic write
// pattern as the teacher's blob store, so a crash mid-write never leaves a
// half-written artifact behind (spec.md §8 scenario 5's "no artifacts are
// half-written" invariant).
type FileSink struct{}

// NewFileSink returns a ready-to-use filesystem StorageSink.
func NewFileSink() *FileSink { return &FileSink{} }

// Persist writes data to dir/name atomically, creating dir if needed.
func (FileSink) Persist(ctx context.Context, dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create event directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-write-*")
	if err != nil {
		return fmt.Errorf("create temp artifact file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write artifact bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close artifact file: %w", err)
	}

	finalPath := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move artifact into place: %w", err)
	}
	return nil
}
