package stacker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStackSink persists StackedFrames under DataPath/StationName_YYYYMMDD/stacks/,
// atomically via temp-file-then-rename, mirroring recorder.FileSink.
type FileStackSink struct {
	DataPath    string
	StationName string
}

// NewFileStackSink returns a ready-to-use filesystem StackSink.
func NewFileStackSink(dataPath, station string) *FileStackSink {
	return &FileStackSink{DataPath: dataPath, StationName: station}
}

// PathFor returns the final on-disk path Persist will write sf to, without
// writing anything. Supervisor uses it to index the StackRecord after a
// successful Persist without Persist itself needing to know about Catalog.
func (s *FileStackSink) PathFor(sf *StackedFrame) string {
	day := sf.Start.UTC().Format("20060102")
	dir := filepath.Join(s.DataPath, fmt.Sprintf("%s_%s", s.StationName, day), "stacks")
	name := fmt.Sprintf("stack_%s.bmp", sf.Start.UTC().Format("150405.000"))
	return filepath.Join(dir, name)
}

func (s *FileStackSink) Persist(ctx context.Context, sf *StackedFrame) error {
	finalPath := s.PathFor(sf)
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stack directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".stack-write-*")
	if err != nil {
		return fmt.Errorf("create temp stack file: %w", err)
	}
	tmpPath := tmp.Name()

	data := sf.Reduced
	if data == nil {
		// StackReduce is off: fall back to the raw 32-bit accumulator so
		// persistence still carries the full-precision stack.
		data = encodeAccum32(sf.Accum)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write stack bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close stack file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("move stack into place: %w", err)
	}
	return nil
}
