package catalog

import (
	"context"

	"skywatch/internal/stacker"
)

// IndexStack indexes one persisted StackedFrame as a stack_records row. The
// Supervisor's stack sink wrapper writes the same row by calling
// InsertStackRecord directly rather than through this method.
func (s *Store) IndexStack(ctx context.Context, runID string, sf *stacker.StackedFrame, outputPath string) error {
	return s.InsertStackRecord(ctx, runID, sf.Start, sf.End, sf.N, string(sf.Method), outputPath)
}
