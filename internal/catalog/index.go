package catalog

import (
	"context"
	"strconv"

	"skywatch/internal/detector"
)

// IndexEvent implements recorder.CatalogIndexer: Go's structural interface
// satisfaction means Store needs no import of package recorder to serve as
// its hook.
func (s *Store) IndexEvent(ctx context.Context, runID string, ev *detector.Event, dir string, truncated bool) error {
	return s.InsertEventRecord(
		ctx,
		strconv.FormatUint(ev.ID, 10),
		runID,
		ev.Candidate.FirstSeen,
		ev.Candidate.LastSeen,
		ev.Candidate.PeakIntensity,
		len(ev.Candidate.Trajectory),
		truncated,
		dir,
	)
}
