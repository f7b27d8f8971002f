package catalog

import (
	"context"
	"testing"

	"skywatch/internal/detector"
)

func TestCatalogRunAndEventRoundTrip(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateRun(ctx, "run-1", "STATION01", `{"fps":30}`); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	ev := &detector.Event{
		ID: 42,
		Candidate: detector.Candidate{
			FirstSeen:     50,
			LastSeen:      150,
			PeakIntensity: 200,
			Trajectory:    make([]detector.TrajPoint, 101),
		},
	}
	if err := store.IndexEvent(ctx, "run-1", ev, "/data/STATION01_20260730/event042", false); err != nil {
		t.Fatalf("IndexEvent: %v", err)
	}

	events, err := store.RecentEvents(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].FirstSeq != 50 || events[0].LastSeq != 150 {
		t.Fatalf("got first/last = %d/%d, want 50/150", events[0].FirstSeq, events[0].LastSeq)
	}
	if events[0].TrajectoryLen != 101 {
		t.Fatalf("TrajectoryLen = %d, want 101", events[0].TrajectoryLen)
	}
}

func TestCatalogMigrationIsIdempotent(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.migrate(); err != nil {
		t.Fatalf("second migrate() call should be a no-op, got: %v", err)
	}
}
