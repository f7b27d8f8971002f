package recorder

import (
	"context"
	"fmt"
	"testing"
	"time"

	"skywatch/internal/config"
	"skywatch/internal/detector"
	"skywatch/internal/frame"
)

type flakySink struct {
	failUntil int
	calls     map[string]int
	lastData  map[string][]byte
}

func newFlakySink(failUntil int) *flakySink {
	return &flakySink{failUntil: failUntil, calls: map[string]int{}, lastData: map[string][]byte{}}
}

func (f *flakySink) Persist(ctx context.Context, dir, name string, data []byte) error {
	key := dir + "/" + name
	f.calls[key]++
	f.lastData[key] = data
	if f.calls[key] <= f.failUntil {
		return fmt.Errorf("simulated failure %d", f.calls[key])
	}
	return nil
}

func TestPersistWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := config.Default()
	r := New(cfg, frame.NewRingBuffer(10), &flakySink{}, nil, "run1", 1)
	sink := newFlakySink(2) // fails twice, succeeds on 3rd (final retry)
	r.sink = sink

	r.persistWithRetry(context.Background(), "eventdir", Artifact{Name: "meta.json", Data: []byte("{}")})

	if got := sink.calls["eventdir/meta.json"]; got != 3 {
		t.Fatalf("Persist called %d times, want 3 (2 failures + 1 success)", got)
	}
}

func TestPersistWithRetryGivesUpAfterThreeFailures(t *testing.T) {
	cfg := config.Default()
	sink := newFlakySink(10) // always fails
	r := New(cfg, frame.NewRingBuffer(10), sink, nil, "run1", 1)

	r.persistWithRetry(context.Background(), "eventdir", Artifact{Name: "meta.json", Data: []byte("{}")})

	if got := sink.calls["eventdir/meta.json"]; got != 3 {
		t.Fatalf("Persist called %d times, want 3 (capped retries)", got)
	}
}

func TestMaterializeWindowReportsTruncation(t *testing.T) {
	cfg := config.Default()
	cfg.DetTimeAfter = 0.01 // keep the test fast: short deadline
	ring := frame.NewRingBuffer(4)
	for seq := uint64(1); seq <= 4; seq++ {
		ring.Push(frame.New(seq, time.Now().UTC(), 2, 2, frame.Depth8, make([]byte, 4)))
	}

	r := New(cfg, ring, newFlakySink(0), nil, "run1", 1)
	ev := &detector.Event{ID: 1, WindowStart: 1, WindowEnd: 100} // far beyond what the ring holds

	frames, truncated := r.materializeWindow(ev)
	if !truncated {
		t.Fatal("expected truncated=true when the window exceeds ring extent")
	}
	if len(frames) == 0 {
		t.Fatal("expected at least the available frames to be returned")
	}
}
