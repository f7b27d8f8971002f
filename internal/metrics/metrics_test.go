package metrics

import (
	"context"
	"testing"
	"time"
)

type fakeRing struct {
	len      int
	overflow uint64
}

func (f fakeRing) Len() int        { return f.len }
func (f fakeRing) Overflow() uint64 { return f.overflow }

type fakeDetector struct{ open int }

func (f fakeDetector) OpenCandidateCount() int { return f.open }

func TestReportDoesNotPanicWithZeroValues(t *testing.T) {
	r := New(fakeRing{}, fakeDetector{}, func() int { return 0 }, t.TempDir(), time.Millisecond)
	r.report()
}

func TestRunStopsOnContextCancel(t *testing.T) {
	r := New(fakeRing{len: 3, overflow: 1}, fakeDetector{open: 2}, func() int { return 5 }, t.TempDir(), time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestOverflowDeltaTracksSinceLastReport(t *testing.T) {
	ring := &fakeRingPtr{overflow: 10}
	r := New(ring, fakeDetector{}, func() int { return 0 }, t.TempDir(), time.Millisecond)
	r.report()
	if r.lastOverflow != 10 {
		t.Fatalf("lastOverflow = %d, want 10", r.lastOverflow)
	}
	ring.overflow = 25
	r.report()
	if r.lastOverflow != 25 {
		t.Fatalf("lastOverflow = %d, want 25", r.lastOverflow)
	}
}

type fakeRingPtr struct {
	overflow uint64
}

func (f *fakeRingPtr) Len() int        { return 0 }
func (f *fakeRingPtr) Overflow() uint64 { return f.overflow }
