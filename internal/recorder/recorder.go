// Package recorder implements the EventRecorder described in spec.md §4.5:
// on a trigger it freezes a window of the RingBuffer, copies it out,
// produces the configured artifact set, and dispatches each to a
// StorageSink with independent retry-twice-then-skip failure isolation.
package recorder

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"skywatch/internal/config"
	"skywatch/internal/detector"
	"skywatch/internal/errs"
	"skywatch/internal/frame"
)

// StorageSink is the external persistence contract. Persist writes data
// under dir/name; it is retried up to twice by the caller on failure, so
// implementations need not retry internally.
type StorageSink interface {
	Persist(ctx context.Context, dir, name string, data []byte) error
}

// CatalogIndexer is the optional hook into internal/catalog; EventRecorder
// calls it after every artifact set has been dispatched, including when
// some artifacts were skipped after their retries failed.
type CatalogIndexer interface {
	IndexEvent(ctx context.Context, runID string, ev *detector.Event, dir string, truncated bool) error
}

// EventRecorder owns a small bounded worker pool so slow disk I/O cannot
// starve CPU work elsewhere in the pipeline, per spec.md §5.
type EventRecorder struct {
	cfg     *config.Config
	ring    *frame.RingBuffer
	sink    StorageSink
	catalog CatalogIndexer
	runID   string

	queue chan *detector.Event
	wg    sync.WaitGroup
}

// New creates an EventRecorder with workers goroutines draining its queue.
// catalog may be nil to disable indexing.
func New(cfg *config.Config, ring *frame.RingBuffer, sink StorageSink, catalog CatalogIndexer, runID string, workers int) *EventRecorder {
	if workers < 1 {
		workers = 1
	}
	r := &EventRecorder{
		cfg: cfg, ring: ring, sink: sink, catalog: catalog, runID: runID,
		queue: make(chan *detector.Event, 64),
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Emit implements detector.EventSink. It must not block the Detector, so
// it only enqueues; if the queue is saturated the event is dropped with a
// log line rather than applying backpressure to detection.
func (r *EventRecorder) Emit(e *detector.Event) {
	select {
	case r.queue <- e:
	default:
		log.Printf("[recorder] queue full, dropping event for candidate %d", e.ID)
	}
}

// QueueDepth reports the number of events waiting to be processed, for
// internal/metrics.
func (r *EventRecorder) QueueDepth() int { return len(r.queue) }

// Close stops accepting new events and waits for in-flight ones to finish.
func (r *EventRecorder) Close() {
	close(r.queue)
	r.wg.Wait()
}

func (r *EventRecorder) worker() {
	defer r.wg.Done()
	for ev := range r.queue {
		r.process(ev)
	}
}

func (r *EventRecorder) process(ev *detector.Event) {
	ctx := context.Background()

	frames, truncated := r.materializeWindow(ev)
	defer frame.Release(frames...)

	dir := r.targetDir(ev)
	artifacts := buildArtifacts(r.cfg, r.cfg.StationName, frames, ev.Candidate, truncated)

	for _, a := range artifacts {
		r.persistWithRetry(ctx, dir, a)
	}

	if r.catalog != nil {
		if err := r.catalog.IndexEvent(ctx, r.runID, ev, dir, truncated); err != nil {
			log.Printf("[recorder] catalog index failed for event %d: %v", ev.ID, err)
		}
	}
}

// materializeWindow blocks until the RingBuffer contains ev.WindowEnd (up
// to 1.5×Post seconds), then snapshots and copies the window out, per
// spec.md §4.5 step 2-3. If the deadline elapses first, it proceeds with
// whatever is available and reports truncated=true.
func (r *EventRecorder) materializeWindow(ev *detector.Event) ([]*frame.Frame, bool) {
	deadline := time.Now().Add(time.Duration(1.5 * r.cfg.DetTimeAfter * float64(time.Second)))
	pollInterval := 10 * time.Millisecond

	for {
		latest := r.ring.Latest()
		ready := latest != nil && latest.Seq >= ev.WindowEnd
		if latest != nil {
			frame.Release(latest)
		}
		if ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	raw, missed := r.ring.SnapshotRange(ev.WindowStart, ev.WindowEnd)
	truncated := missed > 0

	cloned := make([]*frame.Frame, len(raw))
	for i, f := range raw {
		cloned[i] = f.Clone()
	}
	frame.Release(raw...)
	return cloned, truncated
}

func (r *EventRecorder) targetDir(ev *detector.Event) string {
	day := time.Now().UTC().Format("20060102")
	return filepath.Join(
		r.cfg.DataPath,
		fmt.Sprintf("%s_%s", r.cfg.StationName, day),
		fmt.Sprintf("event%03d_%s", ev.ID, shortID()),
	)
}

func shortID() string {
	id := uuid.New()
	return id.String()[:8]
}

// persistWithRetry dispatches one artifact, retrying up to twice on
// failure before logging and skipping it. A failure here must never abort
// the rest of the artifact set, per spec.md §4.5 step 5.
func (r *EventRecorder) persistWithRetry(ctx context.Context, dir string, a Artifact) {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = r.sink.Persist(ctx, dir, a.Name, a.Data)
		if err == nil {
			return
		}
		ioErr := errs.IO("recorder", fmt.Errorf("persist %s/%s (attempt %d): %w", dir, a.Name, attempt+1, err))
		log.Printf("%v", ioErr)
	}
	log.Printf("[recorder] giving up on %s/%s after 3 attempts: %v", dir, a.Name, err)
}
