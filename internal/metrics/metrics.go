// Package metrics periodically logs pipeline health: ring buffer occupancy
// and overflow, detector candidate counts, recorder queue depth and disk
// headroom, per SPEC_FULL.md §4.9. None of this is fatal — it exists so an
// operator can see backpressure building before it becomes an incident.
package metrics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/time/rate"

	"skywatch/internal/errs"
)

// RingStats is the subset of frame.RingBuffer state the Reporter needs.
type RingStats interface {
	Len() int
	Overflow() uint64
}

// DetectorStats is the subset of detector.Detector state the Reporter needs.
type DetectorStats interface {
	OpenCandidateCount() int
}

// Reporter owns the periodic logging goroutine. It is started by the
// Supervisor and obeys the same context-cancellation discipline as every
// other long-lived loop.
type Reporter struct {
	ring         RingStats
	detector     DetectorStats
	queueDepth   func() int
	dataPath     string
	interval     time.Duration
	warnLimiter  *rate.Limiter
	lastOverflow uint64
}

// New creates a Reporter. queueDepth reports the EventRecorder's pending
// work; dataPath is where free-space is measured.
func New(ring RingStats, det DetectorStats, queueDepth func() int, dataPath string, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{
		ring: ring, detector: det, queueDepth: queueDepth, dataPath: dataPath,
		interval: interval,
		// Starvation warnings can fire every frame under sustained
		// overload; cap them to once every 10s so logs stay readable.
		warnLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Run ticks until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	occupancy := r.ring.Len()
	overflow := r.ring.Overflow()
	deltaOverflow := overflow - r.lastOverflow
	r.lastOverflow = overflow

	free := "unknown"
	if usage, err := disk.Usage(r.dataPath); err == nil {
		free = humanize.Bytes(usage.Free)
	}

	log.Printf("[metrics] ring_occupancy=%d ring_overflow_total=%d ring_overflow_delta=%d candidates=%d recorder_queue=%d disk_free=%s",
		occupancy, overflow, deltaOverflow, r.detector.OpenCandidateCount(), r.queueDepth(), free)

	if deltaOverflow > 0 && r.warnLimiter.Allow() {
		warn := errs.Starvation("metrics", fmt.Errorf("%d frames evicted since last report, pre-trigger context is shrinking", deltaOverflow))
		log.Printf("[metrics] %v", warn)
	}
}
