// Package stacker implements the periodic frame accumulator described in
// spec.md §4.3: every StackInterval frames it opens a window, folds
// StackFrames frames into a running accumulation, and emits a StackedFrame
// to a StorageSink-like StackSink.
package stacker

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"skywatch/internal/config"
	"skywatch/internal/frame"
)

// StackedFrame is the accumulator's output: attributes mirror spec.md §3's
// StackedFrame entity.
type StackedFrame struct {
	Width, Height int
	Method        config.StackMethod
	N             int // frames folded in; N ≤ StackFrames
	Start, End    time.Time
	Exposure      time.Duration
	// Accum is the raw 32-bit-float accumulator matrix, one entry per
	// pixel (MEAN already divided by N), per spec.md §3's "accumulator
	// matrix (32-bit float or 32-bit int)". Always populated regardless of
	// whether dynamic-range reduction is applied.
	Accum []float64
	// Reduced is the dynamic-range-reduced output ready for persistence,
	// 16-bit little-endian samples (per spec.md §4.3), populated only when
	// cfg.StackReduce is set; nil otherwise, leaving Accum as the sole
	// persisted representation.
	Reduced []byte
	BZero   float64
	BScale  float64
}

// StackSink is the external persistence contract for StackedFrames.
// Persist failures are logged and do not stop the Stacker (spec.md §4.3).
type StackSink interface {
	Persist(ctx context.Context, sf *StackedFrame) error
}

// Stacker owns an accumulator matrix exclusively; no other goroutine may
// touch it while a window is open.
type Stacker struct {
	cfg    *config.Config
	sink   StackSink
	width  int
	height int

	stopping atomic.Bool

	// accumulator state, exclusively owned by the run goroutine
	accum       []float64
	accumMax    []float64
	opening     bool
	count       int
	windowStart time.Time
	exposureSum time.Duration
	framesSeen  int // frames observed since epoch, for StackInterval gating
}

// New creates a Stacker bound to sink, with accumulator dimensions
// width×height.
func New(cfg *config.Config, sink StackSink, width, height int) *Stacker {
	return &Stacker{cfg: cfg, sink: sink, width: width, height: height}
}

// Stop requests the run loop to exit after its current wait.
func (s *Stacker) Stop() { s.stopping.Store(true) }

// Run consumes frames from notify until Stop is called or notify is
// closed. It implements the four-step loop from spec.md §4.3.
func (s *Stacker) Run(ctx context.Context, notify <-chan *frame.Frame) {
	for {
		select {
		case <-ctx.Done():
			s.flushPartial(ctx)
			return
		case f, ok := <-notify:
			if !ok || s.stopping.Load() {
				s.flushPartial(ctx)
				return
			}
			s.observe(ctx, f)
		}
	}
}

func (s *Stacker) observe(ctx context.Context, f *frame.Frame) {
	s.framesSeen++

	if !s.opening {
		if s.cfg.StackInterval <= 0 || (s.framesSeen-1)%s.cfg.StackInterval != 0 {
			return
		}
		s.openWindow(f)
	}

	s.fold(f)
	s.count++
	s.exposureSum += f.Exposure

	if s.count >= s.cfg.StackFrames {
		s.closeWindow(ctx, f.Timestamp)
	}
}

func (s *Stacker) openWindow(f *frame.Frame) {
	n := s.width * s.height
	s.accum = make([]float64, n)
	if s.cfg.StackMethod == config.StackMax {
		s.accumMax = make([]float64, n)
	}
	s.opening = true
	s.count = 0
	s.exposureSum = 0
	s.windowStart = f.Timestamp
}

func (s *Stacker) fold(f *frame.Frame) {
	samples := f.Samples()
	switch s.cfg.StackMethod {
	case config.StackMax:
		for i := 0; i < len(s.accumMax) && i < len(samples); i++ {
			if samples[i] > s.accumMax[i] {
				s.accumMax[i] = samples[i]
			}
		}
	default: // SUM and MEAN both accumulate by summation
		for i := 0; i < len(s.accum) && i < len(samples); i++ {
			s.accum[i] += samples[i]
		}
	}
}

// closeWindow reduces the accumulator and dispatches to the sink. A
// persist failure is logged and does not stop the thread.
func (s *Stacker) closeWindow(ctx context.Context, end time.Time) {
	sf := &StackedFrame{
		Width: s.width, Height: s.height,
		Method: s.cfg.StackMethod, N: s.count,
		Start: s.windowStart, End: end,
		Exposure: s.exposureSum,
	}

	raw := s.finalAccum()
	if s.cfg.StackMethod == config.StackMean && s.count > 0 {
		for i := range raw {
			raw[i] /= float64(s.count)
		}
	}
	sf.Accum = raw
	if s.cfg.StackReduce {
		sf.Reduced, sf.BZero, sf.BScale = reduce(raw, s.cfg.StackReduction, s.cfg.StackBZero, s.cfg.StackBScale)
	}

	if err := s.sink.Persist(ctx, sf); err != nil {
		log.Printf("[stacker] persist failed for window %s-%s: %v (continuing)", sf.Start, sf.End, err)
	}

	s.opening = false
	s.accum = nil
	s.accumMax = nil
}

func (s *Stacker) finalAccum() []float64 {
	if s.cfg.StackMethod == config.StackMax {
		return s.accumMax
	}
	return s.accum
}

// flushPartial implements the Supervisor's shutdown rule: flush the
// current partial stack only if count ≥ StackFrames/2.
func (s *Stacker) flushPartial(ctx context.Context) {
	if !s.opening || s.count < s.cfg.StackFrames/2 {
		return
	}
	s.closeWindow(ctx, time.Now().UTC())
}
