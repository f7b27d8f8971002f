// Package source implements the polymorphic FrameSource producer described
// in spec.md §4.1: LiveCamera, VideoFile and FrameDirectory variants, all
// behind one capability contract so the Supervisor never branches on
// concrete type.
package source

import (
	"sync/atomic"
	"time"

	"skywatch/internal/frame"
)

// Metadata is the static description a FrameSource exposes before Run is
// called: pixel depth, dimensions and nominal frame rate.
type Metadata struct {
	Width  int
	Height int
	Depth  frame.Depth
	FPS    float64
}

// Publisher is called by a FrameSource for every frame it produces. The
// implementation pushes into the RingBuffer and signals the Stacker and
// Detector notification channels; Run must call it synchronously for each
// frame before producing the next.
type Publisher func(f *frame.Frame)

// FrameSource is the abstract producer contract. Run blocks until Stop is
// called or an unrecoverable error occurs; it must return within one frame
// period after the next push following a Stop request.
type FrameSource interface {
	Metadata() Metadata
	Run(publish Publisher) error
	Stop()
	// Failed reports whether the source hit a hard, unrecoverable
	// disconnect and exited its loop early (visible to the Supervisor).
	Failed() bool
}

// base centralizes the stop-flag/failure-flag bookkeeping shared by all
// three variants, the way the teacher's AudioEngine centralizes atomic
// running/stop state across capture and playback loops.
type base struct {
	stopping atomic.Bool
	failed   atomic.Bool
}

func (b *base) Stop()         { b.stopping.Store(true) }
func (b *base) stopped() bool { return b.stopping.Load() }
func (b *base) Failed() bool  { return b.failed.Load() }
func (b *base) fail()         { b.failed.Store(true) }

func framePeriod(fps float64) time.Duration {
	if fps <= 0 {
		return time.Second / 30
	}
	return time.Duration(float64(time.Second) / fps)
}
