// Package frame defines the shared Frame payload and the bounded RingBuffer
// that stores recent frames as the pre-trigger context window.
//
// A Frame's pixel buffer is immutable once published and reference-counted
// so a consumer holding a shared reference (from RingBuffer.Latest or
// RingBuffer.SnapshotRange) never observes bytes that have been
// recycled out from under it; the last dropper frees the backing array.
package frame

import (
	"sync/atomic"
	"time"
)

// Depth is the per-pixel bit depth of a Frame's pixel buffer.
type Depth int

const (
	Depth8  Depth = 8
	Depth16 Depth = 16
)

// BytesPerSample reports how many raw bytes this Depth packs per pixel:
// one for Depth8, two (little-endian) for Depth16.
func (d Depth) BytesPerSample() int {
	if d == Depth16 {
		return 2
	}
	return 1
}

// MaxValue is the largest representable sample value for this Depth.
func (d Depth) MaxValue() float64 {
	if d == Depth16 {
		return 65535
	}
	return 255
}

// Frame is one acquired image plus its acquisition metadata. Once handed to
// a RingBuffer, a Frame must not be mutated; callers that need their own
// copy must Clone it.
type Frame struct {
	Seq       uint64    // monotonic sequence number from the source's start
	Timestamp time.Time // UTC, ms precision
	Width     int
	Height    int
	Depth     Depth
	Gain      float64
	Exposure  time.Duration
	Source    string // source tag, e.g. camera name or file path

	pix *pixelBuffer
}

// pixelBuffer is the reference-counted backing store for Frame.Pix.
type pixelBuffer struct {
	data []byte
	refs atomic.Int32
}

func newPixelBuffer(data []byte) *pixelBuffer {
	pb := &pixelBuffer{data: data}
	pb.refs.Store(1)
	return pb
}

func (pb *pixelBuffer) retain() *pixelBuffer {
	pb.refs.Add(1)
	return pb
}

// release drops one reference; the backing array is eligible for GC once
// the count reaches zero. There is no pool here — the teacher's audio
// engine frees native buffers explicitly because they're C-allocated; Go's
// GC already reclaims byte slices, so retain/release exists only to gate
// "is anyone still allowed to read this" rather than to manage memory.
func (pb *pixelBuffer) release() int32 {
	return pb.refs.Add(-1)
}

// New creates a Frame owning data. data is not copied; the caller must not
// retain a mutable reference to it afterward.
func New(seq uint64, ts time.Time, width, height int, depth Depth, data []byte) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: ts,
		Width:     width,
		Height:    height,
		Depth:     depth,
		pix:       newPixelBuffer(data),
	}
}

// Pix returns the read-only pixel buffer. Callers must not write to it.
func (f *Frame) Pix() []byte {
	return f.pix.data
}

// Samples decodes the pixel buffer into one float64 per pixel, honoring
// Depth. Every per-pixel compute path (background model, foreground test,
// stacking, artifact projections) must decode through Samples rather than
// indexing Pix() directly: a Depth16 frame packs two little-endian bytes
// per pixel, and indexing Pix() byte-for-byte silently reads only the
// low-byte half of the image.
func (f *Frame) Samples() []float64 {
	data := f.pix.data
	bps := f.Depth.BytesPerSample()
	n := len(data) / bps
	out := make([]float64, n)
	if bps == 1 {
		for i, v := range data {
			out[i] = float64(v)
		}
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = float64(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}

// Clone returns a Frame with an independently owned copy of the pixel data,
// safe to hold past the source Frame's eviction from any RingBuffer. Used
// by the EventRecorder when it snapshots a window out of the ring.
func (f *Frame) Clone() *Frame {
	cp := make([]byte, len(f.pix.data))
	copy(cp, f.pix.data)
	clone := *f
	clone.pix = newPixelBuffer(cp)
	return &clone
}

// retain shares ownership of f's pixel buffer without copying: it is called
// when the RingBuffer stores or hands out f, and the matching release runs
// on eviction, on RingBuffer.Close, or via Release.
func (f *Frame) retain() *Frame {
	f.pix.retain()
	return f
}
