// Package mask loads the static binary mask used to force known-bad pixels
// (horizon obstructions, fixed artifacts) to background regardless of what
// the Detector's statistics say, and optionally watches it for changes on
// disk so an operator can update it without restarting the pipeline.
package mask

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
	"sync/atomic"

	"skywatch/internal/errs"
)

// Mask is a binary image: Passes(x,y) reports false where the pixel should
// be treated as background unconditionally.
type Mask struct {
	width, height int
	bits          []bool // row-major, true = masked out (ignore)
}

// Width and Height return the mask's dimensions.
func (m *Mask) Width() int  { return m.width }
func (m *Mask) Height() int { return m.height }

// Passes reports whether the pixel at (x, y) is NOT masked out, i.e.
// whether the Detector should consider it. Out-of-bounds coordinates are
// always masked out.
func (m *Mask) Passes(x, y int) bool {
	if x < 0 || y < 0 || x >= m.width || y >= m.height {
		return false
	}
	return !m.bits[y*m.width+x]
}

// Load reads a mask from path. Two formats are accepted: a PNG (any pixel
// with value 0 in its first channel is "masked out"), or a flat newline-
// separated text bitmap of 0/1 tokens (the format a FrameDirectory-sourced
// test rig can produce without an image library). Format is sniffed by
// file extension.
func Load(path string, width, height int) (*Mask, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Config("mask", fmt.Errorf("open mask %s: %w", path, err))
	}
	defer f.Close()

	if isPNG(path) {
		img, err := png.Decode(f)
		if err != nil {
			return nil, errs.Config("mask", fmt.Errorf("decode mask png %s: %w", path, err))
		}
		return fromImage(img, width, height)
	}
	return fromText(f, width, height)
}

func isPNG(path string) bool {
	n := len(path)
	return n >= 4 && path[n-4:] == ".png"
}

func fromImage(img image.Image, width, height int) (*Mask, error) {
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, errs.Config("mask", fmt.Errorf("mask dimensions %dx%d do not match frame %dx%d", b.Dx(), b.Dy(), width, height))
	}
	m := &Mask{width: width, height: height, bits: make([]bool, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			m.bits[y*width+x] = r == 0
		}
	}
	return m, nil
}

func fromText(f *os.File, width, height int) (*Mask, error) {
	m := &Mask{width: width, height: height, bits: make([]bool, width*height)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	idx := 0
	for scanner.Scan() {
		line := scanner.Text()
		for _, c := range line {
			if idx >= len(m.bits) {
				break
			}
			m.bits[idx] = c == '0'
			idx++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Config("mask", fmt.Errorf("read mask text: %w", err))
	}
	if idx != width*height {
		return nil, errs.Config("mask", fmt.Errorf("mask has %d cells, want %d (%dx%d)", idx, width*height, width, height))
	}
	return m, nil
}

// AllPass returns a mask where every pixel passes (no masking).
func AllPass(width, height int) *Mask {
	return &Mask{width: width, height: height, bits: make([]bool, width*height)}
}

// AllBlocked returns a mask where every pixel is masked out.
func AllBlocked(width, height int) *Mask {
	bits := make([]bool, width*height)
	for i := range bits {
		bits[i] = true
	}
	return &Mask{width: width, height: height, bits: bits}
}

// Holder atomically swaps the active mask so the Detector can read it from
// one goroutine while the Watcher replaces it from another, without a lock
// on the hot per-pixel path.
type Holder struct {
	v atomic.Value // holds *Mask
	mu sync.Mutex  // serializes Set against concurrent Set
}

// NewHolder wraps an initial mask.
func NewHolder(m *Mask) *Holder {
	h := &Holder{}
	h.v.Store(m)
	return h
}

// Get returns the currently active mask.
func (h *Holder) Get() *Mask {
	return h.v.Load().(*Mask)
}

// Set atomically replaces the active mask.
func (h *Holder) Set(m *Mask) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.v.Store(m)
}
