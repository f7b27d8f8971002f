// Package detector implements the per-pixel background model, candidate
// tracking and connected-component detection state machine described in
// spec.md §4.4.
package detector

import "math"

// BackgroundModel holds per-pixel running mean and variance used as the
// "quiet sky" reference. It is exclusively owned by the Detector's run
// goroutine — no lock is needed.
type BackgroundModel struct {
	width, height int
	mean          []float64
	variance      []float64
	count         uint64 // update count; monotonic
	alpha         float64
	trained       bool
}

// NewBackgroundModel allocates a model for a width×height frame. alpha is
// the exponential decay applied on each update (typical 0.01-0.05).
func NewBackgroundModel(width, height int, alpha float64) *BackgroundModel {
	n := width * height
	return &BackgroundModel{
		width: width, height: height,
		mean:     make([]float64, n),
		variance: make([]float64, n),
		alpha:    alpha,
	}
}

// Count returns the number of update passes applied so far (monotonic).
func (b *BackgroundModel) Count() uint64 { return b.count }

// Train seeds mean directly from a frame and resets every pixel's variance
// to 1; used during the first frame of the warmup window. Subsequent warmup
// frames go through Update with a nil ("exclude nothing") mask, same as live
// operation, matching spec.md §4.4's "the detector only trains the
// BackgroundModel and emits no candidates" framing for all warmup frames.
// samples must already be depth-decoded (frame.Frame.Samples), one entry
// per pixel.
func (b *BackgroundModel) Train(samples []float64) {
	for i, v := range samples {
		if i >= len(b.mean) {
			break
		}
		b.mean[i] = v
		b.variance[i] = 1
	}
	b.trained = true
	b.count++
}

// Update folds samples into the running mean/variance for every pixel index
// i where exclude[i] is false (i.e. not currently inside any open
// Candidate's bounding box). Count increases by one per call, not per
// pixel: it tracks frames processed, matching spec.md §8's invariant.
// samples must already be depth-decoded (frame.Frame.Samples).
func (b *BackgroundModel) Update(samples []float64, exclude []bool) {
	if !b.trained {
		b.Train(samples)
		return
	}
	for i, x := range samples {
		if i >= len(b.mean) {
			break
		}
		if exclude != nil && i < len(exclude) && exclude[i] {
			continue
		}
		delta := x - b.mean[i]
		b.mean[i] += b.alpha * delta
		b.variance[i] = (1-b.alpha)*b.variance[i] + b.alpha*delta*delta
	}
	b.count++
}

// Sigma returns sqrt(variance) at pixel i, floored to avoid division by
// a near-zero standard deviation on a perfectly flat background.
func (b *BackgroundModel) Sigma(i int) float64 {
	v := b.variance[i]
	if v < 1 {
		v = 1
	}
	return math.Sqrt(v)
}

// Mean returns the current mean at pixel i.
func (b *BackgroundModel) Mean(i int) float64 { return b.mean[i] }
