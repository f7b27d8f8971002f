package stacker

import (
	"encoding/binary"
	"math"
	"sort"

	"skywatch/internal/config"
)

// encodeAccum32 serializes the raw accumulator as little-endian 32-bit
// floats, one per pixel, per spec.md §3's "accumulator matrix (32-bit
// float or 32-bit int)". Used when StackReduce is off and there is no
// Reduced plane to persist instead.
func encodeAccum32(accum []float64) []byte {
	out := make([]byte, 4*len(accum))
	for i, v := range accum {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
	}
	return out
}

// reduce maps a 32-bit-float accumulator back to 16-bit little-endian
// output, either by histogram-based scaling that preserves the 99.5th
// percentile, or by a fixed BZERO/BSCALE factor read straight from
// configuration. Both are named in spec.md §4.3 and §9's open question;
// this build implements both and lets configuration pick (DESIGN.md
// open-question decision 3).
func reduce(accum []float64, method config.StackReduction, bzero, bscale float64) (out []byte, outBZero, outBScale float64) {
	if method == config.ReductionFixed && bscale != 0 {
		return reduceFixed(accum, bzero, bscale), bzero, bscale
	}
	return reducePercentile(accum)
}

func reduceFixed(accum []float64, bzero, bscale float64) []byte {
	out := make([]byte, 2*len(accum))
	for i, v := range accum {
		scaled := (v - bzero) / bscale
		putUint16LE(out[2*i:], clamp16(scaled))
	}
	return out
}

// reducePercentile scales so that the 99.5th percentile value maps to
// 65535, clamping above it. This preserves contrast in the bulk of the
// frame while saturating a small fraction of the brightest pixels,
// matching the histogram-based scaling described in spec.md §4.3.
func reducePercentile(accum []float64) ([]byte, float64, float64) {
	if len(accum) == 0 {
		return nil, 0, 1
	}
	sorted := make([]float64, len(accum))
	copy(sorted, accum)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1) * 0.995)
	p995 := sorted[idx]
	if p995 <= 0 {
		p995 = 1
	}
	scale := 65535.0 / p995

	out := make([]byte, 2*len(accum))
	for i, v := range accum {
		putUint16LE(out[2*i:], clamp16(v*scale))
	}
	return out, 0, 1 / scale
}

func clamp16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}

func putUint16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
