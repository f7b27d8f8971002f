package recorder

import (
	"bytes"
	"encoding/json"
	"fmt"

	"skywatch/internal/config"
	"skywatch/internal/detector"
	"skywatch/internal/frame"
)

// Artifact is one named output product of a materialized Event window.
type Artifact struct {
	Name string
	Data []byte
}

// metaSidecar mirrors the sidecar metadata fields spec.md §4.5 step 4
// names: station name, bit depth, gain, exposure, start/end UTC, trajectory.
type metaSidecar struct {
	StationName string              `json:"station_name"`
	BitDepth    int                 `json:"bit_depth"`
	Gain        float64             `json:"gain"`
	Exposure    string              `json:"exposure"`
	StartUTC    string              `json:"start_utc"`
	EndUTC      string              `json:"end_utc"`
	Trajectory  []detector.TrajPoint `json:"trajectory"`
	PeakValue   float64             `json:"peak_value"`
	Truncated   bool                `json:"truncated"`
}

// buildArtifacts produces the configured artifact set for a materialized
// window, per spec.md §4.5 step 4. frames is ordered ascending by sequence
// and already copy-captured out of the RingBuffer.
func buildArtifacts(cfg *config.Config, station string, frames []*frame.Frame, cand detector.Candidate, truncated bool) []Artifact {
	var out []Artifact
	if len(frames) == 0 {
		return out
	}
	width, height := frames[0].Width, frames[0].Height

	// Multi-page image cube: concatenated raw planes with a small header.
	// The real FITS byte layout is explicitly out of scope (spec.md §1
	// treats the FITS writer as an opaque external contract) — this is a
	// stand-in container, not a FITS file.
	if cfg.ArtifactFITS3D {
		out = append(out, Artifact{Name: "cube.cube", Data: encodeCube(frames)})
	}

	peak := peakFrame(frames)
	if cfg.ArtifactFITS2D {
		out = append(out, Artifact{Name: "peak.cube", Data: encodeCube([]*frame.Frame{peak})})
	}

	sum := sumProjection(frames, width, height)
	if cfg.ArtifactSum {
		out = append(out, Artifact{Name: "sum.bmp", Data: EncodeBMP(normalize(sum), width, height)})
	}

	if cfg.ArtifactGEMap {
		maxProj := maxProjection(frames, width, height)
		out = append(out, Artifact{Name: "max.bmp", Data: EncodeBMP(maxProj, width, height)})
	}

	if cfg.ArtifactPos {
		out = append(out, Artifact{Name: "positions.txt", Data: encodePositions(cand)})
	}

	if cfg.ArtifactBMP {
		out = append(out, Artifact{Name: "preview.bmp", Data: encodePreview(peak, cand)})
	}

	meta := metaSidecar{
		StationName: station,
		BitDepth:    cfg.BitDepth,
		Gain:        cfg.Gain,
		Exposure:    fmt.Sprintf("%dms", int(cfg.Exposure)),
		StartUTC:    frames[0].Timestamp.UTC().Format(timeLayout),
		EndUTC:      frames[len(frames)-1].Timestamp.UTC().Format(timeLayout),
		Trajectory:  cand.Trajectory,
		PeakValue:   cand.PeakIntensity,
		Truncated:   truncated,
	}
	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	out = append(out, Artifact{Name: "meta.json", Data: metaJSON})

	return out
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func encodeCube(frames []*frame.Frame) []byte {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f.Pix())
	}
	return buf.Bytes()
}

func peakFrame(frames []*frame.Frame) *frame.Frame {
	best := frames[0]
	bestSum := 0.0
	for _, f := range frames {
		var s float64
		for _, v := range f.Samples() {
			s += v
		}
		if s > bestSum {
			bestSum, best = s, f
		}
	}
	return best
}

func sumProjection(frames []*frame.Frame, width, height int) []int64 {
	acc := make([]int64, width*height)
	for _, f := range frames {
		samples := f.Samples()
		for i := 0; i < len(acc) && i < len(samples); i++ {
			acc[i] += int64(samples[i])
		}
	}
	return acc
}

// maxProjection returns the per-pixel maximum across frames, downscaled to
// 8-bit for the max.bmp preview artifact: each decoded sample is scaled by
// the source Depth's MaxValue so a 16-bit frame's true maximum still maps
// into the BMP encoder's 8-bit range instead of being read byte-for-byte.
func maxProjection(frames []*frame.Frame, width, height int) []byte {
	acc := make([]float64, width*height)
	maxValue := 255.0
	for _, f := range frames {
		maxValue = f.Depth.MaxValue()
		samples := f.Samples()
		for i := 0; i < len(acc) && i < len(samples); i++ {
			if samples[i] > acc[i] {
				acc[i] = samples[i]
			}
		}
	}
	out := make([]byte, len(acc))
	for i, v := range acc {
		out[i] = clamp8(v * 255 / maxValue)
	}
	return out
}

func clamp8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// normalize maps a wider int64 accumulator down to 8-bit by linear scaling
// against its own maximum, matching the stacker's percentile-style
// reduction in spirit but kept local to avoid a recorder→stacker import
// cycle for what is otherwise a one-line operation.
func normalize(acc []int64) []byte {
	var maxV int64
	for _, v := range acc {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]byte, len(acc))
	if maxV == 0 {
		return out
	}
	for i, v := range acc {
		out[i] = byte(v * 255 / maxV)
	}
	return out
}

// encodePositions renders the trajectory as "t dx dy" lines relative to the
// first point, per spec.md §4.5's "binary positional text file" artifact.
func encodePositions(cand detector.Candidate) []byte {
	var buf bytes.Buffer
	if len(cand.Trajectory) == 0 {
		return buf.Bytes()
	}
	origin := cand.Trajectory[0]
	for _, p := range cand.Trajectory {
		fmt.Fprintf(&buf, "%d %.2f %.2f\n", p.Seq, p.X-origin.X, p.Y-origin.Y)
	}
	return buf.Bytes()
}

// encodePreview renders the peak frame as a BMP with the trajectory
// overlaid as a bright polyline, per spec.md §4.5's "preview bitmap
// rendered with the trajectory overlaid". The source samples are
// downscaled to 8-bit first (EncodeBMP is an 8-bit-only preview encoder),
// so a 16-bit peak frame isn't read byte-for-byte.
func encodePreview(peak *frame.Frame, cand detector.Candidate) []byte {
	samples := peak.Samples()
	maxValue := peak.Depth.MaxValue()
	pix := make([]byte, len(samples))
	for i, v := range samples {
		pix[i] = clamp8(v * 255 / maxValue)
	}
	for _, p := range cand.Trajectory {
		x, y := int(p.X), int(p.Y)
		if x >= 0 && y >= 0 && x < peak.Width && y < peak.Height {
			pix[y*peak.Width+x] = 255
		}
	}
	return EncodeBMP(pix, peak.Width, peak.Height)
}
