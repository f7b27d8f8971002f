package detector

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"skywatch/internal/config"
	"skywatch/internal/frame"
	"skywatch/internal/mask"
)

// Event is a confirmed Candidate plus its surrounding context window,
// expressed as sequence-number bounds per spec.md §3/§4.4. The
// EventRecorder materializes the window out of the RingBuffer.
type Event struct {
	ID          uint64
	Candidate   Candidate
	WindowStart uint64 // firstSeen − Pre, in sequence-number space
	WindowEnd   uint64 // lastSeen + Post, in sequence-number space
}

// EventSink receives promoted Events. The Detector never blocks waiting
// for a slow sink; Emit must return quickly (buffer or hand off to a
// worker) the way EventRecorder's own worker pool does.
type EventSink interface {
	Emit(e *Event)
}

// Detector is the per-pixel + per-candidate detection state machine from
// spec.md §4.4. The BackgroundModel and candidate table are exclusively
// owned by the goroutine that calls Run; Stats and OpenCandidateCount are
// the only methods safe to call concurrently (they take a read lock),
// matching spec.md §5's ownership rule.
type Detector struct {
	cfg    *config.Config
	width  int
	height int
	fps    float64

	// workWidth/workHeight are the resolution the per-pixel pipeline
	// (BackgroundModel, foreground test, labeling) actually runs at: equal
	// to width/height unless DetDownsample halves them per spec.md §4.4
	// step 1. Component bbox/centroids are rescaled back to width/height
	// space immediately after labeling, so Candidate coordinates are
	// always full-resolution regardless of DetDownsample.
	workWidth  int
	workHeight int

	bg         *BackgroundModel
	maskHolder *mask.Holder
	sink       EventSink

	mu         sync.RWMutex
	candidates map[uint64]*Candidate
	nextCandID uint64

	warmupRemaining int
	lastEventTime   time.Time
	framesSinceInit uint64

	stopping atomic.Bool
}

// New constructs a Detector. maskHolder may wrap mask.AllPass if masking is
// disabled.
func New(cfg *config.Config, width, height int, fps float64, maskHolder *mask.Holder, sink EventSink) *Detector {
	workWidth, workHeight := width, height
	if cfg.DetDownsample {
		workWidth, workHeight = width/2, height/2
	}
	return &Detector{
		cfg:             cfg,
		width:           width,
		height:          height,
		fps:             fps,
		workWidth:       workWidth,
		workHeight:      workHeight,
		bg:              NewBackgroundModel(workWidth, workHeight, 0.02),
		maskHolder:      maskHolder,
		sink:            sink,
		candidates:      make(map[uint64]*Candidate),
		warmupRemaining: cfg.DetWarmupFrames,
	}
}

// Stop requests the run loop to exit after its current wait.
func (d *Detector) Stop() { d.stopping.Store(true) }

// Run consumes frames from notify until Stop is called, ctx is canceled, or
// notify is closed. On exit it closes out any still-open candidate under
// the normal promotion rules (see closeAllCandidates).
func (d *Detector) Run(ctx context.Context, notify <-chan *frame.Frame) {
	for {
		select {
		case <-ctx.Done():
			d.closeAllCandidates()
			return
		case f, ok := <-notify:
			if !ok || d.stopping.Load() {
				d.closeAllCandidates()
				return
			}
			d.processFrame(f)
		}
	}
}

// Stats is a read-only snapshot used by internal/metrics; safe for
// concurrent use with Run.
type Stats struct {
	OpenCandidates  int
	BackgroundCount uint64
}

func (d *Detector) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return Stats{OpenCandidates: len(d.candidates), BackgroundCount: d.bg.Count()}
}

// OpenCandidateCount satisfies metrics.DetectorStats.
func (d *Detector) OpenCandidateCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.candidates)
}

func (d *Detector) processFrame(f *frame.Frame) {
	d.framesSinceInit++

	samples := f.Samples()
	workSamples := samples
	if d.cfg.DetDownsample {
		workSamples = downsample2x(samples, d.width, d.height)
	}

	if d.warmupRemaining > 0 {
		d.mu.Lock()
		d.bg.Update(workSamples, nil)
		d.mu.Unlock()
		d.warmupRemaining--
		return
	}

	m := d.maskHolder.Get()
	passes := m.Passes
	if d.cfg.DetDownsample {
		passes = downsamplePasses(m)
	}

	fg := foregroundMap(workSamples, d.bg, passes, d.workWidth, d.workHeight, d.cfg.DetKSigma)
	fg = dilateErode(fg, d.workWidth, d.workHeight)
	minFillness := 0.3
	comps := label(fg, workSamples, d.workWidth, d.workHeight, d.cfg.DetMinArea, minFillness)
	if d.cfg.DetDownsample {
		comps = upscaleComponents(comps, 2)
	}

	d.mu.Lock()
	matched := d.associate(f.Seq, comps)
	d.closeExpiredLocked(f.Seq)
	d.enforceCapLocked()
	exclude := d.exclusionMaskLocked()
	d.bg.Update(workSamples, exclude)
	d.mu.Unlock()

	_ = matched
}

// downsamplePasses maps a working-resolution (x,y) to the full-resolution
// mask cell it was averaged from, since mask.Holder always stores a
// full-resolution mask regardless of DetDownsample.
func downsamplePasses(m *mask.Mask) func(x, y int) bool {
	return func(x, y int) bool {
		return m.Passes(x*2, y*2)
	}
}

// associate matches components to open Candidates by greedy nearest-first
// assignment, then appends unmatched components as new Candidates. Must be
// called with d.mu held.
func (d *Detector) associate(seq uint64, comps []component) int {
	usedCandidates := make(map[uint64]bool, len(d.candidates))
	matched := 0

	for _, comp := range comps {
		point := TrajPoint{Seq: seq, X: comp.centroidX, Y: comp.centroidY}

		var best *Candidate
		bestDist := -1.0
		for id, cand := range d.candidates {
			if usedCandidates[id] {
				continue
			}
			last := cand.Trajectory[len(cand.Trajectory)-1]
			dx, dy := point.X-last.X, point.Y-last.Y
			dist := dx*dx + dy*dy
			gate := gatingDistance(d.cfg.DetMaxLinkDist, cand.Age())
			if dist > gate*gate {
				continue
			}
			if !cand.matchesDirection(point, 0.3) {
				continue
			}
			if best == nil || dist < bestDist {
				best, bestDist = cand, dist
			}
		}

		if best != nil {
			best.Trajectory = append(best.Trajectory, point)
			best.BBox = best.BBox.union(comp.bbox)
			best.LastSeen = seq
			if comp.peak > best.PeakIntensity {
				best.PeakIntensity = comp.peak
			}
			usedCandidates[best.ID] = true
			matched++
			continue
		}

		d.nextCandID++
		d.candidates[d.nextCandID] = &Candidate{
			ID:            d.nextCandID,
			BBox:          comp.bbox,
			Trajectory:    []TrajPoint{point},
			FirstSeen:     seq,
			LastSeen:      seq,
			PeakIntensity: comp.peak,
			MaskPass:      true,
		}
	}
	return matched
}

// closeExpiredLocked closes out Candidates whose gap or age exceeds
// configured limits, promoting qualifying ones to Events. Must be called
// with d.mu held.
func (d *Detector) closeExpiredLocked(now uint64) {
	for id, cand := range d.candidates {
		gap := int64(now) - int64(cand.LastSeen)
		expired := gap > int64(d.cfg.DetGapTolerance) || float64(cand.Age()) > d.cfg.DetTimeMax*d.fps
		if !expired {
			continue
		}
		delete(d.candidates, id)
		d.tryPromote(cand)
	}
}

// tryPromote applies the promotion rule from spec.md §4.4 step 8 and the
// DetTimeMax dispatch cap from step "Cap".
func (d *Detector) tryPromote(cand *Candidate) {
	if len(cand.Trajectory) < d.cfg.DetMinTrajLen {
		return
	}
	if cand.netDisplacement() < d.cfg.DetMinDisplace {
		return
	}
	if !cand.isMonotonic(0.2) {
		return
	}

	now := time.Now()
	if !d.lastEventTime.IsZero() && now.Sub(d.lastEventTime) < time.Duration(d.cfg.DetTimeMax*float64(time.Second)) {
		log.Printf("[detector] candidate %d qualifies but dropped: within DetTimeMax cap window", cand.ID)
		return
	}
	d.lastEventTime = now

	preFrames := uint64(d.cfg.DetTimeBefore * d.fps)
	postFrames := uint64(d.cfg.DetTimeAfter * d.fps)
	var windowStart uint64
	if cand.FirstSeen > preFrames {
		windowStart = cand.FirstSeen - preFrames
	}

	ev := &Event{
		ID:          cand.ID,
		Candidate:   *cand,
		WindowStart: windowStart,
		WindowEnd:   cand.LastSeen + postFrames,
	}
	d.sink.Emit(ev)
}

// enforceCapLocked drops the weakest open Candidate by peak intensity when
// the concurrent-candidate cap (DetGeMax) is exceeded. Must be called with
// d.mu held.
func (d *Detector) enforceCapLocked() {
	if d.cfg.DetGeMax <= 0 || len(d.candidates) <= d.cfg.DetGeMax {
		return
	}
	var weakestID uint64
	var weakestPeak = -1.0
	for id, cand := range d.candidates {
		if weakestPeak < 0 || cand.PeakIntensity < weakestPeak {
			weakestID, weakestPeak = id, cand.PeakIntensity
		}
	}
	delete(d.candidates, weakestID)
}

// exclusionMaskLocked returns a workWidth×workHeight bool slice marking
// pixels currently inside any open Candidate's bounding box, so the caller
// can exclude them from the next BackgroundModel update. Candidate.BBox is
// always in full-resolution coordinates (see Detector.workWidth); it is
// scaled back down to the BackgroundModel's working resolution here. Must
// be called with d.mu held.
func (d *Detector) exclusionMaskLocked() []bool {
	divisor := 1
	if d.cfg.DetDownsample {
		divisor = 2
	}
	excl := make([]bool, d.workWidth*d.workHeight)
	for _, cand := range d.candidates {
		minX, minY := cand.BBox.MinX/divisor, cand.BBox.MinY/divisor
		maxX, maxY := cand.BBox.MaxX/divisor, cand.BBox.MaxY/divisor
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if x < 0 || y < 0 || x >= d.workWidth || y >= d.workHeight {
					continue
				}
				excl[y*d.workWidth+x] = true
			}
		}
	}
	return excl
}

// closeAllCandidates is called at shutdown: it attempts to promote every
// still-open candidate with tryPromote, discarding any that doesn't qualify.
// No check on how far the event's window would be truncated is applied.
func (d *Detector) closeAllCandidates() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, cand := range d.candidates {
		delete(d.candidates, id)
		d.tryPromote(cand)
	}
}
