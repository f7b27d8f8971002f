// Package supervisor owns the pipeline lifecycle: it wires FrameSource →
// RingBuffer → {Stacker, Detector} → EventRecorder → StorageSink together,
// starts the ambient Catalog/Metrics/Watcher/Archive goroutines, and
// implements the startup/shutdown ordering from spec.md §4.6.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"skywatch/internal/archive"
	"skywatch/internal/catalog"
	"skywatch/internal/config"
	"skywatch/internal/detector"
	"skywatch/internal/errs"
	"skywatch/internal/frame"
	"skywatch/internal/mask"
	"skywatch/internal/metrics"
	"skywatch/internal/recorder"
	"skywatch/internal/source"
	"skywatch/internal/stacker"
)

// Supervisor owns every long-lived component for one pipeline run (mode 3
// of spec.md §6).
type Supervisor struct {
	cfg   *config.Config
	runID string

	ring   *frame.RingBuffer
	src    source.FrameSource
	meta   source.Metadata
	maskH  *mask.Holder
	watch  *mask.Watcher
	stack  *stacker.Stacker
	det    *detector.Detector
	rec    *recorder.EventRecorder
	store  *catalog.Store
	arch   *archive.Sink
	report *metrics.Reporter
	cronSched *cron.Cron

	stackNotify chan *frame.Frame
	detNotify   chan *frame.Frame

	wg sync.WaitGroup
}

// New builds a Supervisor from cfg but starts nothing yet; call Run to
// start the pipeline and block until ctx is canceled.
func New(cfg *config.Config) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg, runID: uuid.New().String()}

	src, err := BuildSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("build frame source: %w", err)
	}
	s.src = src
	s.meta = src.Metadata()

	if cfg.MaskEnabled {
		m, err := mask.Load(cfg.MaskPath, s.meta.Width, s.meta.Height)
		if err != nil {
			return nil, fmt.Errorf("load mask: %w", err)
		}
		s.maskH = mask.NewHolder(m)
	} else {
		s.maskH = mask.NewHolder(mask.AllPass(s.meta.Width, s.meta.Height))
	}

	if cfg.MaskEnabled && cfg.MaskWatchEnabled {
		w, err := mask.NewWatcher(cfg.MaskPath, s.meta.Width, s.meta.Height, s.maskH)
		if err != nil {
			log.Printf("[supervisor] mask watcher disabled: %v", err)
		} else {
			s.watch = w
		}
	}

	bufCap := int(cfg.BufferSeconds * cfg.FPS)
	s.ring = frame.NewRingBuffer(bufCap)

	if cfg.CatalogEnabled {
		dbPath := filepath.Join(cfg.DataPath, "catalog.db")
		store, err := catalog.Open(dbPath)
		if err != nil {
			log.Printf("[supervisor] catalog disabled: %v", err)
		} else {
			s.store = store
		}
	}

	if cfg.ArchiveEnabled {
		a, err := archive.New(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.ArchiveRegion,
			cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, 2)
		if err != nil {
			log.Printf("[supervisor] archive disabled: %v", err)
		} else {
			s.arch = a
		}
	}

	var fileSink recorder.StorageSink = recorder.NewFileSink()
	if s.arch != nil {
		fileSink = &archiveMirrorSink{inner: recorder.NewFileSink(), archive: s.arch}
	}
	var indexer recorder.CatalogIndexer
	if s.store != nil {
		indexer = s.store
	}
	s.rec = recorder.New(cfg, s.ring, fileSink, indexer, s.runID, 2)

	if cfg.DetEnabled {
		s.det = detector.New(cfg, s.meta.Width, s.meta.Height, s.meta.FPS, s.maskH, s.rec)
		s.detNotify = make(chan *frame.Frame, 64)
	}

	if cfg.StackEnabled {
		base := stacker.NewFileStackSink(cfg.DataPath, cfg.StationName)
		var sink stacker.StackSink = base
		if s.store != nil {
			sink = &indexingStackSink{inner: base, path: base.PathFor, store: s.store, runID: s.runID}
		}
		s.stack = stacker.New(cfg, sink, s.meta.Width, s.meta.Height)
		s.stackNotify = make(chan *frame.Frame, 64)
	}

	s.report = metrics.New(s.ring, statsAdapter{s.det}, s.rec.QueueDepth, cfg.DataPath, time.Duration(cfg.MetricsIntervalS)*time.Second)

	return s, nil
}

// statsAdapter lets metrics.New accept a possibly-nil *detector.Detector:
// OpenCandidateCount on a nil Detector (detection disabled) reports 0
// rather than requiring every caller to nil-check.
type statsAdapter struct{ d *detector.Detector }

func (a statsAdapter) OpenCandidateCount() int {
	if a.d == nil {
		return 0
	}
	return a.d.OpenCandidateCount()
}

// Run starts every component and blocks until ctx is canceled or the
// FrameSource exits on its own, then performs the shutdown sequence: stop
// FrameSource, stop Detector, stop Stacker, close sinks (see shutdown).
func (s *Supervisor) Run(ctx context.Context) error {
	if s.store != nil {
		cfgJSON := fmt.Sprintf(`{"fps":%v,"camera-type":%q}`, s.cfg.FPS, s.cfg.CameraType)
		if err := s.store.CreateRun(ctx, s.runID, s.cfg.StationName, cfgJSON); err != nil {
			log.Printf("[supervisor] record run start failed: %v", err)
		}
	}

	if s.watch != nil {
		s.watch.Start()
	}

	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	s.wg.Add(1)
	go s.runReportLoop(reportCtx)

	if s.det != nil {
		s.wg.Add(1)
		go s.runGuarded("detector", func() { s.det.Run(ctx, s.detNotify) })
	}
	if s.stack != nil {
		s.wg.Add(1)
		go s.runGuarded("stacker", func() { s.stack.Run(ctx, s.stackNotify) })
	}

	s.cronSched = s.startCron()

	srcErrCh := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		srcErrCh <- s.runSource()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srcErrCh:
		// FrameSource exited on its own (EOF for VideoFile/FrameDirectory,
		// or a hard disconnect); proceed straight to shutdown.
	}

	stopReport()
	s.shutdown()
	return runErr
}

// runSource drives the FrameSource loop, fanning every published frame out
// to the RingBuffer and the two consumer notification channels.
func (s *Supervisor) runSource() error {
	defer s.closeNotifyChannels()
	return s.src.Run(func(f *frame.Frame) {
		s.ring.Push(f)
		if s.stackNotify != nil {
			select {
			case s.stackNotify <- f:
			default:
				log.Printf("[supervisor] stacker notify channel full, dropping seq %d for stacking", f.Seq)
			}
		}
		if s.detNotify != nil {
			select {
			case s.detNotify <- f:
			default:
				log.Printf("[supervisor] detector notify channel full, dropping seq %d for detection", f.Seq)
			}
		}
	})
}

func (s *Supervisor) closeNotifyChannels() {
	if s.stackNotify != nil {
		close(s.stackNotify)
	}
	if s.detNotify != nil {
		close(s.detNotify)
	}
}

func (s *Supervisor) runReportLoop(ctx context.Context) {
	defer s.wg.Done()
	s.report.Run(ctx)
}

// runGuarded recovers a panic in fn as a LogicError: logs with a stack
// trace and lets the rest of shutdown proceed rather than taking down the
// whole process, the way the teacher's audio engine documents why stream
// teardown ordering matters around its own goroutines.
func (s *Supervisor) runGuarded(component string, fn func()) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logicErr := errs.Logic(component, fmt.Errorf("panic: %v", r))
			log.Printf("%v\n%s", logicErr, debug.Stack())
		}
	}()
	fn()
}

// shutdown implements spec.md §4.6's ordering: stop the source first so no
// new frames enter the ring, then stop Detector and Stacker, then close the
// EventRecorder and ambient services. Detector and Stacker each exit at
// their next wake-up (ctx canceled, notify channel closed, or the next
// received frame once Stop is set); frames still queued in their notify
// channels at that point are not processed.
func (s *Supervisor) shutdown() {
	s.src.Stop()
	if s.det != nil {
		s.det.Stop()
	}
	if s.stack != nil {
		s.stack.Stop()
	}

	s.wg.Wait()

	s.rec.Close()
	if s.arch != nil {
		s.arch.Close()
	}
	if s.watch != nil {
		s.watch.Stop()
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
	}
	s.ring.Close()

	if s.store != nil {
		if err := s.store.CloseRun(context.Background(), s.runID, "stopped"); err != nil {
			log.Printf("[supervisor] record run stop failed: %v", err)
		}
		if err := s.store.Close(); err != nil {
			log.Printf("[supervisor] catalog close: %v", err)
		}
	}
}
