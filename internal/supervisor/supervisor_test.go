package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skywatch/internal/config"
	"skywatch/internal/frame"
)

// writeFrameDirFixture writes n raw single-byte-per-pixel frames named
// img_0001.fit.. into dir, matching internal/source's FrameDirectory
// naming convention.
func writeFrameDirFixture(t *testing.T, dir string, width, height, n int) {
	t.Helper()
	frameSize := width * height
	for i := 1; i <= n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("img_%04d.fit", i))
		if err := os.WriteFile(p, make([]byte, frameSize), 0o644); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}
}

// baseTestConfig returns a Config wired for a FrameDirectory source with
// every ambient component (catalog, archive, mask watch) disabled, so the
// test exercises only the core FrameSource → RingBuffer → Detector →
// EventRecorder path plus clean shutdown ordering.
func baseTestConfig(t *testing.T, framesDir, dataDir string, n int) *config.Config {
	cfg := config.Default()
	cfg.CameraType = config.CameraFrames
	cfg.FramesDir = framesDir
	cfg.FramesStart = 1
	cfg.FramesStop = n
	cfg.FrameWidth = 4
	cfg.FrameHeight = 4
	cfg.FPS = 1000 // fast pace, short test runtime
	cfg.DataPath = dataDir
	cfg.StationName = "TESTSTATION"
	cfg.CatalogEnabled = false
	cfg.ArchiveEnabled = false
	cfg.MaskEnabled = false
	cfg.MaskWatchEnabled = false
	cfg.StackEnabled = false
	cfg.DetEnabled = false
	cfg.MetricsIntervalS = 1
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

// TestSupervisorRunsToCompletionOnSourceEOF exercises spec.md §4.6's
// shutdown path when the FrameSource exhausts its input on its own (a
// FrameDirectory hitting FramesStop), rather than via a canceled context.
func TestSupervisorRunsToCompletionOnSourceEOF(t *testing.T) {
	framesDir := t.TempDir()
	dataDir := t.TempDir()
	writeFrameDirFixture(t, framesDir, 4, 4, 6)

	cfg := baseTestConfig(t, framesDir, dataDir, 6)

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sup.Run(ctx); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := sup.ring.Len(); got != 0 {
		t.Fatalf("ring buffer should be closed (Len 0) after shutdown, got %d", got)
	}
}

// TestSupervisorStopsPromptlyOnContextCancel covers the SIGTERM-equivalent
// path: a long-running source (more frames than fit in the ring buffer)
// stopped by canceling ctx mid-stream, per scenario 5/6's "no half-written
// artifacts, starvation is observable" properties.
func TestSupervisorStopsPromptlyOnContextCancel(t *testing.T) {
	framesDir := t.TempDir()
	dataDir := t.TempDir()
	writeFrameDirFixture(t, framesDir, 4, 4, 200)

	cfg := baseTestConfig(t, framesDir, dataDir, 200)
	cfg.BufferSeconds = 0.05 // small ring: forces overflow well before 200 frames

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Supervisor did not shut down promptly after context cancellation")
	}
}

var _ = frame.Frame{} // keep the frame import even if assertions above change
