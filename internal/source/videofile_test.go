package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"skywatch/internal/frame"
)

func writeVideoFixture(t *testing.T, path string, frameSize, frames int) {
	t.Helper()
	buf := make([]byte, frameSize*frames)
	for i := range buf {
		buf[i] = byte(i) // distinct bytes so a reader mistake shows up as a length/content mismatch
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write video fixture: %v", err)
	}
}

func TestVideoFilePublishesExactFrameCountThenEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.raw")
	meta := Metadata{Width: 3, Height: 2, Depth: frame.Depth8, FPS: 2000}
	writeVideoFixture(t, path, meta.Width*meta.Height, 5)

	vf, err := NewVideoFile(path, meta)
	if err != nil {
		t.Fatalf("NewVideoFile: %v", err)
	}

	var got []*frame.Frame
	if err := vf.Run(func(f *frame.Frame) { got = append(got, f) }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d frames, want 5", len(got))
	}
	if vf.Failed() {
		t.Fatal("clean EOF should not mark the source failed")
	}
	for i, f := range got {
		if f.Seq != uint64(i+1) {
			t.Fatalf("frame %d has Seq %d, want %d", i, f.Seq, i+1)
		}
	}
}

func TestVideoFileRejectsMissingFile(t *testing.T) {
	_, err := NewVideoFile(filepath.Join(t.TempDir(), "missing.raw"), Metadata{Width: 1, Height: 1, FPS: 10})
	if err == nil {
		t.Fatal("expected an error for a nonexistent video file")
	}
}

func TestVideoFileTruncatedFileIsTreatedAsCleanEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.raw")
	meta := Metadata{Width: 4, Height: 4, Depth: frame.Depth8, FPS: 2000}
	// One whole frame plus a partial second frame: the partial read should
	// surface as io.ErrUnexpectedEOF, which Run treats the same as a clean
	// end of file, not a DeviceError.
	frameSize := meta.Width * meta.Height
	buf := make([]byte, frameSize+frameSize/2)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	vf, err := NewVideoFile(path, meta)
	if err != nil {
		t.Fatalf("NewVideoFile: %v", err)
	}

	var count int
	if err := vf.Run(func(f *frame.Frame) { count++ }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if count != 1 {
		t.Fatalf("got %d frames, want 1 (the partial second frame should not be published)", count)
	}
	if vf.Failed() {
		t.Fatal("a truncated trailing frame should not mark the source failed")
	}
}

func TestVideoFileStopsPromptly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "long.raw")
	meta := Metadata{Width: 2, Height: 2, Depth: frame.Depth8, FPS: 5000}
	writeVideoFixture(t, path, meta.Width*meta.Height, 50_000)

	vf, err := NewVideoFile(path, meta)
	if err != nil {
		t.Fatalf("NewVideoFile: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- vf.Run(func(f *frame.Frame) {}) }()

	time.Sleep(5 * time.Millisecond)
	vf.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error after Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after Stop")
	}
}
