package source

import (
	"os"
	"path/filepath"
	"testing"

	"skywatch/internal/frame"
)

func TestFrameDirectoryPublishesExpectedSequence(t *testing.T) {
	dir := t.TempDir()
	meta := Metadata{Width: 2, Height: 2, Depth: frame.Depth8, FPS: 1000} // fast pace for test speed
	frameSize := meta.Width * meta.Height

	// img_0001.fit .. img_0010.fit
	for i := 1; i <= 10; i++ {
		p := filepath.Join(dir, filepathName(i))
		if err := os.WriteFile(p, make([]byte, frameSize), 0o644); err != nil {
			t.Fatalf("write frame %d: %v", i, err)
		}
	}

	fd, err := NewFrameDirectory(dir, "img_", ".fit", 3, 7, meta)
	if err != nil {
		t.Fatalf("NewFrameDirectory: %v", err)
	}

	var seqs []uint64
	err = fd.Run(func(f *frame.Frame) {
		seqs = append(seqs, f.Seq)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seqs) != 5 {
		t.Fatalf("published %d frames, want 5", len(seqs))
	}
	for i, want := range []uint64{3, 4, 5, 6, 7} {
		if seqs[i] != want {
			t.Fatalf("seqs[%d] = %d, want %d", i, seqs[i], want)
		}
	}
}

func filepathName(i int) string {
	return filepath.Base((&FrameDirectory{prefix: "img_", suffix: ".fit"}).fileName(i))
}
