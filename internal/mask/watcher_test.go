package mask

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsMaskOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.txt")
	writeFile(t, path, "11\n11\n")

	h := NewHolder(AllBlocked(2, 2))
	w, err := NewWatcher(path, 2, 2, h)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	w.Start()

	writeFile(t, path, "11\n11\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Get().Passes(0, 0) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Watcher did not reload the mask after a write within 2s")
}

func TestWatcherKeepsPreviousMaskOnMalformedReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.txt")
	writeFile(t, path, "11\n11\n")

	h := NewHolder(AllPass(2, 2))
	w, err := NewWatcher(path, 2, 2, h)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()
	w.Start()

	// Wrong cell count: Load will reject this and the watcher must keep
	// the previous (passing) mask in place rather than swapping in nothing.
	writeFile(t, path, "1\n")

	time.Sleep(300 * time.Millisecond)
	if !h.Get().Passes(0, 0) {
		t.Fatal("a malformed reload should not replace the previous valid mask")
	}
}

func TestNewWatcherFailsOnMissingFile(t *testing.T) {
	h := NewHolder(AllPass(1, 1))
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing.txt"), 1, 1, h)
	if err == nil {
		t.Fatal("expected an error watching a nonexistent file")
	}
}
