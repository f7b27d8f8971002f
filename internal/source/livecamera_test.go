package source

import (
	"errors"
	"sync"
	"testing"
	"time"

	"skywatch/internal/frame"
)

// fakeHandle is a scripted CameraHandle: it returns a fixed sequence of
// Grab results (frame bytes and/or errors) and records Configure/Close
// calls, so LiveCamera.Run can be exercised without any vendor SDK.
type fakeHandle struct {
	mu          sync.Mutex
	frameSize   int
	grabs       []error // nil entries succeed, others are returned as-is
	grabIdx     int
	configured  bool
	closed      bool
	configErr   error
}

func (f *fakeHandle) Configure(exposureMs, gain, fps float64, bitDepth int) error {
	f.configured = true
	return f.configErr
}

func (f *fakeHandle) Grab() ([]byte, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grabIdx >= len(f.grabs) {
		// Out of scripted grabs: behave as a hard disconnect so Run exits
		// instead of spinning.
		return nil, time.Time{}, errors.New("fakeHandle: scripted grabs exhausted")
	}
	err := f.grabs[f.grabIdx]
	f.grabIdx++
	if err != nil {
		return nil, time.Time{}, err
	}
	return make([]byte, f.frameSize), time.Now().UTC(), nil
}

func (f *fakeHandle) Close() error {
	f.closed = true
	return nil
}

func TestLiveCameraFailsFastOnConfigureError(t *testing.T) {
	h := &fakeHandle{configErr: errors.New("device busy")}
	_, err := NewLiveCamera("cam0", h, Metadata{Width: 2, Height: 2, FPS: 100}, 10, 1, 8)
	if err == nil {
		t.Fatal("expected Configure error to propagate from NewLiveCamera")
	}
	if !h.configured {
		t.Fatal("expected Configure to have been called")
	}
}

func TestLiveCameraPublishesFramesUntilHardDisconnect(t *testing.T) {
	h := &fakeHandle{
		frameSize: 4,
		grabs:     []error{nil, nil, nil}, // 3 clean grabs, then exhausted -> hard disconnect
	}
	cam, err := NewLiveCamera("cam0", h, Metadata{Width: 2, Height: 2, FPS: 1000}, 10, 1, 8)
	if err != nil {
		t.Fatalf("NewLiveCamera: %v", err)
	}

	var published []*frame.Frame
	err = cam.Run(func(f *frame.Frame) { published = append(published, f) })
	if err == nil {
		t.Fatal("expected Run to return the hard-disconnect error")
	}
	if len(published) != 3 {
		t.Fatalf("got %d published frames, want 3", len(published))
	}
	if !cam.Failed() {
		t.Fatal("expected Failed() true after hard disconnect")
	}
	if !h.closed {
		t.Fatal("expected handle.Close to be called on Run exit")
	}
}

func TestLiveCameraRetriesTransientGrabErrors(t *testing.T) {
	h := &fakeHandle{
		frameSize: 4,
		grabs:     []error{ErrTransient, nil},
	}
	cam, err := NewLiveCamera("cam0", h, Metadata{Width: 2, Height: 2, FPS: 1000}, 10, 1, 8)
	if err != nil {
		t.Fatalf("NewLiveCamera: %v", err)
	}

	done := make(chan error, 1)
	var count int
	go func() {
		done <- cam.Run(func(f *frame.Frame) {
			count++
			if count == 1 {
				cam.Stop()
			}
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if cam.Failed() {
		t.Fatal("a transient error should not mark the source failed")
	}
}

func TestLiveCameraStopsPromptly(t *testing.T) {
	h := &fakeHandle{frameSize: 4, grabs: make([]error, 10_000)} // effectively unlimited clean grabs
	cam, err := NewLiveCamera("cam0", h, Metadata{Width: 2, Height: 2, FPS: 2000}, 10, 1, 8)
	if err != nil {
		t.Fatalf("NewLiveCamera: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cam.Run(func(f *frame.Frame) {}) }()

	time.Sleep(5 * time.Millisecond)
	cam.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error after Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after Stop")
	}
}
