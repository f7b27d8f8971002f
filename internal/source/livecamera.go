package source

import (
	"errors"
	"log"
	"time"

	"skywatch/internal/errs"
	"skywatch/internal/frame"
)

// CameraHandle is the injected vendor-SDK capability. spec.md §1 treats
// camera-vendor SDK adapters as an external collaborator; LiveCamera never
// links a real SDK, it only calls this interface.
type CameraHandle interface {
	// Configure applies pixel format, exposure, gain and FPS. Returning an
	// error here is a fatal DeviceError (open/configure failure).
	Configure(exposureMs, gain, fps float64, bitDepth int) error
	// Grab blocks for up to one frame period and returns the next frame's
	// raw pixel bytes and capture timestamp. ErrTransient signals a
	// recoverable grab failure; any other error is treated as a hard
	// disconnect.
	Grab() (data []byte, ts time.Time, err error)
	Close() error
}

// ErrTransient marks a CameraHandle.Grab failure as recoverable: log, sleep
// one frame period, and continue.
var ErrTransient = errors.New("transient camera grab error")

// LiveCamera is the FrameSource variant that drives a real camera through
// an injected CameraHandle.
type LiveCamera struct {
	base
	handle CameraHandle
	meta   Metadata
	name   string
}

// NewLiveCamera configures handle and returns a ready-to-run LiveCamera.
// Configuration failure is fatal per spec.md §7 (DeviceError, Fatal=true).
func NewLiveCamera(name string, handle CameraHandle, meta Metadata, exposureMs, gain float64, bitDepth int) (*LiveCamera, error) {
	if err := handle.Configure(exposureMs, gain, meta.FPS, bitDepth); err != nil {
		return nil, errs.Device(name, true, err)
	}
	return &LiveCamera{handle: handle, meta: meta, name: name}, nil
}

func (c *LiveCamera) Metadata() Metadata { return c.meta }

// Run grabs frames in a loop until Stop is called or the device hits a
// hard disconnect. Transient grab errors are logged and retried after one
// frame period; a hard disconnect sets the failure flag and returns.
func (c *LiveCamera) Run(publish Publisher) error {
	defer c.handle.Close()

	var seq uint64
	period := framePeriod(c.meta.FPS)
	for !c.stopped() {
		data, ts, err := c.handle.Grab()
		if err != nil {
			if errors.Is(err, ErrTransient) {
				log.Printf("[source:%s] transient grab error: %v", c.name, err)
				time.Sleep(period)
				continue
			}
			devErr := errs.Device(c.name, true, err)
			log.Printf("[source] %v", devErr)
			c.fail()
			return devErr
		}
		seq++
		f := frame.New(seq, ts, c.meta.Width, c.meta.Height, c.meta.Depth, data)
		f.Source = c.name
		f.Gain = 0
		publish(f)
	}
	return nil
}
