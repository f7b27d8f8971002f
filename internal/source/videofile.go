package source

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"skywatch/internal/errs"
	"skywatch/internal/frame"
)

// VideoFile reads frames at wall-clock pace from a single file of
// back-to-back raw planes, one per frame, each exactly Width×Height×bpp
// bytes (bpp = 1 for Depth8, 2 for Depth16, little-endian). This is the
// container freeture's AVI/raw acquisition module normalizes camera output
// into before detection; no AVI demuxer is linked here, matching spec.md
// §1's framing of vendor/container adapters as external collaborators.
type VideoFile struct {
	base
	path string
	meta Metadata
	start time.Time
}

// NewVideoFile opens path for reading. The file is not fully read here;
// Run streams it frame by frame.
func NewVideoFile(path string, meta Metadata) (*VideoFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file %s: %w", path, err)
	}
	return &VideoFile{path: path, meta: meta, start: time.Now().UTC()}, nil
}

func (v *VideoFile) Metadata() Metadata { return v.meta }

func (v *VideoFile) bytesPerFrame() int {
	bpp := 1
	if v.meta.Depth == frame.Depth16 {
		bpp = 2
	}
	return v.meta.Width * v.meta.Height * bpp
}

// Run reads and paces frames until EOF or Stop. EOF is a normal, non-fatal
// return — it is not a device failure.
func (v *VideoFile) Run(publish Publisher) error {
	f, err := os.Open(v.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	frameSize := v.bytesPerFrame()
	period := framePeriod(v.meta.FPS)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint64
	for !v.stopped() {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			v.fail()
			return errs.IO(v.path, err)
		}
		seq++
		ts := v.start.Add(time.Duration(float64(seq) / v.meta.FPS * float64(time.Second)))
		fr := frame.New(seq, ts, v.meta.Width, v.meta.Height, v.meta.Depth, buf)
		fr.Source = v.path
		publish(fr)

		<-ticker.C
	}
	return nil
}
