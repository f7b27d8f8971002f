package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"skywatch/internal/frame"
)

// FrameDirectory iterates files named with a numeric suffix in
// [FramesStart, FramesStop] ascending, reading each as a single raw plane
// (Width×Height×bpp bytes) plus an optional sidecar ".ts" file holding a
// Unix-nanosecond timestamp; absent a sidecar, timestamps are synthesized
// at nominal FPS like VideoFile.
type FrameDirectory struct {
	base
	dir            string
	prefix, suffix string
	start, stop    int
	meta           Metadata
	startTime      time.Time
}

// NewFrameDirectory returns a FrameDirectory over dir, expecting files named
// prefix+NNNN+suffix (e.g. "img_" + "0003" + ".fit").
func NewFrameDirectory(dir, prefix, suffix string, start, stop int, meta Metadata) (*FrameDirectory, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("frame directory %s: %w", dir, err)
	}
	if stop < start {
		return nil, fmt.Errorf("frames-stop (%d) must be >= frames-start (%d)", stop, start)
	}
	return &FrameDirectory{
		dir: dir, prefix: prefix, suffix: suffix,
		start: start, stop: stop, meta: meta,
		startTime: time.Now().UTC(),
	}, nil
}

func (d *FrameDirectory) Metadata() Metadata { return d.meta }

func (d *FrameDirectory) bytesPerFrame() int {
	bpp := 1
	if d.meta.Depth == frame.Depth16 {
		bpp = 2
	}
	return d.meta.Width * d.meta.Height * bpp
}

// fileName formats index the way freeture's numbered FRAMES acquisition
// mode names files: a zero-padded 4-digit numeric suffix.
func (d *FrameDirectory) fileName(index int) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s%04d%s", d.prefix, index, d.suffix))
}

func (d *FrameDirectory) timestampFor(index int, seq uint64) time.Time {
	sidecar := d.fileName(index) + ".ts"
	if data, err := os.ReadFile(sidecar); err == nil {
		if nanos, err := strconv.ParseInt(string(trimNewline(data)), 10, 64); err == nil {
			return time.Unix(0, nanos).UTC()
		}
	}
	return d.startTime.Add(time.Duration(float64(seq) / d.meta.FPS * float64(time.Second)))
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// Run publishes one frame per file in [start, stop], ascending, paced at
// nominal FPS. A missing or wrong-sized file sets the failure flag and ends
// the run with an error — a numbered directory source with gaps indicates
// a corrupt capture run.
func (d *FrameDirectory) Run(publish Publisher) error {
	frameSize := d.bytesPerFrame()
	period := framePeriod(d.meta.FPS)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for index := d.start; index <= d.stop; index++ {
		if d.stopped() {
			return nil
		}
		path := d.fileName(index)
		data, err := os.ReadFile(path)
		if err != nil {
			d.fail()
			return fmt.Errorf("read frame file %s: %w", path, err)
		}
		if len(data) != frameSize {
			d.fail()
			return fmt.Errorf("frame file %s has %d bytes, want %d", path, len(data), frameSize)
		}
		// seq mirrors the file's own numeric suffix, not a publish counter,
		// so a FramesStart > 1 run still reports the original frame numbers.
		seq := uint64(index)
		ts := d.timestampFor(index, seq)
		fr := frame.New(seq, ts, d.meta.Width, d.meta.Height, d.meta.Depth, data)
		fr.Source = path
		publish(fr)

		if index < d.stop {
			<-ticker.C
		}
	}
	return nil
}
