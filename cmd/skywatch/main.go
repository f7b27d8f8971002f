// Command skywatch runs the continuous sky-monitoring detection pipeline
// described in spec.md, plus the diagnostic/one-shot modes from §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"skywatch/internal/config"
	"skywatch/internal/frame"
	"skywatch/internal/recorder"
	"skywatch/internal/supervisor"
)

// Version is stamped at build time via -ldflags; left as a plain default
// otherwise, the way this stack's server command reports its own Version.
var Version = "dev"

func main() {
	mode := flag.Int("mode", 3, "1=enumerate cameras, 2=load and echo config, 3=run pipeline, 4=one-shot capture test")
	camType := flag.String("camtype", "", "camera type for mode 1 (BASLER|DMK)")
	cfgPath := flag.String("config", "./configuration.yaml", "path to the YAML configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	runTime := flag.Duration("time", 0, "stop the pipeline after this long (0 = run until SIGTERM)")

	gain := flag.Float64("gain", 0, "mode 4: camera gain")
	exposure := flag.Float64("exposure", 20, "mode 4: exposure in ms")
	bitDepth := flag.Int("bitdepth", 8, "mode 4: pixel bit depth (8|12)")
	wantBMP := flag.Bool("bmp", true, "mode 4: write a BMP preview of the captured frame")
	wantFITS := flag.Bool("fits", false, "mode 4: write a cube-style artifact alongside the BMP")
	display := flag.Bool("display", false, "mode 4: no-op placeholder, no GUI is linked into this build")
	captureID := flag.String("id", "capture", "mode 4: base name for the one-shot capture's output files")
	savePath := flag.String("savepath", "./capture", "mode 4: directory to write mode 4 output into")

	flag.Parse()

	if *showVersion {
		fmt.Printf("skywatch %s\n", Version)
		os.Exit(0)
	}

	switch *mode {
	case 1:
		os.Exit(runEnumerateCameras(*camType))
	case 2:
		os.Exit(runLoadAndEcho(*cfgPath))
	case 3:
		os.Exit(runPipeline(*cfgPath, *runTime))
	case 4:
		os.Exit(runOneShotCapture(*cfgPath, oneShotFlags{
			gain: *gain, exposure: *exposure, bitDepth: *bitDepth,
			bmp: *wantBMP, fits: *wantFITS, display: *display,
			id: *captureID, savePath: *savePath,
		}))
	default:
		fmt.Fprintf(os.Stderr, "unrecognized --mode %d\n", *mode)
		os.Exit(1)
	}
}

// runEnumerateCameras implements mode 1. No vendor SDK is linked into this
// build (spec.md §1 treats it as an external collaborator), so there is
// never anything to enumerate; this still exits 0 per spec.md §6 ("exit 0
// on success") since "zero cameras found" is itself a successful result.
func runEnumerateCameras(camType string) int {
	fmt.Printf("camera enumeration (type=%q): no vendor SDK linked, 0 cameras found\n", camType)
	return 0
}

// runLoadAndEcho implements mode 2.
func runLoadAndEcho(cfgPath string) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Printf("%+v\n", cfg)
	return 0
}

// runPipeline implements mode 3, the specification's core: run until
// SIGTERM/SIGINT or --time elapses.
func runPipeline(cfgPath string, runTime time.Duration) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if runTime > 0 {
		go func() {
			t := time.NewTimer(runTime)
			defer t.Stop()
			select {
			case <-t.C:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	if err := sup.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline exited with error: %v\n", err)
		return 1
	}
	return 0
}

type oneShotFlags struct {
	gain, exposure    float64
	bitDepth          int
	bmp, fits         bool
	display           bool
	id, savePath      string
}

// runOneShotCapture implements mode 4: grab exactly one frame from the
// configured VideoFile/FrameDirectory source and write it straight to
// disk, bypassing the ring buffer/stacker/detector entirely. LiveCamera
// sources require a real CameraHandle and are not reachable here, matching
// the same vendor-SDK boundary as mode 1.
func runOneShotCapture(cfgPath string, f oneShotFlags) int {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	cfg.Gain = f.gain
	cfg.Exposure = f.exposure
	cfg.BitDepth = f.bitDepth

	if cfg.CameraType == config.CameraBasler || cfg.CameraType == config.CameraDMK {
		fmt.Fprintf(os.Stderr, "mode 4 requires camera-type VIDEO or FRAMES in this build (no vendor CameraHandle linked)\n")
		return 1
	}

	if err := os.MkdirAll(f.savePath, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	captured, err := captureOneFrame(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if f.bmp {
		path := filepath.Join(f.savePath, f.id+".bmp")
		if err := os.WriteFile(path, recorder.EncodeBMP(downscaleTo8Bit(captured), captured.Width, captured.Height), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}
	if f.fits {
		// The real FITS byte layout is out of scope (spec.md §1); mode 4
		// writes the same opaque single-plane container the EventRecorder
		// uses for its cube artifacts.
		path := filepath.Join(f.savePath, f.id+".cube")
		if err := os.WriteFile(path, captured.Pix(), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}
	fmt.Printf("captured frame seq=%d into %s/%s.*\n", captured.Seq, f.savePath, f.id)
	return 0
}

// downscaleTo8Bit decodes f's samples and scales them into 8-bit range,
// since EncodeBMP is an 8-bit-only preview encoder: a Depth16 frame's raw
// Pix() bytes must never be handed to it directly.
func downscaleTo8Bit(f *frame.Frame) []byte {
	samples := f.Samples()
	maxValue := f.Depth.MaxValue()
	out := make([]byte, len(samples))
	for i, v := range samples {
		scaled := v * 255 / maxValue
		if scaled > 255 {
			scaled = 255
		}
		if scaled < 0 {
			scaled = 0
		}
		out[i] = byte(scaled)
	}
	return out
}

// captureOneFrame runs a FrameSource just long enough to publish its first
// frame, then requests it stop.
func captureOneFrame(cfg *config.Config) (*frame.Frame, error) {
	src, err := supervisor.BuildSource(cfg)
	if err != nil {
		return nil, err
	}

	result := make(chan *frame.Frame, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = src.Run(func(fr *frame.Frame) {
			select {
			case result <- fr:
			default:
			}
			src.Stop()
		})
	}()

	select {
	case fr := <-result:
		<-done
		return fr, nil
	case <-time.After(10 * time.Second):
		src.Stop()
		<-done
		return nil, fmt.Errorf("timed out waiting for a frame from the configured source")
	}
}
