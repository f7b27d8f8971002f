package supervisor

import (
	"fmt"

	"skywatch/internal/config"
	"skywatch/internal/frame"
	"skywatch/internal/source"
)

// BuildSource constructs the FrameSource variant named by cfg.CameraType.
// BASLER/DMK require a real vendor CameraHandle; none is linked here (spec.md
// §1 treats vendor SDKs as an external collaborator), so those types fail
// fast with an error rather than silently falling back to a file
// source. Exported so cmd/skywatch's mode 4 one-shot capture can build the
// same source without going through a full Supervisor.
func BuildSource(cfg *config.Config) (source.FrameSource, error) {
	// 12-bit pixels are packed two bytes per sample (config.Validate only
	// accepts 8 or 12), so anything above 8-bit uses the 16-bit plane layout.
	depth := frame.Depth8
	if cfg.BitDepth > 8 {
		depth = frame.Depth16
	}

	meta := source.Metadata{Width: cfg.FrameWidth, Height: cfg.FrameHeight, Depth: depth, FPS: cfg.FPS}

	switch cfg.CameraType {
	case config.CameraVideo:
		return source.NewVideoFile(cfg.VideoPath, meta)

	case config.CameraFrames:
		// "img_0001.fit" is the naming convention spec.md §8 scenario 3
		// illustrates; it is not itself a configurable key.
		return source.NewFrameDirectory(cfg.FramesDir, "img_", ".fit", cfg.FramesStart, cfg.FramesStop, meta)

	case config.CameraBasler, config.CameraDMK:
		return nil, fmt.Errorf("camera-type %s requires a vendor CameraHandle, none is linked into this build", cfg.CameraType)

	default:
		return nil, fmt.Errorf("unrecognized camera-type %q", cfg.CameraType)
	}
}
