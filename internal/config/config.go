// Package config loads and validates skywatch's YAML configuration file
// into a typed Config, the way client/internal/config in the teacher
// codebase turns an on-disk file into a typed struct with safe defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"skywatch/internal/errs"
)

// CameraType selects the FrameSource variant mode 3/4 will construct.
type CameraType string

const (
	CameraBasler CameraType = "BASLER"
	CameraDMK    CameraType = "DMK"
	CameraVideo  CameraType = "VIDEO"
	CameraFrames CameraType = "FRAMES"
)

// StackMethod selects how the Stacker folds frames into its accumulator.
type StackMethod string

const (
	StackSum  StackMethod = "SUM"
	StackMean StackMethod = "MEAN"
	StackMax  StackMethod = "MAX"
)

// StackReduction selects the Stacker's dynamic-range reduction strategy.
type StackReduction string

const (
	ReductionPercentile StackReduction = "percentile"
	ReductionFixed      StackReduction = "fixed"
)

// Config mirrors every configuration key in spec.md §6 plus the ambient
// additions (catalog, archive, watcher) described in SPEC_FULL.md §4.7-4.12.
type Config struct {
	// Acquisition
	CameraType   CameraType `yaml:"camera-type"`
	CameraName   string     `yaml:"camera-name"`
	Exposure     float64    `yaml:"exposure"`      // ms
	Gain         float64    `yaml:"gain"`
	BitDepth     int        `yaml:"bit-depth"`      // 8 or 12
	FPS          float64    `yaml:"fps"`
	BufferSeconds float64   `yaml:"acq-buffer-seconds"`
	FrameWidth    int       `yaml:"frame-width"`
	FrameHeight   int       `yaml:"frame-height"`

	// VideoFile / FrameDirectory specific
	VideoPath    string `yaml:"video-path"`
	FramesDir    string `yaml:"frames-dir"`
	FramesStart  int    `yaml:"frames-start"`
	FramesStop   int    `yaml:"frames-stop"`

	// Mask
	MaskEnabled bool   `yaml:"mask-enabled"`
	MaskPath    string `yaml:"mask-path"`

	// Stacking
	StackEnabled   bool           `yaml:"stack-enabled"`
	StackTime      float64        `yaml:"stack-time"`     // seconds of real time per stack
	StackInterval  int            `yaml:"stack-interval"` // frames between window opens
	StackFrames    int            `yaml:"stack-frames"`
	StackMethod    StackMethod    `yaml:"stack-method"`
	// StackReduce makes dynamic-range reduction optional, per spec.md §4.3
	// step 4: the raw 32-bit accumulator (StackedFrame.Accum) is always
	// persisted; Reduced/BZero/BScale are only populated when this is set.
	StackReduce    bool           `yaml:"stack-reduce"`
	StackReduction StackReduction `yaml:"stack-reduction"`
	StackBZero     float64        `yaml:"stack-bzero"`
	StackBScale    float64        `yaml:"stack-bscale"`

	// Detection
	DetEnabled      bool    `yaml:"detection-enabled"`
	DetMethod       string  `yaml:"det-method"`
	DetTimeBefore   float64 `yaml:"det-time-before"` // Pre, seconds
	DetTimeAfter    float64 `yaml:"det-time-after"`  // Post, seconds
	DetGapTolerance int     `yaml:"det-gap-tolerance"` // frames
	DetGeMax        int     `yaml:"det-ge-max"`         // max concurrent candidates
	DetTimeMax      float64 `yaml:"det-time-max"`       // seconds
	DetDownsample   bool    `yaml:"det-downsample"`
	DetWarmupFrames int     `yaml:"det-warmup-frames"`
	DetMinArea      int     `yaml:"det-min-area"`
	DetKSigma       float64 `yaml:"det-k-sigma"`
	DetMaxLinkDist  float64 `yaml:"det-max-link-distance"`
	DetMinTrajLen   int     `yaml:"det-min-trajectory-length"`
	DetMinDisplace  float64 `yaml:"det-min-displacement"`

	// Artifact toggles
	ArtifactAVI    bool `yaml:"artifact-avi"`
	ArtifactFITS3D bool `yaml:"artifact-fits3d"`
	ArtifactFITS2D bool `yaml:"artifact-fits2d"`
	ArtifactSum    bool `yaml:"artifact-sum"`
	ArtifactPos    bool `yaml:"artifact-pos"`
	ArtifactBMP    bool `yaml:"artifact-bmp"`
	ArtifactGEMap  bool `yaml:"artifact-gemap"`

	// Station / paths
	DataPath            string  `yaml:"data-path"`
	StationName          string  `yaml:"station-name"`
	Longitude            float64 `yaml:"longitude"`
	LogPath              string  `yaml:"log-path"`
	FileCopyOnRollover   bool    `yaml:"file-copy-on-rollover"`
	DebugEnabled         bool    `yaml:"debug-enabled"`

	// Ambient: catalog / archive / watcher / metrics (SPEC_FULL.md additions)
	CatalogEnabled    bool   `yaml:"catalog-enabled"`
	ArchiveEnabled    bool   `yaml:"archive-enabled"`
	ArchiveBucket     string `yaml:"archive-bucket"`
	ArchivePrefix     string `yaml:"archive-prefix"`
	ArchiveRegion     string `yaml:"archive-region"`
	// ArchiveAccessKey/ArchiveSecretKey are optional; when both are set,
	// archive.New uses them as a static credentials provider instead of
	// the default chain (environment, shared config, IMDS).
	ArchiveAccessKey  string `yaml:"archive-access-key"`
	ArchiveSecretKey  string `yaml:"archive-secret-key"`
	MaskWatchEnabled  bool   `yaml:"mask-watch-enabled"`
	MetricsIntervalS  int    `yaml:"metrics-interval-seconds"`

	// ConfigPath is set by Load to the file it read from, for the day
	// rollover's config-snapshot copy. It is not itself a YAML key.
	ConfigPath string `yaml:"-"`
}

// Default returns a Config populated with conservative defaults, mirroring
// client/config.go's Default() which is always a safe starting point.
func Default() *Config {
	return &Config{
		CameraType:         CameraVideo,
		Exposure:           20,
		Gain:               0,
		BitDepth:           8,
		FPS:                30,
		BufferSeconds:      5,
		FrameWidth:         1280,
		FrameHeight:        960,
		MaskEnabled:        false,
		StackEnabled:       true,
		StackTime:          60,
		StackInterval:      1800,
		StackFrames:        1800,
		StackMethod:        StackMean,
		StackReduce:        true,
		StackReduction:     ReductionPercentile,
		DetEnabled:         true,
		DetMethod:          "connected-components",
		DetTimeBefore:      2,
		DetTimeAfter:       2,
		DetGapTolerance:    5,
		DetGeMax:           10,
		DetTimeMax:         30,
		DetWarmupFrames:    60,
		DetMinArea:         3,
		DetKSigma:          4,
		DetMaxLinkDist:     25,
		DetMinTrajLen:      3,
		DetMinDisplace:     5,
		ArtifactSum:        true,
		ArtifactBMP:        true,
		ArtifactPos:        true,
		DataPath:           "./data",
		StationName:        "STATION01",
		LogPath:            "./log",
		FileCopyOnRollover: true,
		CatalogEnabled:     true,
		MaskWatchEnabled:   true,
		MetricsIntervalS:   5,
	}
}

// Load reads path, overlays it onto Default(), and validates the result.
// Load never returns a partially-initialized Config: on any failure the
// returned pointer is nil and the error is a *errs.Error of KindConfig.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Config("config", fmt.Errorf("read %s: %w", path, err))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Config("config", fmt.Errorf("parse %s: %w", path, err))
	}
	if err := Validate(cfg); err != nil {
		return nil, errs.Config("config", err)
	}
	cfg.ConfigPath = path
	return cfg, nil
}

// Validate checks the configuration for missing required fields and
// contradictory values. Exported separately so mode 2 ("load and echo")
// can validate without starting the pipeline.
func Validate(c *Config) error {
	var problems []string

	if c.FPS <= 0 {
		problems = append(problems, "fps must be > 0")
	}
	if c.BitDepth != 8 && c.BitDepth != 12 {
		problems = append(problems, "bit-depth must be 8 or 12")
	}
	if strings.TrimSpace(c.StationName) == "" {
		problems = append(problems, "station-name is required")
	}
	if strings.TrimSpace(c.DataPath) == "" {
		problems = append(problems, "data-path is required")
	}
	switch c.CameraType {
	case CameraBasler, CameraDMK, CameraVideo, CameraFrames:
	default:
		problems = append(problems, fmt.Sprintf("camera-type %q is not recognized", c.CameraType))
	}
	if c.CameraType == CameraVideo && strings.TrimSpace(c.VideoPath) == "" {
		problems = append(problems, "video-path is required when camera-type is VIDEO")
	}
	if c.CameraType == CameraFrames {
		if strings.TrimSpace(c.FramesDir) == "" {
			problems = append(problems, "frames-dir is required when camera-type is FRAMES")
		}
		if c.FramesStop < c.FramesStart {
			problems = append(problems, "frames-stop must be >= frames-start")
		}
	}
	if c.MaskEnabled && strings.TrimSpace(c.MaskPath) == "" {
		problems = append(problems, "mask-path is required when mask-enabled is true")
	}
	if c.DetTimeBefore < 0 || c.DetTimeAfter < 0 {
		problems = append(problems, "det-time-before/det-time-after must be >= 0")
	}
	if c.StackEnabled {
		switch c.StackMethod {
		case StackSum, StackMean, StackMax:
		default:
			problems = append(problems, fmt.Sprintf("stack-method %q is not recognized", c.StackMethod))
		}
		if c.StackFrames <= 0 {
			problems = append(problems, "stack-frames must be > 0")
		}
	}
	if c.ArchiveEnabled && strings.TrimSpace(c.ArchiveBucket) == "" {
		problems = append(problems, "archive-bucket is required when archive-enabled is true")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
