package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration of the capture binary.
type Config struct {
	Device       string        `yaml:"device"`
	V4L2Path     string        `yaml:"v4l2_path"`
	OutDir       string        `yaml:"out_dir"`
	Preview      bool          `yaml:"preview"`
	FrameTimeout time.Duration `yaml:"frame_timeout"`
	SimFrames    int           `yaml:"sim_frames"`

	// Remote preview. Disabled when SignalingURL is empty.
	SignalingURL string `yaml:"signaling_url"`
	CameraID     string `yaml:"camera_id"`
	PreviewEvery int    `yaml:"preview_every"`
	Quality      int    `yaml:"quality"`
}

// Default returns the configuration used when no file or flag says otherwise.
func Default() *Config {
	return &Config{
		Device:       "auto",
		OutDir:       "images",
		Preview:      true,
		PreviewEvery: 4,
		Quality:      70,
	}
}

func bindFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Device, "device", cfg.Device, "Device backend: auto, realsense, v4l2 or sim")
	fs.StringVar(&cfg.V4L2Path, "v4l2-path", cfg.V4L2Path, "Video node for the v4l2 backend (all nodes if empty)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "Directory receiving numbered PNG frames")
	fs.BoolVar(&cfg.Preview, "preview", cfg.Preview, "Show frames in a preview window")
	fs.DurationVar(&cfg.FrameTimeout, "frame-timeout", cfg.FrameTimeout, "Fail when no frame arrives within this long (0 = wait forever)")
	fs.IntVar(&cfg.SimFrames, "sim-frames", cfg.SimFrames, "Frames the sim backend delivers before disconnecting (0 = unlimited)")
	fs.StringVar(&cfg.SignalingURL, "signaling", cfg.SignalingURL, "Signaling server WebSocket URL for remote preview (disabled if empty)")
	fs.StringVar(&cfg.CameraID, "id", cfg.CameraID, "Camera ID for remote preview (auto-generated if empty)")
	fs.IntVar(&cfg.PreviewEvery, "preview-every", cfg.PreviewEvery, "Send every Nth frame to the remote viewer")
	fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG quality of remote preview frames (1-100)")
}

// Parse parses command line arguments for the capture binary. When
// -config names a YAML file, its values replace the defaults and flags
// given on the command line override the file.
func Parse(args []string) (*Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("rscapture", flag.ContinueOnError)
	var path string
	fs.StringVar(&path, "config", "", "YAML configuration file")
	bindFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if path != "" {
		fileCfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		overlay := flag.NewFlagSet("overlay", flag.ContinueOnError)
		bindFlags(overlay, fileCfg)
		var setErr error
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" || setErr != nil {
				return
			}
			setErr = overlay.Set(f.Name, f.Value.String())
		})
		if setErr != nil {
			return nil, setErr
		}
		cfg = fileCfg
	}

	if cfg.CameraID == "" {
		cfg.CameraID = "camera-" + uuid.NewString()[:8]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Device == "" {
		errs = append(errs, errors.New("device backend is required"))
	}
	if c.OutDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.FrameTimeout < 0 {
		errs = append(errs, fmt.Errorf("frame timeout must be >= 0, got %s", c.FrameTimeout))
	}
	if c.SimFrames < 0 {
		errs = append(errs, fmt.Errorf("sim frames must be >= 0, got %d", c.SimFrames))
	}
	if c.PreviewEvery < 1 {
		errs = append(errs, fmt.Errorf("preview-every must be >= 1, got %d", c.PreviewEvery))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality must be 1-100, got %d", c.Quality))
	}
	return errors.Join(errs...)
}

// ViewerConfig holds configuration for the viewer binary.
type ViewerConfig struct {
	SignalingURL string
	ViewerID     string
	CameraID     string
}

// ParseViewer parses flags for the viewer binary.
func ParseViewer(args []string) (*ViewerConfig, error) {
	cfg := &ViewerConfig{}
	fs := flag.NewFlagSet("rsviewer", flag.ContinueOnError)
	fs.StringVar(&cfg.SignalingURL, "signaling", "ws://localhost:8080/ws", "Signaling server WebSocket URL")
	fs.StringVar(&cfg.ViewerID, "id", "", "Viewer ID (auto-generated if empty)")
	fs.StringVar(&cfg.CameraID, "camera", "", "Camera ID to watch (required)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.CameraID == "" {
		return nil, errors.New("-camera is required")
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = "viewer-" + uuid.NewString()[:8]
	}
	return cfg, nil
}

// SignalConfig holds configuration for the signaling relay binary.
type SignalConfig struct {
	Addr string
	Path string
}

// ParseSignal parses flags for the signaling relay binary.
func ParseSignal(args []string) (*SignalConfig, error) {
	cfg := &SignalConfig{}
	fs := flag.NewFlagSet("rssignal", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", ":8080", "Listen address")
	fs.StringVar(&cfg.Path, "path", "/ws", "WebSocket endpoint path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
