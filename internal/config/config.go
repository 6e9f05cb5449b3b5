// Package config provides configuration types and defaults for rpcheck.
package config

import (
	"fmt"
	"os"

	"github.com/five82/rpcheck/internal/metric"
)

// Default constants
const (
	// DefaultFFmpegPath is resolved through PATH.
	DefaultFFmpegPath = "ffmpeg"

	// DefaultVSPipePath is resolved through PATH.
	DefaultVSPipePath = "vspipe"

	// DefaultFFprobePath is resolved through PATH.
	DefaultFFprobePath = "ffprobe"

	// DefaultBackend is the backend used when none is configured.
	DefaultBackend = metric.KindFFPSNR

	// DefaultFrameRate is NTSC film rate, used to turn frame indices into timecodes.
	DefaultFrameRate = 24000.0 / 1001.0

	// MaxPSNRThreshold bounds PSNR thresholds in dB.
	MaxPSNRThreshold = 100.0
)

// Config holds all configuration for a measurement run.
type Config struct {
	// Tools
	FFmpegPath      string   `yaml:"ffmpeg_path"`
	VSPipePath      string   `yaml:"vspipe_path"`
	FFprobePath     string   `yaml:"ffprobe_path"`
	FFmpegExtraArgs []string `yaml:"ffmpeg_args"`
	WorkingDir      string   `yaml:"working_dir"`

	// Measurement
	Backend metric.Kind `yaml:"backend"`
	// Threshold marks samples below it as failing; zero selects the backend default.
	Threshold float64 `yaml:"threshold"`
	FrameRate float64 `yaml:"frame_rate"`
	// ProbeFrameRate reads each secondary's frame rate with ffprobe, falling
	// back to FrameRate when probing fails.
	ProbeFrameRate bool `yaml:"probe_frame_rate"`

	// VapourSynth script generation
	TemplatePath     string `yaml:"template"`
	KeepIntermediate bool   `yaml:"keep_intermediate"`

	// Output
	OutputDir  string `yaml:"output_dir"`
	LogDir     string `yaml:"log_dir"`
	NoLog      bool   `yaml:"no_log"`
	Verbose    bool   `yaml:"verbose"`
	JSONOutput bool   `yaml:"json_output"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		FFmpegPath:  DefaultFFmpegPath,
		VSPipePath:  DefaultVSPipePath,
		FFprobePath: DefaultFFprobePath,
		Backend:     DefaultBackend,
		FrameRate:   DefaultFrameRate,
		OutputDir:   ".",
	}
}

// Validate checks the configuration for errors. It normalizes Backend.
func (c *Config) Validate() error {
	kind, err := metric.ParseKind(string(c.Backend))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBackend, err)
	}
	c.Backend = kind

	if c.Threshold != 0 {
		switch kind {
		case metric.KindFFSSIM:
			if c.Threshold < 0 || c.Threshold > 1 {
				return fmt.Errorf("%w: SSIM threshold must be 0-1, got %g", ErrInvalidThreshold, c.Threshold)
			}
		default:
			if c.Threshold < 0 || c.Threshold > MaxPSNRThreshold {
				return fmt.Errorf("%w: PSNR threshold must be 0-%g dB, got %g", ErrInvalidThreshold, MaxPSNRThreshold, c.Threshold)
			}
		}
	}

	if c.FrameRate <= 0 {
		return fmt.Errorf("%w: got %g", ErrInvalidFrameRate, c.FrameRate)
	}

	if c.TemplatePath != "" {
		info, err := os.Stat(c.TemplatePath)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", ErrMissingTemplate, c.TemplatePath)
		}
	}

	return nil
}

// EffectiveThreshold returns Threshold, or the backend default when unset.
func (c *Config) EffectiveThreshold() float64 {
	if c.Threshold != 0 {
		return c.Threshold
	}
	if b, err := metric.Lookup(c.Backend); err == nil {
		return b.DefaultThreshold
	}
	return 0
}

// Tools returns the executables and shared arguments for command building.
func (c *Config) Tools() metric.Tools {
	return metric.Tools{
		FFmpegPath:      c.FFmpegPath,
		VSPipePath:      c.VSPipePath,
		WorkingDir:      c.WorkingDir,
		FFmpegExtraArgs: c.FFmpegExtraArgs,
	}
}
