// Package rpcheck measures per-frame video quality by driving external tools
// (vspipe or ffmpeg) and collecting their output.
//
// A primary (source) clip is compared against a secondary (encoded) clip.
// The tool's output is classified line by line into progress, metric samples
// and failure markers; the samples are sorted worst first and written to a
// results file.
//
// Basic usage:
//
//	checker, err := rpcheck.New(
//	    rpcheck.WithBackend(rpcheck.BackendFFSSIM),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	batch, err := checker.Check(ctx, "source.mkv", "encode.mkv", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, r := range batch.Results {
//	    fmt.Printf("%s: worst %.4f at frame %d\n",
//	        r.Job.Secondary, r.Samples[0].Value, r.Samples[0].Frame)
//	}
package rpcheck

import (
	"context"
	"fmt"

	"github.com/five82/rpcheck/internal/collector"
	"github.com/five82/rpcheck/internal/config"
	"github.com/five82/rpcheck/internal/discovery"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/reporter"
	"github.com/five82/rpcheck/internal/result"
	"github.com/five82/rpcheck/internal/util"
)

// Re-export backend types
type Backend = metric.Kind

const (
	BackendVSPSNR = metric.KindVSPSNR
	BackendFFPSNR = metric.KindFFPSNR
	BackendFFSSIM = metric.KindFFSSIM
)

// ParseBackend converts a backend name to a Backend value.
// Valid values are "vs-psnr", "ff-psnr" and "ff-ssim" (case-insensitive).
func ParseBackend(s string) (Backend, error) {
	return metric.ParseKind(s)
}

// Reporter receives batch, job and progress events.
type Reporter = reporter.Reporter

// Result is the outcome of one comparison.
type Result = result.Result

// Sample is a single per-frame metric value.
type Sample = metric.Sample

// Summary condenses a result's samples against a threshold.
type Summary = result.Summary

// BatchResult is the outcome of a batch of comparisons.
type BatchResult = collector.BatchResult

// Checker is the main entry point for quality checks.
type Checker struct {
	config *config.Config
}

// Option configures the checker.
type Option func(*config.Config)

// New creates a new Checker with the given options.
func New(opts ...Option) (*Checker, error) {
	cfg := config.NewConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Checker{config: cfg}, nil
}

// NewFromConfigFile creates a Checker from a YAML config file, a .env file
// and RPCHECK_* environment variables, then applies opts on top.
func NewFromConfigFile(path string, opts ...Option) (*Checker, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Checker{config: cfg}, nil
}

// WithBackend selects the measurement backend.
func WithBackend(b Backend) Option {
	return func(c *config.Config) {
		c.Backend = b
	}
}

// WithThreshold sets the value below which a frame counts as failing.
// Zero selects the backend default.
func WithThreshold(v float64) Option {
	return func(c *config.Config) {
		c.Threshold = v
	}
}

// WithFFmpegPath sets the ffmpeg executable.
func WithFFmpegPath(path string) Option {
	return func(c *config.Config) {
		c.FFmpegPath = path
	}
}

// WithFFmpegArgs adds arguments placed before the ffmpeg inputs.
func WithFFmpegArgs(args ...string) Option {
	return func(c *config.Config) {
		c.FFmpegExtraArgs = append(c.FFmpegExtraArgs, args...)
	}
}

// WithVSPipePath sets the vspipe executable.
func WithVSPipePath(path string) Option {
	return func(c *config.Config) {
		c.VSPipePath = path
	}
}

// WithFFprobePath sets the ffprobe executable.
func WithFFprobePath(path string) Option {
	return func(c *config.Config) {
		c.FFprobePath = path
	}
}

// WithProbeFrameRate reads each secondary's frame rate with ffprobe for
// timecodes instead of using the configured rate.
func WithProbeFrameRate() Option {
	return func(c *config.Config) {
		c.ProbeFrameRate = true
	}
}

// WithTemplate sets the VapourSynth script template used by the vs-psnr backend.
func WithTemplate(path string) Option {
	return func(c *config.Config) {
		c.TemplatePath = path
	}
}

// WithKeepIntermediate keeps generated scripts and index files after a successful job.
func WithKeepIntermediate() Option {
	return func(c *config.Config) {
		c.KeepIntermediate = true
	}
}

// WithFrameRate sets the frame rate used to turn frame numbers into timecodes.
func WithFrameRate(fps float64) Option {
	return func(c *config.Config) {
		c.FrameRate = fps
	}
}

// WithOutputDir sets where results files are written.
func WithOutputDir(dir string) Option {
	return func(c *config.Config) {
		c.OutputDir = dir
	}
}

// WithWorkingDir sets the directory the tools run in.
func WithWorkingDir(dir string) Option {
	return func(c *config.Config) {
		c.WorkingDir = dir
	}
}

// Backend returns the configured backend.
func (c *Checker) Backend() Backend {
	return c.config.Backend
}

// Threshold returns the threshold in effect for the configured backend.
func (c *Checker) Threshold() float64 {
	return c.config.EffectiveThreshold()
}

// Check compares primary with secondary. Both must be video files, or both
// directories, in which case clips are paired by file name. Jobs run one at
// a time; a failing pair is recorded in BatchResult.Failures and does not
// stop the batch. A nil rep discards events.
func (c *Checker) Check(ctx context.Context, primary, secondary string, rep Reporter) (*BatchResult, error) {
	found, err := discovery.Resolve(primary, secondary)
	if err != nil {
		return nil, err
	}
	if rep != nil {
		for _, name := range found.Unmatched {
			rep.Warning(fmt.Sprintf("No counterpart for %s", name))
		}
	}
	return c.CheckPairs(ctx, found.Pairs, rep)
}

// CheckPairs runs the given pairs as one batch.
func (c *Checker) CheckPairs(ctx context.Context, pairs []discovery.Pair, rep Reporter) (*BatchResult, error) {
	cfg := *c.config

	if err := util.EnsureDirectory(cfg.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if rep == nil {
		rep = reporter.NullReporter{}
	}

	col, err := collector.New(&cfg, rep)
	if err != nil {
		return nil, err
	}
	return col.Run(ctx, pairs)
}

// Pair is one primary/secondary comparison.
type Pair = discovery.Pair

// FindVideos finds video files in a directory.
func FindVideos(dir string) ([]string, error) {
	files, _, err := discovery.FindVideoFiles(dir)
	return files, err
}

// LoadResults reads a results file written by a previous run.
func LoadResults(path string) ([]*Result, error) {
	return result.Load(path)
}
