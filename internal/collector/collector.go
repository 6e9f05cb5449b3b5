// Package collector runs a batch of comparisons one after another, reports
// each job, removes intermediate files and saves the collected results.
package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/five82/rpcheck/internal/config"
	"github.com/five82/rpcheck/internal/discovery"
	"github.com/five82/rpcheck/internal/ffprobe"
	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/logging"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/pipeline"
	"github.com/five82/rpcheck/internal/reporter"
	"github.com/five82/rpcheck/internal/result"
	"github.com/five82/rpcheck/internal/script"
	"github.com/five82/rpcheck/internal/util"
)

// DefaultWorstFrames is how many of the lowest-scoring frames are reported per job.
const DefaultWorstFrames = 10

// JobFailure records a pair that produced no result.
type JobFailure struct {
	Pair discovery.Pair
	Err  error
}

// BatchResult is the outcome of a batch.
type BatchResult struct {
	Results     []*result.Result
	Failures    []JobFailure
	Summaries   []reporter.JobSummary
	ResultsFile string
}

// Passed returns the number of jobs whose samples all met the threshold.
func (b *BatchResult) Passed() int {
	n := 0
	for _, s := range b.Summaries {
		if s.Passed() {
			n++
		}
	}
	return n
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger passed to the pipeline.
func WithLogger(l *logging.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithRunLog mirrors job lifecycle messages into the run log file.
func WithRunLog(l *logging.RunLog) Option {
	return func(c *Collector) { c.runLog = l }
}

// WithWorstFrames sets how many worst frames each job summary lists.
func WithWorstFrames(n int) Option {
	return func(c *Collector) { c.worst = n }
}

// WithoutSave disables writing the results file.
func WithoutSave() Option {
	return func(c *Collector) { c.save = false }
}

// Collector drives a Pipeline over many pairs.
type Collector struct {
	cfg      *config.Config
	rep      reporter.Reporter
	backend  metric.Backend
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	runLog   *logging.RunLog
	worst    int
	save     bool
}

// New validates cfg and creates a collector for its backend.
func New(cfg *config.Config, rep reporter.Reporter, opts ...Option) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, rperrors.NewConfigError(err.Error())
	}
	backend, err := metric.Lookup(cfg.Backend)
	if err != nil {
		return nil, rperrors.NewConfigError(err.Error())
	}
	if rep == nil {
		rep = reporter.NullReporter{}
	}

	c := &Collector{
		cfg:     cfg,
		rep:     rep,
		backend: backend,
		worst:   DefaultWorstFrames,
		save:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Global()
	}
	c.pipeline = pipeline.New(cfg.Tools(), pipeline.WithLogger(c.logger))
	return c, nil
}

// Pipeline returns the pipeline jobs run on.
func (c *Collector) Pipeline() *pipeline.Pipeline {
	return c.pipeline
}

// Run checks every pair in order. A pair that fails never stops the batch;
// cancelling ctx aborts the running job and skips the rest, and the results
// gathered so far are still saved. The returned error is non-nil only when
// ctx was cancelled.
func (c *Collector) Run(ctx context.Context, pairs []discovery.Pair) (*BatchResult, error) {
	start := time.Now()
	batch := &BatchResult{}

	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = fmt.Sprintf("%s <> %s", filepath.Base(p.Primary), filepath.Base(p.Secondary))
	}
	c.rep.BatchStarted(reporter.BatchStartInfo{
		TotalJobs: len(pairs),
		Backend:   c.backend.Title,
		PairList:  names,
		OutputDir: c.cfg.OutputDir,
	})
	c.runLog.Info("batch started", "backend", string(c.backend.Kind), "pairs", len(pairs))

	var runErr error
	aborted := 0
	for i, pair := range pairs {
		if ctx.Err() != nil {
			runErr = rperrors.NewCancelledError()
			break
		}

		c.rep.JobStarted(reporter.JobStartInfo{
			Index:     i + 1,
			TotalJobs: len(pairs),
			Primary:   pair.Primary,
			Secondary: pair.Secondary,
			Backend:   string(c.backend.Kind),
		})

		r, summary, err := c.runJob(ctx, pair)
		if err != nil {
			batch.Failures = append(batch.Failures, JobFailure{Pair: pair, Err: err})
			c.reportJobError(pair, err)
			continue
		}
		batch.Results = append(batch.Results, r)
		batch.Summaries = append(batch.Summaries, summary)
		if r.Outcome == result.OutcomeAborted {
			aborted++
		}
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = rperrors.NewCancelledError()
	}

	if c.save && len(batch.Results) > 0 {
		path, err := result.Save(c.cfg.OutputDir, batch.Results)
		if err != nil {
			c.rep.Warning(fmt.Sprintf("Could not save results: %v", err))
		} else {
			batch.ResultsFile = path
		}
	}

	jobResults := make([]reporter.JobResult, len(batch.Summaries))
	for i, s := range batch.Summaries {
		jobResults[i] = reporter.JobResult{
			Name:       filepath.Base(s.Secondary),
			Passed:     s.Passed(),
			BelowCount: s.BelowCount,
			Min:        s.Min,
		}
	}
	elapsed := time.Since(start)
	c.runLog.BatchFinished(logging.BatchRecord{
		Backend:     string(c.backend.Kind),
		Pairs:       len(pairs),
		Passed:      batch.Passed(),
		Aborted:     aborted,
		Failed:      len(batch.Failures),
		ResultsFile: batch.ResultsFile,
		Duration:    elapsed,
	})
	c.rep.BatchComplete(reporter.BatchSummary{
		TotalJobs:      len(pairs),
		CompletedCount: len(batch.Results) - aborted,
		AbortedCount:   aborted,
		FailedCount:    len(batch.Failures),
		PassedCount:    batch.Passed(),
		TotalDuration:  elapsed,
		ResultsFile:    batch.ResultsFile,
		JobResults:     jobResults,
	})
	return batch, runErr
}

func (c *Collector) runJob(ctx context.Context, pair discovery.Pair) (*result.Result, reporter.JobSummary, error) {
	start := time.Now()
	clips := script.Clips{Primary: pair.Primary, Secondary: pair.Secondary}

	var scriptPath string
	if c.backend.NeedsScript {
		path, err := script.Generate(c.cfg.TemplatePath, clips)
		if err != nil {
			return nil, reporter.JobSummary{}, err
		}
		scriptPath = path
		c.rep.Verbose("Generated script " + path)
	}

	frameRate := c.cfg.FrameRate
	if c.cfg.ProbeFrameRate {
		frameRate = c.probe(ctx, pair)
	}

	job := result.NewJobSpec(pair.Primary, pair.Secondary, c.backend.Kind, scriptPath)
	rec := logging.JobRecord{
		ID:        job.ID,
		Backend:   string(job.Backend),
		Primary:   pair.Primary,
		Secondary: pair.Secondary,
	}
	c.runLog.JobStarted(rec)

	// Filled on the dispatch goroutine; Run has drained it before returning.
	var known []error
	sink := pipeline.SinkFuncs{
		Progress: func(ev pipeline.ProgressEvent) {
			c.rep.JobProgress(reporter.ProgressSnapshot{Text: ev.Text, Percent: ev.Percent, HasPercent: ev.HasPercent})
		},
		KnownFailure: func(sig metric.Signature) {
			c.rep.Remediation(reporter.RemediationHint{Signature: sig.ID, Hint: sig.Hint})
			c.runLog.KnownFailure(job.ID, sig.ID, sig.Hint)
			known = append(known, rperrors.NewKnownMisconfigurationError(sig.ID, sig.Hint))
		},
	}

	r, err := c.pipeline.RunContext(ctx, job, sink)
	if err != nil {
		c.runLog.JobFailed(rec, err)
		return nil, reporter.JobSummary{}, err
	}

	if rtErr := r.RuntimeError(); rtErr != nil {
		c.rep.Warning(fmt.Sprintf("%s: %v", filepath.Base(pair.Secondary), rtErr))
	}
	switch {
	case len(known) > 0:
		for _, kerr := range known {
			c.rep.Warning(fmt.Sprintf("%s: %v", filepath.Base(pair.Secondary), kerr))
		}
	case r.InferredFailure():
		c.rep.Warning(fmt.Sprintf("%s: the tool reported a failure; samples may be incomplete", filepath.Base(pair.Secondary)))
	}

	if c.backend.NeedsScript && !c.cfg.KeepIntermediate && !r.InferredFailure() && r.Outcome == result.OutcomeCompleted {
		if err := script.Cleanup(clips); err != nil {
			c.rep.Warning(fmt.Sprintf("Could not remove intermediate files: %v", err))
		}
	}

	summary := Summarize(r, c.backend, c.cfg.EffectiveThreshold(), frameRate, c.worst, time.Since(start))
	c.rep.JobComplete(summary)
	rec.Outcome = string(r.Outcome)
	rec.ExitCode = r.ExitCode
	rec.Samples = summary.SampleCount
	rec.Below = summary.BelowCount
	rec.Threshold = summary.Threshold
	rec.InferredFailure = r.InferredFailure()
	rec.Duration = summary.Duration
	c.runLog.JobFinished(rec)
	return r, summary, nil
}

// probe returns the secondary's frame rate, or the configured one when it
// cannot be read. Clips of different sizes are reported but still compared.
func (c *Collector) probe(ctx context.Context, pair discovery.Pair) float64 {
	secondary, err := ffprobe.Probe(ctx, c.cfg.FFprobePath, pair.Secondary)
	if err != nil {
		c.rep.Warning(fmt.Sprintf("Could not probe %s, using %.3f fps: %v",
			filepath.Base(pair.Secondary), c.cfg.FrameRate, err))
		return c.cfg.FrameRate
	}

	if primary, err := ffprobe.Probe(ctx, c.cfg.FFprobePath, pair.Primary); err == nil && !primary.SameDimensions(secondary) {
		c.rep.Warning(fmt.Sprintf("%s is %dx%d but %s is %dx%d",
			filepath.Base(pair.Primary), primary.Width, primary.Height,
			filepath.Base(pair.Secondary), secondary.Width, secondary.Height))
	}

	if secondary.FrameRate <= 0 {
		return c.cfg.FrameRate
	}
	c.rep.Verbose(fmt.Sprintf("%s: %.3f fps, %d frame(s)", filepath.Base(pair.Secondary), secondary.FrameRate, secondary.TotalFrames))
	return secondary.FrameRate
}

// Summarize condenses r into a JobSummary, listing up to worst frames with
// timecodes computed at frameRate.
func Summarize(r *result.Result, backend metric.Backend, threshold, frameRate float64, worst int, elapsed time.Duration) reporter.JobSummary {
	s := r.Summarize(threshold, worst)

	frames := make([]reporter.WorstFrame, len(s.Worst))
	for i, w := range s.Worst {
		frames[i] = reporter.WorstFrame{
			Frame:    w.Frame,
			Timecode: util.FrameToTimecode(w.Frame, frameRate),
			Value:    w.Value,
		}
	}

	return reporter.JobSummary{
		Primary:         r.Job.Primary,
		Secondary:       r.Job.Secondary,
		ValueName:       backend.ValueName,
		Unit:            backend.Unit,
		Outcome:         string(r.Outcome),
		ExitCode:        r.ExitCode,
		InferredFailure: r.InferredFailure(),
		SampleCount:     s.Count,
		Min:             s.Min,
		Max:             s.Max,
		Mean:            s.Mean,
		Threshold:       threshold,
		BelowCount:      s.BelowCount,
		Worst:           frames,
		Duration:        elapsed,
	}
}

func (c *Collector) reportJobError(pair discovery.Pair, err error) {
	re := reporter.ReporterError{
		Title:   "Job failed",
		Message: err.Error(),
		Context: fmt.Sprintf("%s <> %s", pair.Primary, pair.Secondary),
	}
	switch {
	case rperrors.IsNotFound(err):
		re.Title = "Tool not found"
		re.Suggestion = "Install the tool or set its path with --ffmpeg / --vspipe"
	case rperrors.IsSpawn(err):
		re.Title = "Tool could not be started"
	}
	c.rep.Error(re)
}
