package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// RunLog is the per-invocation log file of the check command. Each record
// is one slog text line; job records carry the job ID so a single job can
// be followed with grep.
type RunLog struct {
	log  *slog.Logger
	file *os.File
	path string
}

// JobRecord describes one measurement job. Zero-valued result fields are
// omitted when the job has not finished yet.
type JobRecord struct {
	ID              string
	Backend         string
	Primary         string
	Secondary       string
	Outcome         string
	ExitCode        int
	Samples         int
	Below           int
	Threshold       float64
	InferredFailure bool
	Duration        time.Duration
}

// BatchRecord describes the end of a batch.
type BatchRecord struct {
	Backend     string
	Pairs       int
	Passed      int
	Aborted     int
	Failed      int
	ResultsFile string
	Duration    time.Duration
}

// Setup opens rpcheck_run_<timestamp>.log under logDir. It returns a nil
// RunLog when noLog is set; every method is safe on nil.
func Setup(logDir string, verbose, noLog bool) (*RunLog, error) {
	if noLog {
		return nil, nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("rpcheck_run_%s.log", time.Now().Format("20060102_150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	l := &RunLog{
		log:  slog.New(slog.NewTextHandler(file, &slog.HandlerOptions{Level: level})),
		file: file,
		path: path,
	}
	l.log.Info("run started", "pid", os.Getpid(), "verbose", verbose, "log_file", path)
	return l, nil
}

// Close closes the log file.
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// FilePath returns the path to the log file.
func (l *RunLog) FilePath() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Writer returns the underlying file, for pointing other loggers at it.
func (l *RunLog) Writer() io.Writer {
	if l == nil || l.file == nil {
		return io.Discard
	}
	return l.file
}

func (l *RunLog) Debug(msg string, args ...any) {
	if l != nil {
		l.log.Debug(msg, args...)
	}
}

func (l *RunLog) Info(msg string, args ...any) {
	if l != nil {
		l.log.Info(msg, args...)
	}
}

func (l *RunLog) Warn(msg string, args ...any) {
	if l != nil {
		l.log.Warn(msg, args...)
	}
}

// JobStarted records the inputs of a job.
func (l *RunLog) JobStarted(rec JobRecord) {
	if l == nil {
		return
	}
	l.log.LogAttrs(context.Background(), LevelInfo, "job started",
		slog.String("job", rec.ID),
		slog.String("backend", rec.Backend),
		slog.String("primary", rec.Primary),
		slog.String("secondary", rec.Secondary),
	)
}

// JobFinished records a job's outcome. Jobs that ended with a nonzero exit
// code or an inferred failure are logged at warn level.
func (l *RunLog) JobFinished(rec JobRecord) {
	if l == nil {
		return
	}
	level := LevelInfo
	if rec.ExitCode != 0 || rec.InferredFailure {
		level = LevelWarn
	}
	l.log.LogAttrs(context.Background(), level, "job finished",
		slog.String("job", rec.ID),
		slog.String("backend", rec.Backend),
		slog.String("outcome", rec.Outcome),
		slog.Int("exit_code", rec.ExitCode),
		slog.Int("samples", rec.Samples),
		slog.Int("below", rec.Below),
		slog.Float64("threshold", rec.Threshold),
		slog.Bool("inferred_failure", rec.InferredFailure),
		slog.Duration("duration", rec.Duration.Round(time.Millisecond)),
	)
}

// JobFailed records a job that produced no result.
func (l *RunLog) JobFailed(rec JobRecord, err error) {
	if l == nil {
		return
	}
	l.log.LogAttrs(context.Background(), LevelError, "job failed",
		slog.String("job", rec.ID),
		slog.String("backend", rec.Backend),
		slog.String("secondary", rec.Secondary),
		slog.Any("error", err),
	)
}

// KnownFailure records a recognised misconfiguration for job.
func (l *RunLog) KnownFailure(job, signature, hint string) {
	if l == nil {
		return
	}
	l.log.Warn("known failure", "job", job, "signature", signature, "hint", hint)
}

// BatchFinished records the totals of a batch.
func (l *RunLog) BatchFinished(rec BatchRecord) {
	if l == nil {
		return
	}
	l.log.LogAttrs(context.Background(), LevelInfo, "batch finished",
		slog.String("backend", rec.Backend),
		slog.Int("pairs", rec.Pairs),
		slog.Int("passed", rec.Passed),
		slog.Int("aborted", rec.Aborted),
		slog.Int("failed", rec.Failed),
		slog.String("results_file", rec.ResultsFile),
		slog.Duration("duration", rec.Duration.Round(time.Millisecond)),
	)
}
