// Package result holds the per-job records produced by a measurement run:
// the job description, the raw tool log, and the sorted metric samples.
package result

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/process"
)

// JobSpec describes one comparison of a secondary clip against a primary clip.
type JobSpec struct {
	ID        string      `json:"id"`
	Primary   string      `json:"primary"`
	Secondary string      `json:"secondary"`
	Backend   metric.Kind `json:"backend"`
	// ScriptPath is the generated script consumed by script-driven backends.
	ScriptPath string `json:"script_path,omitempty"`
}

// NewJobSpec returns a JobSpec with a fresh ID.
func NewJobSpec(primary, secondary string, backend metric.Kind, scriptPath string) JobSpec {
	return JobSpec{
		ID:         uuid.NewString(),
		Primary:    primary,
		Secondary:  secondary,
		Backend:    backend,
		ScriptPath: scriptPath,
	}
}

// Outcome is the terminal state of a job.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFailed    Outcome = "failed"
)

// LogLine is one raw output line tagged with its source stream.
type LogLine struct {
	Stream process.Stream `json:"stream"`
	Text   string         `json:"text"`
}

// LogBuffer is the ordered raw output of one job. It is appended to only by
// the job's line-processing path and is read-only once Freeze is called.
type LogBuffer struct {
	mu              sync.Mutex
	lines           []LogLine
	inferredFailure bool
	frozen          bool
}

// Append records a line. It is a no-op after Freeze.
func (b *LogBuffer) Append(stream process.Stream, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return
	}
	b.lines = append(b.lines, LogLine{Stream: stream, Text: text})
}

// MarkInferredFailure records that a failure was seen in the output.
func (b *LogBuffer) MarkInferredFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.frozen {
		b.inferredFailure = true
	}
}

// Freeze makes the buffer read-only.
func (b *LogBuffer) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

// Lines returns a copy of the recorded lines.
func (b *LogBuffer) Lines() []LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]LogLine(nil), b.lines...)
}

// Len returns the number of recorded lines.
func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// InferredFailure reports whether a failure was seen in the output.
func (b *LogBuffer) InferredFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inferredFailure
}

// Log is the immutable snapshot of a LogBuffer stored in a Result.
type Log struct {
	Lines           []LogLine `json:"lines"`
	InferredFailure bool      `json:"inferred_failure"`
}

// Result is the finalized record of one job. The pipeline never modifies a
// Result after handing it to the caller.
type Result struct {
	Job     JobSpec         `json:"job"`
	Backend metric.Kind     `json:"backend"`
	Samples []metric.Sample `json:"samples"`
	Log     Log             `json:"log"`
	Outcome Outcome         `json:"outcome"`
	// ExitCode is -1 when the tool never exited normally.
	ExitCode   int       `json:"exit_code"`
	FinishedAt time.Time `json:"finished_at"`
}

// Finalize freezes log and packages it with the samples sorted by value
// ascending, ties broken by frame index ascending. Samples are copied; no
// sample is dropped or merged.
func Finalize(job JobSpec, samples []metric.Sample, log *LogBuffer, outcome Outcome, exitCode int) *Result {
	sorted := SortSamples(samples)

	var snapshot Log
	if log != nil {
		log.Freeze()
		snapshot = Log{Lines: log.Lines(), InferredFailure: log.InferredFailure()}
	}

	return &Result{
		Job:        job,
		Backend:    job.Backend,
		Samples:    sorted,
		Log:        snapshot,
		Outcome:    outcome,
		ExitCode:   exitCode,
		FinishedAt: time.Now(),
	}
}

// SortSamples returns a copy of samples ordered worst first: value ascending,
// then frame index ascending.
func SortSamples(samples []metric.Sample) []metric.Sample {
	sorted := make([]metric.Sample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value < sorted[j].Value
		}
		return sorted[i].Frame < sorted[j].Frame
	})
	return sorted
}

// InferredFailure reports whether the samples should be treated as partial.
func (r *Result) InferredFailure() bool {
	return r.Log.InferredFailure
}

// RuntimeError returns a runtime error when the tool exited nonzero on a job
// that otherwise completed, and nil otherwise. Callers decide whether it is fatal.
func (r *Result) RuntimeError() error {
	if r.Outcome != OutcomeCompleted || r.ExitCode == 0 {
		return nil
	}
	return rperrors.NewRuntimeError(string(r.Backend), r.ExitCode)
}
