package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// JSONReporter outputs one JSON object per event (NDJSON).
type JSONReporter struct {
	writer      io.Writer
	mu          sync.Mutex
	lastPercent int
	lastTime    time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return NewJSONReporterWithWriter(os.Stdout)
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer:      w,
		lastPercent: -1,
	}
}

func (r *JSONReporter) timestamp() int64 {
	return time.Now().Unix()
}

func (r *JSONReporter) write(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) Tools(summary ToolsSummary) {
	r.write(map[string]interface{}{
		"type":       "tools",
		"hostname":   summary.Hostname,
		"backend":    summary.Backend,
		"executable": summary.Executable,
		"template":   summary.Template,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) BatchStarted(info BatchStartInfo) {
	r.write(map[string]interface{}{
		"type":       "batch_started",
		"total_jobs": info.TotalJobs,
		"backend":    info.Backend,
		"pair_list":  info.PairList,
		"output_dir": info.OutputDir,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) JobStarted(info JobStartInfo) {
	r.mu.Lock()
	r.lastPercent = -1
	r.lastTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":       "job_started",
		"index":      info.Index,
		"total_jobs": info.TotalJobs,
		"primary":    info.Primary,
		"secondary":  info.Secondary,
		"backend":    info.Backend,
		"timestamp":  r.timestamp(),
	})
}

// JobProgress emits every new percent. Text-only updates, which arrive
// before the total frame count is known, are throttled.
func (r *JSONReporter) JobProgress(progress ProgressSnapshot) {
	const minInterval = 5 * time.Second

	now := time.Now()
	r.mu.Lock()
	var shouldEmit bool
	if progress.HasPercent {
		shouldEmit = progress.Percent > r.lastPercent
		if shouldEmit {
			r.lastPercent = progress.Percent
		}
	} else {
		shouldEmit = r.lastTime.IsZero() || now.Sub(r.lastTime) >= minInterval
	}
	if shouldEmit {
		r.lastTime = now
	}
	r.mu.Unlock()

	if !shouldEmit {
		return
	}

	event := map[string]interface{}{
		"type":      "job_progress",
		"text":      progress.Text,
		"timestamp": r.timestamp(),
	}
	if progress.HasPercent {
		event["percent"] = progress.Percent
	}
	r.write(event)
}

func (r *JSONReporter) Remediation(hint RemediationHint) {
	r.write(map[string]interface{}{
		"type":      "remediation",
		"signature": hint.Signature,
		"hint":      hint.Hint,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) JobComplete(summary JobSummary) {
	worst := make([]map[string]interface{}, len(summary.Worst))
	for i, w := range summary.Worst {
		worst[i] = map[string]interface{}{
			"frame":    w.Frame,
			"timecode": w.Timecode,
			"value":    w.Value,
		}
	}

	r.write(map[string]interface{}{
		"type":             "job_complete",
		"primary":          summary.Primary,
		"secondary":        summary.Secondary,
		"metric":           summary.ValueName,
		"outcome":          summary.Outcome,
		"exit_code":        summary.ExitCode,
		"inferred_failure": summary.InferredFailure,
		"passed":           summary.Passed(),
		"samples":          summary.SampleCount,
		"min":              summary.Min,
		"max":              summary.Max,
		"mean":             summary.Mean,
		"threshold":        summary.Threshold,
		"below_threshold":  summary.BelowCount,
		"worst_frames":     worst,
		"duration_seconds": int64(summary.Duration.Seconds()),
		"timestamp":        r.timestamp(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]interface{}{
		"type":      "warning",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]interface{}{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) BatchComplete(summary BatchSummary) {
	r.write(map[string]interface{}{
		"type":                   "batch_complete",
		"total_jobs":             summary.TotalJobs,
		"completed_count":        summary.CompletedCount,
		"aborted_count":          summary.AbortedCount,
		"failed_count":           summary.FailedCount,
		"passed_count":           summary.PassedCount,
		"results_file":           summary.ResultsFile,
		"total_duration_seconds": int64(summary.TotalDuration.Seconds()),
		"timestamp":              r.timestamp(),
	})
}

func (r *JSONReporter) Verbose(message string) {
	r.write(map[string]interface{}{
		"type":      "verbose",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}
