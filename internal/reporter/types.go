// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// ToolsSummary describes the environment a run uses.
type ToolsSummary struct {
	Hostname string
	Backend  string
	// Executable is the resolved path of the backend's tool, empty if not found.
	Executable string
	Template   string
}

// BatchStartInfo contains batch start metadata.
type BatchStartInfo struct {
	TotalJobs int
	Backend   string
	PairList  []string
	OutputDir string
}

// JobStartInfo identifies the job about to run within a batch.
type JobStartInfo struct {
	Index     int
	TotalJobs int
	Primary   string
	Secondary string
	Backend   string
}

// ProgressSnapshot is one progress update from the running tool.
type ProgressSnapshot struct {
	Text       string
	Percent    int
	HasPercent bool
}

// RemediationHint is shown once per recognized failure signature per job.
type RemediationHint struct {
	Signature string
	Hint      string
}

// WorstFrame is one of the lowest-scoring frames of a job.
type WorstFrame struct {
	Frame    int
	Timecode string
	Value    float64
}

// JobSummary contains the outcome of one job.
type JobSummary struct {
	Primary         string
	Secondary       string
	ValueName       string
	Unit            string
	Outcome         string
	ExitCode        int
	InferredFailure bool
	SampleCount     int
	Min             float64
	Max             float64
	Mean            float64
	Threshold       float64
	BelowCount      int
	Worst           []WorstFrame
	Duration        time.Duration
}

// Passed reports whether the job produced samples and none fell below threshold.
func (s JobSummary) Passed() bool {
	return s.SampleCount > 0 && s.BelowCount == 0 && !s.InferredFailure
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// BatchSummary contains batch completion information.
type BatchSummary struct {
	TotalJobs      int
	CompletedCount int
	AbortedCount   int
	FailedCount    int
	PassedCount    int
	TotalDuration  time.Duration
	ResultsFile    string
	JobResults     []JobResult
}

// JobResult is a one-line outcome for the batch summary.
type JobResult struct {
	Name       string
	Passed     bool
	BelowCount int
	Min        float64
}
