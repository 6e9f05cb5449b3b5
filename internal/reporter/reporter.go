package reporter

// Reporter defines the interface for progress reporting.
type Reporter interface {
	Tools(summary ToolsSummary)
	BatchStarted(info BatchStartInfo)
	JobStarted(info JobStartInfo)
	JobProgress(progress ProgressSnapshot)
	Remediation(hint RemediationHint)
	JobComplete(summary JobSummary)
	Warning(message string)
	Error(err ReporterError)
	BatchComplete(summary BatchSummary)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) Tools(ToolsSummary)           {}
func (NullReporter) BatchStarted(BatchStartInfo)  {}
func (NullReporter) JobStarted(JobStartInfo)      {}
func (NullReporter) JobProgress(ProgressSnapshot) {}
func (NullReporter) Remediation(RemediationHint)  {}
func (NullReporter) JobComplete(JobSummary)       {}
func (NullReporter) Warning(string)               {}
func (NullReporter) Error(ReporterError)          {}
func (NullReporter) BatchComplete(BatchSummary)   {}
func (NullReporter) Verbose(string)               {}
