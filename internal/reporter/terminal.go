package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/rpcheck/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
	verbose    bool
	progress   *progressbar.ProgressBar
	maxPercent int
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
	faint      *color.Color
}

// NewTerminalReporter creates a new terminal reporter. Verbose messages are
// printed only when verbose is set.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return NewTerminalReporterWithWriters(os.Stdout, os.Stderr, verbose)
}

// NewTerminalReporterWithWriters creates a terminal reporter writing regular
// output to out and errors and the progress bar to errOut.
func NewTerminalReporterWithWriters(out, errOut io.Writer, verbose bool) *TerminalReporter {
	return &TerminalReporter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) Tools(summary ToolsSummary) {
	fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, "TOOLS")
	r.printLabel(10, "Hostname:", summary.Hostname)
	r.printLabel(10, "Backend:", summary.Backend)
	if summary.Executable != "" {
		r.printLabel(10, "Tool:", summary.Executable)
	} else {
		r.printLabel(10, "Tool:", r.red.Sprint("not found"))
	}
	if summary.Template != "" {
		r.printLabel(10, "Template:", summary.Template)
	}
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, "BATCH")
	fmt.Fprintf(r.out, "  Checking %d pair(s) with %s\n", info.TotalJobs, r.bold.Sprint(info.Backend))
	for i, name := range info.PairList {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, name)
	}
}

func (r *TerminalReporter) JobStarted(info JobStartInfo) {
	r.finishProgress()

	fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintf(r.out, "JOB %d/%d\n", info.Index, info.TotalJobs)
	r.printLabel(10, "Primary:", info.Primary)
	r.printLabel(10, "Secondary:", info.Secondary)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Checking [",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) JobProgress(progress ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	if progress.HasPercent {
		clamped := min(max(progress.Percent, 0), 100)
		if clamped >= r.maxPercent {
			r.maxPercent = clamped
			_ = r.progress.Set(clamped)
		}
	}
	r.progress.Describe(progress.Text)
}

func (r *TerminalReporter) Remediation(hint RemediationHint) {
	fmt.Fprintln(r.errOut)
	_, _ = r.yellow.Fprintf(r.errOut, "KNOWN PROBLEM %s\n", hint.Signature)
	fmt.Fprintf(r.errOut, "  %s\n", hint.Hint)
}

func (r *TerminalReporter) JobComplete(summary JobSummary) {
	r.finishProgress()

	fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, "RESULTS")

	var status string
	switch {
	case summary.Outcome == "aborted":
		status = r.yellow.Sprint("aborted (partial)")
	case summary.InferredFailure:
		status = r.red.Sprint("tool failure (samples unreliable)")
	case summary.Passed():
		status = color.New(color.FgGreen, color.Bold).Sprint("passed")
	case summary.SampleCount == 0:
		status = r.red.Sprint("no samples")
	default:
		status = r.red.Sprintf("%d frame(s) below %s", summary.BelowCount, util.FormatMetric(summary.Threshold))
	}
	r.printLabel(10, "File:", filepath.Base(summary.Secondary))
	r.printLabel(10, "Status:", status)
	if summary.ExitCode != 0 && summary.Outcome != "aborted" {
		r.printLabel(10, "Exit code:", r.red.Sprint(summary.ExitCode))
	}
	if summary.SampleCount > 0 {
		r.printLabel(10, "Frames:", fmt.Sprint(summary.SampleCount))
		r.printLabel(10, summary.ValueName+":", fmt.Sprintf("min %s, mean %s, max %s %s",
			util.FormatMetric(summary.Min), util.FormatMetric(summary.Mean), util.FormatMetric(summary.Max), summary.Unit))
	}
	r.printLabel(10, "Time:", util.FormatDuration(summary.Duration.Seconds()))

	for _, w := range summary.Worst {
		value := util.FormatMetric(w.Value)
		if w.Value < summary.Threshold {
			value = r.red.Sprint(value)
		}
		fmt.Fprintf(r.out, "  %s frame %-7d %s  %s\n", r.magenta.Sprint("›"), w.Frame, r.faint.Sprint(w.Timecode), value)
	}
}

func (r *TerminalReporter) Warning(message string) {
	fmt.Fprintln(r.out)
	_, _ = r.yellow.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	r.finishProgress()

	_, _ = fmt.Fprintln(r.errOut)
	_, _ = r.red.Fprintf(r.errOut, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.errOut, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) BatchComplete(summary BatchSummary) {
	fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, "BATCH SUMMARY")
	fmt.Fprintf(r.out, "  %s\n", r.bold.Sprintf("%d of %d passed", summary.PassedCount, summary.TotalJobs))
	fmt.Fprintf(r.out, "  Completed: %s, aborted: %s, failed: %s\n",
		r.green.Sprint(summary.CompletedCount),
		r.yellow.Sprint(summary.AbortedCount),
		r.red.Sprint(summary.FailedCount))
	fmt.Fprintf(r.out, "  Time: %s\n", util.FormatDuration(summary.TotalDuration.Seconds()))

	for _, result := range summary.JobResults {
		mark := r.green.Sprint("✓")
		if !result.Passed {
			mark = r.red.Sprint("✗")
		}
		fmt.Fprintf(r.out, "  %s %s (min %s, %d below)\n", mark, result.Name, util.FormatMetric(result.Min), result.BelowCount)
	}
	if summary.ResultsFile != "" {
		fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint("Saved to"), r.green.Sprint(summary.ResultsFile))
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	fmt.Fprintf(r.out, "  %s\n", r.faint.Sprint(message))
}
