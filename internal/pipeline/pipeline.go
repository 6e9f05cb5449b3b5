// Package pipeline runs one measurement job at a time: it starts the
// backend's tool, classifies every output line, accumulates samples and
// reports progress to a caller-supplied Sink.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/logging"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/process"
	"github.com/five82/rpcheck/internal/result"
)

// State is the lifecycle state of a Pipeline.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExecutor routes every sink call through exec, for hosts that must
// receive events on a specific goroutine or event loop. exec is called from
// a single goroutine in event order and must preserve that order.
func WithExecutor(exec func(func())) Option {
	return func(p *Pipeline) {
		if exec != nil {
			p.executor = exec
		}
	}
}

// WithLogger sets the logger used for anomalies and lifecycle messages.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline runs measurement jobs strictly one at a time.
type Pipeline struct {
	tools    metric.Tools
	executor func(func())
	logger   *logging.Logger

	mu      sync.Mutex
	state   State
	gen     uint64 // incremented by each Run
	aborted bool
	handle  *process.Handle
}

// New creates an idle pipeline that builds commands from tools.
func New(tools metric.Tools, opts ...Option) *Pipeline {
	p := &Pipeline{
		tools:    tools,
		executor: func(fn func()) { fn() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state. A terminal state is reported until the
// next Run starts.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Abort kills the running job's tool. The job ends Aborted with the samples
// gathered so far, unless the tool had already exited on its own. Abort is
// idempotent and a no-op when no job is running.
func (p *Pipeline) Abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abortLocked()
}

// abortRun aborts only if gen is still the current job.
func (p *Pipeline) abortRun(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen {
		p.abortLocked()
	}
}

func (p *Pipeline) abortLocked() {
	if p.state != StateRunning || p.aborted {
		return
	}
	p.aborted = true
	if p.handle != nil {
		p.handle.Kill()
	}
}

// Run executes job and blocks until the tool exits or the job is aborted.
// It fails fast with a busy error if another job is running. Only failures
// to build or start the command are returned as errors; every other outcome
// is reported through the returned Result.
func (p *Pipeline) Run(job result.JobSpec, sink Sink) (*result.Result, error) {
	return p.RunContext(context.Background(), job, sink)
}

// RunContext is Run with cancellation: once ctx is done the job is aborted,
// including when ctx was already done before the tool started.
func (p *Pipeline) RunContext(ctx context.Context, job result.JobSpec, sink Sink) (*result.Result, error) {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return nil, rperrors.NewBusyError()
	}
	p.state = StateRunning
	p.gen++
	gen := p.gen
	p.aborted = false
	p.handle = nil
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { p.abortRun(gen) })
	defer stop()

	if sink == nil {
		sink = SinkFuncs{}
	}
	logger := p.logger
	if logger == nil {
		logger = logging.Global()
	}
	logger = logger.WithJob(job.ID, string(job.Backend))

	events := newDispatcher(p.executor)

	r, err := p.run(job, sink, events, logger)
	if err != nil {
		events.post(func() { sink.OnFailed(err) })
		events.close()
		p.finish(StateFailed)
		return nil, err
	}

	events.close()
	if r.Outcome == result.OutcomeAborted {
		p.finish(StateAborted)
	} else {
		p.finish(StateCompleted)
	}
	return r, nil
}

func (p *Pipeline) finish(state State) {
	p.mu.Lock()
	p.state = state
	p.handle = nil
	p.mu.Unlock()
}

type outputLine struct {
	stream process.Stream
	text   string
}

// jobState is owned by the goroutine inside Run; nothing else touches it.
type jobState struct {
	backend    metric.Backend
	classifier *metric.Classifier
	progress   metric.ProgressTracker
	log        *result.LogBuffer
	samples    []metric.Sample
	shown      map[string]bool
}

func (p *Pipeline) run(job result.JobSpec, sink Sink, events *dispatcher, logger *logging.Logger) (*result.Result, error) {
	backend, err := metric.Lookup(job.Backend)
	if err != nil {
		return nil, rperrors.NewConfigError(err.Error())
	}
	cmd, err := backend.BuildCommand(p.tools, job.Primary, job.Secondary, job.ScriptPath)
	if err != nil {
		return nil, rperrors.NewConfigError(err.Error())
	}

	js := &jobState{
		backend:    backend,
		classifier: metric.NewClassifier(backend),
		log:        &result.LogBuffer{},
		shown:      make(map[string]bool),
	}

	// Readers hand lines to this goroutine so classification stays single-threaded.
	lines := make(chan outputLine, 64)
	handle, err := process.Start(cmd, func(s process.Stream, text string) {
		lines <- outputLine{stream: s, text: text}
	})
	if err != nil {
		logger.Error("failed to start measurement tool", "cmd", cmd.String(), "error", err)
		return nil, err
	}
	logger.Info("measurement started", "cmd", cmd.String(), "pid", handle.Pid())

	p.mu.Lock()
	p.handle = handle
	if p.aborted {
		handle.Kill()
	}
	p.mu.Unlock()

	type waitResult struct {
		status process.ExitStatus
		err    error
	}
	exited := make(chan waitResult, 1)
	go func() {
		status, err := handle.Wait()
		close(lines)
		exited <- waitResult{status, err}
	}()

	// Lines already buffered when Abort lands are still classified; the kill
	// closes the pipes, so the loop ends on its own.
	for line := range lines {
		js.log.Append(line.stream, line.text)
		p.handleLine(js, line.text, sink, events, logger)
	}

	w := <-exited
	if w.err != nil {
		logger.Warn("could not wait for measurement tool", "error", w.err)
	}

	outcome := result.OutcomeCompleted
	if w.status.Killed && w.status.Code != 0 {
		outcome = result.OutcomeAborted
	}

	r := result.Finalize(job, js.samples, js.log, outcome, w.status.Code)
	logger.Info("measurement finished",
		"outcome", string(outcome),
		"exit_code", w.status.Code,
		"samples", len(r.Samples),
		"inferred_failure", r.InferredFailure(),
	)

	if outcome == result.OutcomeAborted {
		events.post(func() { sink.OnAborted(r) })
	} else {
		events.post(func() { sink.OnComplete(r) })
	}
	return r, nil
}

func (p *Pipeline) handleLine(js *jobState, text string, sink Sink, events *dispatcher, logger *logging.Logger) {
	cl := js.classifier.Classify(text)

	switch cl.Kind {
	case metric.LineKnownFailure:
		js.log.MarkInferredFailure()
		if js.shown[cl.Signature.ID] {
			return
		}
		js.shown[cl.Signature.ID] = true
		logger.Warn("known failure signature", "signature", cl.Signature.ID, "line", text)
		sig := cl.Signature
		events.post(func() { sink.OnKnownFailure(sig) })

	case metric.LineFailure:
		js.log.MarkInferredFailure()
		logger.Warn("tool reported a failure; ignoring further output", "line", text)

	case metric.LineProgress:
		if cl.Progress.Total <= 0 {
			ev := ProgressEvent{Text: strings.TrimSpace(text)}
			events.post(func() { sink.OnProgress(ev) })
			return
		}
		u := js.progress.Update(cl.Progress)
		if u.Anomaly {
			logParseAnomaly(logger, fmt.Sprintf("processed %d beyond total %d", cl.Progress.Processed, cl.Progress.Total), text)
			return
		}
		if !u.Emit {
			return
		}
		ev := ProgressEvent{Text: strings.TrimSpace(text), Percent: u.Percent, HasPercent: true}
		events.post(func() { sink.OnProgress(ev) })

	case metric.LineTotal:
		logger.Debug("total frame count", "frames", cl.Progress.Total)

	case metric.LineValue:
		if cl.Anomaly != "" {
			logParseAnomaly(logger, cl.Anomaly, text)
		}
		js.samples = append(js.samples, cl.Sample)
		s := cl.Sample
		events.post(func() { sink.OnSample(s) })

	case metric.LineAnomaly:
		logParseAnomaly(logger, cl.Anomaly, text)
	}
}

func logParseAnomaly(logger *logging.Logger, detail, line string) {
	err := rperrors.NewParseAnomalyError(detail)
	logger.Debug("ignoring output anomaly", "error", err, "line", line)
}
