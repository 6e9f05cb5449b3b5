package pipeline

import (
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/result"
)

// ProgressEvent is a progress update for the running job. Percent is only
// meaningful when HasPercent is set, which happens once the total frame
// count is known.
type ProgressEvent struct {
	Text       string
	Percent    int
	HasPercent bool
}

// Sink receives the events of one job. Events arrive in generation order,
// each exactly once, on the pipeline's dispatch goroutine or through the
// configured executor.
type Sink interface {
	OnProgress(ev ProgressEvent)
	OnSample(s metric.Sample)
	// OnKnownFailure is called at most once per signature per job.
	OnKnownFailure(sig metric.Signature)
	OnComplete(r *result.Result)
	// OnAborted receives the partial result of a cancelled job.
	OnAborted(r *result.Result)
	OnFailed(err error)
}

// SinkFuncs adapts optional callbacks to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	Progress     func(ProgressEvent)
	Sample       func(metric.Sample)
	KnownFailure func(metric.Signature)
	Complete     func(*result.Result)
	Aborted      func(*result.Result)
	Failed       func(error)
}

func (f SinkFuncs) OnProgress(ev ProgressEvent) {
	if f.Progress != nil {
		f.Progress(ev)
	}
}

func (f SinkFuncs) OnSample(s metric.Sample) {
	if f.Sample != nil {
		f.Sample(s)
	}
}

func (f SinkFuncs) OnKnownFailure(sig metric.Signature) {
	if f.KnownFailure != nil {
		f.KnownFailure(sig)
	}
}

func (f SinkFuncs) OnComplete(r *result.Result) {
	if f.Complete != nil {
		f.Complete(r)
	}
}

func (f SinkFuncs) OnAborted(r *result.Result) {
	if f.Aborted != nil {
		f.Aborted(r)
	}
}

func (f SinkFuncs) OnFailed(err error) {
	if f.Failed != nil {
		f.Failed(err)
	}
}
