package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/logging"
	"github.com/five82/rpcheck/internal/metric"
	"github.com/five82/rpcheck/internal/result"
)

const (
	fakeToolEnv   = "RPCHECK_FAKE_TOOL"
	fakeMarkerEnv = "RPCHECK_FAKE_MARKER"
	floodLines    = 400
)

// TestMain lets the test binary stand in for ffmpeg or vspipe. When the
// fake tool variable is set the binary prints a canned transcript and exits
// without running any tests.
func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeToolEnv); mode != "" {
		os.Exit(runFakeTool(mode))
	}
	os.Exit(m.Run())
}

func runFakeTool(mode string) int {
	out, errOut := os.Stdout, os.Stderr
	switch mode {
	case "ffmpeg-transcript":
		fmt.Fprintln(errOut, "Input #0, matroska,webm, from 'enc.mkv':")
		fmt.Fprintln(errOut, "      NUMBER_OF_FRAMES: 100")
		fmt.Fprintln(errOut, "frame=   50 fps= 25 q=-0.0 size=N/A time=00:00:02.00 bitrate=N/A speed=1x")
		fmt.Fprintln(out, "n:50 mse_avg:1.52 psnr_avg:46.31")
		fmt.Fprint(errOut, "frame=  100 fps= 25 q=-0.0 size=N/A time=00:00:04.00 bitrate=N/A speed=1x\r")
		fmt.Fprintln(out, "n:100 mse_avg:2.01 psnr_avg:45.10")
		fmt.Fprintln(errOut, "")
		fmt.Fprintln(errOut, "[Parsed_psnr_0 @ 0x5581] PSNR y:45.0 u:48.1 v:48.0 average:45.7 min:45.1 max:46.3")
		return 0
	case "vs-progress":
		for i := 1; i <= 4; i++ {
			fmt.Fprintf(out, "%d %d.25\n", i, 40-i)
		}
		for _, p := range []int{1, 1, 2, 5, 4} {
			fmt.Fprintf(errOut, "Frame: %d/4\n", p)
		}
		return 0
	case "vs-known-failure":
		fmt.Fprintln(out, "0 41.0")
		fmt.Fprintln(errOut, "Script evaluation failed:")
		for i := 0; i < 10; i++ {
			fmt.Fprintln(errOut, "vapoursynth.Error: No attribute with the name lsmas exists. Did you mistype a plugin namespace?")
		}
		fmt.Fprintln(errOut, "Frame: 1/1")
		return 1
	case "exit-nonzero":
		fmt.Fprintln(out, "n:1 psnr_avg:33.0")
		return 2
	case "flood-exit":
		for i := 0; i < floodLines; i++ {
			fmt.Fprintf(out, "n:%d mse_avg:1.00 psnr_avg:%d.5\n", i, 30+i%10)
		}
		if marker := os.Getenv(fakeMarkerEnv); marker != "" {
			_ = os.WriteFile(marker, nil, 0o644)
		}
		return 0
	case "sleep":
		for i := 0; i < 3; i++ {
			fmt.Fprintf(out, "n:%d psnr_avg:%d.5\n", i, 30+i)
		}
		time.Sleep(time.Minute)
		return 0
	}
	return 64
}

func fakeTools(t *testing.T, mode string) metric.Tools {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("cannot locate test binary: %v", err)
	}
	t.Setenv(fakeToolEnv, mode)
	return metric.Tools{FFmpegPath: exe, VSPipePath: exe}
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Enabled: false})
}

// recordingSink captures every event in delivery order.
type recordingSink struct {
	mu        sync.Mutex
	events    []string
	percents  []int
	samples   []metric.Sample
	failures  []metric.Signature
	completed *result.Result
	aborted   *result.Result
	failed    error
	sampleCh  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sampleCh: make(chan struct{}, 64)}
}

func (s *recordingSink) OnProgress(ev ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "progress")
	if ev.HasPercent {
		s.percents = append(s.percents, ev.Percent)
	}
}

func (s *recordingSink) OnSample(sample metric.Sample) {
	s.mu.Lock()
	s.events = append(s.events, "sample")
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
	s.sampleCh <- struct{}{}
}

func (s *recordingSink) OnKnownFailure(sig metric.Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "known-failure")
	s.failures = append(s.failures, sig)
}

func (s *recordingSink) OnComplete(r *result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "complete")
	s.completed = r
}

func (s *recordingSink) OnAborted(r *result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "aborted")
	s.aborted = r
}

func (s *recordingSink) OnFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "failed")
	s.failed = err
}

func (s *recordingSink) waitSamples(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.sampleCh:
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for sample %d", i+1)
		}
	}
}

func TestRunFFmpegTranscript(t *testing.T) {
	p := New(fakeTools(t, "ffmpeg-transcript"), WithLogger(quietLogger()))
	sink := newRecordingSink()

	r, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindFFPSNR, ""), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if r.Outcome != result.OutcomeCompleted || r.ExitCode != 0 {
		t.Errorf("outcome = %s, exit = %d; want completed, 0", r.Outcome, r.ExitCode)
	}
	if p.State() != StateCompleted {
		t.Errorf("State() = %v, want completed", p.State())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if fmt.Sprint(sink.percents) != "[50 100]" {
		t.Errorf("percents = %v, want [50 100]", sink.percents)
	}
	if len(sink.samples) != 2 {
		t.Errorf("got %d samples, want 2", len(sink.samples))
	}
	if sink.completed != r {
		t.Error("OnComplete should receive the returned result")
	}
	if last := sink.events[len(sink.events)-1]; last != "complete" {
		t.Errorf("last event = %q, want complete", last)
	}
	// Worst first.
	if len(r.Samples) != 2 || r.Samples[0] != (metric.Sample{Frame: 100, Value: 45.10}) {
		t.Errorf("result samples = %+v", r.Samples)
	}
	if r.InferredFailure() {
		t.Error("summary line must not mark the job as failed")
	}
	if len(r.Log.Lines) < 7 {
		t.Errorf("log should hold every line, got %d", len(r.Log.Lines))
	}
}

func TestRunVapourSynthProgressDedupAndAnomaly(t *testing.T) {
	p := New(fakeTools(t, "vs-progress"), WithLogger(quietLogger()))
	sink := newRecordingSink()

	r, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindVSPSNR, "enc.mkv.vpy"), sink)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	// 1/4 repeats, 5/4 is dropped.
	if fmt.Sprint(sink.percents) != "[25 50 100]" {
		t.Errorf("percents = %v, want [25 50 100]", sink.percents)
	}
	if len(r.Samples) != 4 || r.Samples[0].Frame != 4 {
		t.Errorf("samples = %+v", r.Samples)
	}
}

func TestRunKnownFailureNotifiesOncePerJob(t *testing.T) {
	tools := fakeTools(t, "vs-known-failure")
	p := New(tools, WithLogger(quietLogger()))

	for job := 0; job < 2; job++ {
		sink := newRecordingSink()
		r, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindVSPSNR, "enc.mkv.vpy"), sink)
		if err != nil {
			t.Fatalf("job %d: Run: %v", job, err)
		}

		sink.mu.Lock()
		if len(sink.failures) != 1 || sink.failures[0].ID != "lsmas-missing" {
			t.Errorf("job %d: failures = %+v, want one lsmas-missing", job, sink.failures)
		}
		if len(sink.percents) != 0 {
			t.Errorf("job %d: progress after failure should be ignored, got %v", job, sink.percents)
		}
		sink.mu.Unlock()

		if !r.InferredFailure() {
			t.Errorf("job %d: inferred failure not set", job)
		}
		// Result is still produced with the sample gathered before the failure.
		if r.Outcome != result.OutcomeCompleted || r.ExitCode != 1 {
			t.Errorf("job %d: outcome = %s, exit = %d", job, r.Outcome, r.ExitCode)
		}
		if len(r.Samples) > 1 {
			t.Errorf("job %d: unexpected samples %+v", job, r.Samples)
		}
	}
}

func TestRunNonzeroExitCompletes(t *testing.T) {
	p := New(fakeTools(t, "exit-nonzero"), WithLogger(quietLogger()))

	r, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindFFPSNR, ""), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.Outcome != result.OutcomeCompleted || r.ExitCode != 2 {
		t.Errorf("outcome = %s, exit = %d", r.Outcome, r.ExitCode)
	}
	if !rperrors.IsKind(r.RuntimeError(), rperrors.KindRuntime) {
		t.Errorf("expected runtime error, got %v", r.RuntimeError())
	}
	if len(r.Samples) != 1 {
		t.Errorf("buffered output lost on nonzero exit: %+v", r.Samples)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	p := New(metric.Tools{FFmpegPath: "rpcheck-definitely-not-installed"}, WithLogger(quietLogger()))
	sink := newRecordingSink()

	r, err := p.Run(result.NewJobSpec("a.mkv", "b.mkv", metric.KindFFSSIM, ""), sink)
	if r != nil {
		t.Error("spawn failure should produce no result")
	}
	if !rperrors.IsSpawn(err) || !rperrors.IsNotFound(err) {
		t.Fatalf("expected not-found spawn failure, got %v", err)
	}
	if p.State() != StateFailed {
		t.Errorf("State() = %v, want failed", p.State())
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.failed == nil || len(sink.events) != 1 {
		t.Errorf("expected a single OnFailed event, got %v", sink.events)
	}
}

func TestRunInvalidJob(t *testing.T) {
	p := New(metric.Tools{}, WithLogger(quietLogger()))

	if _, err := p.Run(result.NewJobSpec("a.mkv", "b.mkv", metric.Kind("vmaf"), ""), nil); !rperrors.IsKind(err, rperrors.KindConfig) {
		t.Errorf("unknown backend: expected config error, got %v", err)
	}
	if _, err := p.Run(result.NewJobSpec("a.mkv", "b.mkv", metric.KindVSPSNR, ""), nil); !rperrors.IsKind(err, rperrors.KindConfig) {
		t.Errorf("missing script: expected config error, got %v", err)
	}
}

func TestAbortKeepsPartialResultAndBusy(t *testing.T) {
	p := New(fakeTools(t, "sleep"), WithLogger(quietLogger()))
	sink := newRecordingSink()

	type runResult struct {
		r   *result.Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		r, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindFFPSNR, ""), sink)
		done <- runResult{r, err}
	}()

	sink.waitSamples(t, 3)

	if _, err := p.Run(result.NewJobSpec("x.mkv", "y.mkv", metric.KindFFPSNR, ""), nil); !rperrors.IsBusy(err) {
		t.Errorf("second Run: expected busy error, got %v", err)
	}

	p.Abort()
	p.Abort()

	var rr runResult
	select {
	case rr = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after Abort")
	}
	if rr.err != nil {
		t.Fatalf("Run: %v", rr.err)
	}
	if rr.r.Outcome != result.OutcomeAborted {
		t.Errorf("outcome = %s, want aborted", rr.r.Outcome)
	}
	if len(rr.r.Samples) != 3 || rr.r.Samples[0].Frame != 0 {
		t.Errorf("partial samples = %+v", rr.r.Samples)
	}
	if p.State() != StateAborted {
		t.Errorf("State() = %v, want aborted", p.State())
	}

	sink.mu.Lock()
	if sink.aborted != rr.r || sink.completed != nil {
		t.Error("expected OnAborted with the partial result and no OnComplete")
	}
	sink.mu.Unlock()

	// Abort with nothing running is a no-op.
	p.Abort()
}

func TestRunContextCancelledBeforeStart(t *testing.T) {
	p := New(fakeTools(t, "sleep"), WithLogger(quietLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	type runResult struct {
		r   *result.Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		r, err := p.RunContext(ctx, result.NewJobSpec("src.mkv", "enc.mkv", metric.KindFFPSNR, ""), nil)
		done <- runResult{r, err}
	}()

	var rr runResult
	select {
	case rr = <-done:
	case <-time.After(10 * time.Second):
		p.Abort()
		t.Fatal("RunContext ignored a context cancelled before the tool started")
	}
	if rr.err != nil {
		t.Fatalf("RunContext: %v", rr.err)
	}
	if rr.r.Outcome != result.OutcomeAborted || p.State() != StateAborted {
		t.Errorf("outcome = %s, state = %v; want aborted", rr.r.Outcome, p.State())
	}

	// A later job on the same pipeline is not affected by the old context.
	tools := fakeTools(t, "ffmpeg-transcript")
	p.tools = tools
	r, err := p.RunContext(context.Background(), result.NewJobSpec("src.mkv", "enc.mkv", metric.KindFFPSNR, ""), nil)
	if err != nil || r.Outcome != result.OutcomeCompleted {
		t.Errorf("next run = %v, %v; want completed", r, err)
	}
}

func TestAbortAfterExitKeepsBufferedSamples(t *testing.T) {
	tools := fakeTools(t, "flood-exit")
	marker := filepath.Join(t.TempDir(), "exited")
	t.Setenv(fakeMarkerEnv, marker)

	// The first event blocks, so the run loop stalls with output still queued.
	release := make(chan struct{})
	var once sync.Once
	exec := func(fn func()) {
		once.Do(func() { <-release })
		fn()
	}

	p := New(tools, WithExecutor(exec), WithLogger(quietLogger()))
	sink := newRecordingSink()
	sink.sampleCh = make(chan struct{}, floodLines)

	type runResult struct {
		r   *result.Result
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		r, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindFFPSNR, ""), sink)
		done <- runResult{r, err}
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(marker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			close(release)
			t.Fatal("fake tool never finished writing")
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	p.Abort()
	close(release)

	var rr runResult
	select {
	case rr = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if rr.err != nil {
		t.Fatalf("Run: %v", rr.err)
	}
	if rr.r.Outcome != result.OutcomeCompleted || rr.r.ExitCode != 0 {
		t.Errorf("outcome = %s, exit = %d; want completed, 0", rr.r.Outcome, rr.r.ExitCode)
	}
	if len(rr.r.Samples) != floodLines {
		t.Errorf("got %d samples, want %d (log holds %d lines)", len(rr.r.Samples), floodLines, len(rr.r.Log.Lines))
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.samples) != floodLines || sink.completed != rr.r {
		t.Errorf("sink saw %d samples, completed = %v", len(sink.samples), sink.completed != nil)
	}
}

func TestWithExecutorPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var calls int
	exec := func(fn func()) {
		mu.Lock()
		calls++
		mu.Unlock()
		fn()
	}

	p := New(fakeTools(t, "vs-progress"), WithExecutor(exec), WithLogger(quietLogger()))
	sink := newRecordingSink()
	if _, err := p.Run(result.NewJobSpec("src.mkv", "enc.mkv", metric.KindVSPSNR, "s.vpy"), sink); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	mu.Lock()
	defer mu.Unlock()
	if calls != len(sink.events) {
		t.Errorf("executor saw %d calls, sink saw %d events", calls, len(sink.events))
	}
	// Samples arrive in the order the tool printed them.
	for i, s := range sink.samples {
		if s.Frame != i+1 {
			t.Errorf("sample %d has frame %d", i, s.Frame)
		}
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle: "idle", StateRunning: "running", StateCompleted: "completed",
		StateAborted: "aborted", StateFailed: "failed",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
