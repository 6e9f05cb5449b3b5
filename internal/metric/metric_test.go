package metric

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func mustLookup(t *testing.T, kind Kind) Backend {
	t.Helper()
	b, err := Lookup(kind)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", kind, err)
	}
	return b
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"vs-psnr", KindVSPSNR, false},
		{"FF-PSNR", KindFFPSNR, false},
		{" ff-ssim ", KindFFSSIM, false},
		{"vmaf", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownBackend) {
					t.Errorf("expected ErrUnknownBackend, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup(Kind("vmaf")); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}
	for _, k := range Kinds() {
		if b := mustLookup(t, k); b.Kind != k {
			t.Errorf("Lookup(%s).Kind = %s", k, b.Kind)
		}
	}
}

func TestVapourSynthProgress(t *testing.T) {
	b := mustLookup(t, KindVSPSNR)
	tests := []struct {
		line      string
		ok        bool
		processed int
		total     int
	}{
		{"Frame: 50/100", true, 50, 100},
		{"Frame: 0/2400", true, 0, 2400},
		{"Frame: 120/100", true, 120, 100},
		{"Output 100 frames in 3.2 seconds", false, 0, 0},
		{"120 34.567812", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p, ok := b.ClassifyProgress(tt.line)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && (p.Processed != tt.processed || p.Total != tt.total) {
				t.Errorf("got %+v, want {%d %d}", p, tt.processed, tt.total)
			}
		})
	}
}

func TestProgressPercentFloor(t *testing.T) {
	b := mustLookup(t, KindVSPSNR)
	cases := []struct {
		processed, total int
	}{
		{1, 3}, {2, 3}, {3, 3}, {7, 2400}, {2399, 2400}, {0, 1},
	}

	for _, c := range cases {
		line := fmt.Sprintf("Frame: %d/%d", c.processed, c.total)
		p, ok := b.ClassifyProgress(line)
		if !ok {
			t.Fatalf("%q not matched", line)
		}
		var tracker ProgressTracker
		u := tracker.Update(p)
		want := c.processed * 100 / c.total
		if !u.Emit || u.Percent != want {
			t.Errorf("%q: got %+v, want percent %d emitted", line, u, want)
		}
	}
}

func TestProgressLargeCounts(t *testing.T) {
	tests := []struct {
		p    Progress
		want int
	}{
		{Progress{Processed: math.MaxInt / 2, Total: math.MaxInt}, 49},
		{Progress{Processed: math.MaxInt, Total: math.MaxInt}, 100},
		{Progress{Processed: math.MaxInt / 100 * 3, Total: math.MaxInt / 100 * 4}, 75},
	}

	for _, tt := range tests {
		var tracker ProgressTracker
		if u := tracker.Update(tt.p); !u.Emit || u.Percent != tt.want {
			t.Errorf("Update(%+v) = %+v, want percent %d", tt.p, u, tt.want)
		}
	}
}

func TestProgressTracker(t *testing.T) {
	var tracker ProgressTracker

	if u := tracker.Update(Progress{Processed: 10, Total: 100}); !u.Emit || u.Percent != 10 {
		t.Fatalf("first update = %+v", u)
	}
	if u := tracker.Update(Progress{Processed: 10, Total: 100}); u.Emit {
		t.Error("repeated percent should not be emitted")
	}
	if u := tracker.Update(Progress{Processed: 105, Total: 1000}); u.Emit {
		t.Error("same floor percent (10) should not be emitted")
	}
	if u := tracker.Update(Progress{Processed: 120, Total: 100}); u.Emit || !u.Anomaly {
		t.Errorf("processed > total should be dropped as anomaly, got %+v", u)
	}
	if last, ok := tracker.Last(); !ok || last != 10 {
		t.Errorf("Last() = %d, %v; want 10 unchanged", last, ok)
	}
	if u := tracker.Update(Progress{Processed: 5}); u.Emit || !u.Anomaly {
		t.Errorf("unknown total should not emit, got %+v", u)
	}
	if u := tracker.Update(Progress{Processed: 100, Total: 100}); !u.Emit || u.Percent != 100 {
		t.Errorf("final update = %+v", u)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		line  string
		ok    bool
		frame int
		value float64
	}{
		{"vs pair", KindVSPSNR, "120 34.567812", true, 120, 34.567812},
		{"vs padded", KindVSPSNR, "  0\t48.25  ", true, 0, 48.25},
		{"vs exponent", KindVSPSNR, "7 1.5e1", true, 7, 15},
		{"vs no pair", KindVSPSNR, "Script evaluation done", false, 0, 0},
		{"vs single number", KindVSPSNR, "120", false, 0, 0},
		{"vs progress", KindVSPSNR, "Frame: 5/10", false, 0, 0},
		{"ff psnr stats", KindFFPSNR, "n:1 mse_avg:2.31 mse_y:3.02 mse_u:0.84 mse_v:0.91 psnr_avg:44.49 psnr_y:43.33 psnr_u:48.89 psnr_v:48.54", true, 1, 44.49},
		{"ff value first", KindFFPSNR, "psnr_avg:41.5 frame=12", true, 12, 41.5},
		{"ff structured frame", KindFFPSNR, "frame=42 psnr_avg=39.25", true, 42, 39.25},
		{"ff ssim stats", KindFFSSIM, "n:3 Y:0.991 U:0.995 V:0.994 All:0.992683 (21.352)", true, 3, 0.992683},
		{"ff ssim keyword", KindFFSSIM, "n:4 ssim_all:0.97", true, 4, 0.97},
		{"ff identical frames", KindFFPSNR, "n:9 mse_avg:0.00 psnr_avg:inf", true, 9, MaxPSNR},
		{"vs identical frames", KindVSPSNR, "12 inf", true, 12, MaxPSNR},
		{"ff negative infinity", KindFFPSNR, "n:9 psnr_avg:-inf", false, 0, 0},
		{"ff nan", KindFFPSNR, "n:9 psnr_avg:nan", false, 0, 0},
		{"ff no index", KindFFPSNR, "psnr_avg:40.1", false, 0, 0},
		{"ff progress", KindFFPSNR, "frame=  50 fps=0.0 q=-0.0 size=N/A", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := mustLookup(t, tt.kind).ParseValue(tt.line)
			if ok != tt.ok {
				t.Fatalf("ParseValue(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if ok && (s.Frame != tt.frame || s.Value != tt.value) {
				t.Errorf("ParseValue(%q) = %+v, want {%d %v}", tt.line, s, tt.frame, tt.value)
			}
		})
	}
}

func TestFFmpegTotalHeader(t *testing.T) {
	b := mustLookup(t, KindFFPSNR)
	tests := []struct {
		line  string
		ok    bool
		total int
	}{
		{"      NUMBER_OF_FRAMES: 100", true, 100},
		{"      NUMBER_OF_FRAMES-eng: 34046", true, 34046},
		{"      NUMBER_OF_FRAMES: 0", false, 0},
		{"      DURATION        : 00:23:40.002000000", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			total, ok := b.ClassifyTotal(tt.line)
			if ok != tt.ok || total != tt.total {
				t.Errorf("ClassifyTotal = %d, %v; want %d, %v", total, ok, tt.total, tt.ok)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	vs := mustLookup(t, KindVSPSNR)
	ff := mustLookup(t, KindFFSSIM)

	tests := []struct {
		name string
		b    Backend
		line string
		want Marker
	}{
		{"vs failed", vs, "Script evaluation failed:", MarkerFailure},
		{"vs error lowercase", vs, "python exception: error opening file", MarkerFailure},
		{"vs progress", vs, "Frame: 1/2", MarkerNone},
		{"ff summary", ff, "[Parsed_ssim_0 @ 0x55d0] SSIM Y:0.99 All:0.98 (17.2)", MarkerEndOfProgress},
		{"ff progress", ff, "frame=   10 fps=0.0", MarkerNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.ClassifyError(tt.line); got != tt.want {
				t.Errorf("ClassifyError(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestClassifyKnownFailure(t *testing.T) {
	vs := mustLookup(t, KindVSPSNR)

	sig, ok := vs.ClassifyKnownFailure("vapoursynth.Error: There is no attribute or namespace named lsmas; No attribute with the name lsmas exists")
	if !ok || sig.ID != "lsmas-missing" {
		t.Errorf("got %+v, %v; want lsmas-missing", sig, ok)
	}
	if sig.Hint == "" {
		t.Error("signature should carry a remediation hint")
	}
	if _, ok := vs.ClassifyKnownFailure("Frame: 1/10"); ok {
		t.Error("progress line should not match a signature")
	}

	ff := mustLookup(t, KindFFPSNR)
	if sig, ok := ff.ClassifyKnownFailure("[AVFilterGraph @ 0x1] No such filter: 'ssim'"); !ok || sig.ID != "ffmpeg-filter-missing" {
		t.Errorf("got %+v, %v; want ffmpeg-filter-missing", sig, ok)
	}
}

func TestClassifierVapourSynthFailureIsSticky(t *testing.T) {
	c := NewClassifier(mustLookup(t, KindVSPSNR))

	if cl := c.Classify("Frame: 10/100"); cl.Kind != LineProgress || cl.Progress.Total != 100 {
		t.Fatalf("expected progress, got %+v", cl)
	}
	if cl := c.Classify("5 40.1"); cl.Kind != LineValue {
		t.Fatalf("expected value, got %+v", cl)
	}
	if cl := c.Classify("Script evaluation FAILED:"); cl.Kind != LineFailure {
		t.Fatalf("expected failure, got %+v", cl)
	}
	if !c.InferredFailure() {
		t.Fatal("inferred failure should be set")
	}

	for _, line := range []string{"Frame: 20/100", "6 40.2", "Frame: 100/100"} {
		if cl := c.Classify(line); cl.Kind != LineIgnored {
			t.Errorf("%q after failure classified as %v, want ignored", line, cl.Kind)
		}
	}

	// The specific cause still surfaces after the generic failure line.
	if cl := c.Classify("No module named 'mvsfunc'"); cl.Kind != LineKnownFailure || cl.Signature.ID != "mvsfunc-missing" {
		t.Errorf("expected mvsfunc-missing signature, got %+v", cl)
	}
	if !c.InferredFailure() {
		t.Error("inferred failure must remain set")
	}
}

func TestClassifierKnownFailureSetsInferredFailure(t *testing.T) {
	c := NewClassifier(mustLookup(t, KindVSPSNR))
	if cl := c.Classify("There is no function named PlaneAverage"); cl.Kind != LineKnownFailure {
		t.Fatalf("expected known failure, got %+v", cl)
	}
	if !c.InferredFailure() {
		t.Error("known failure should set inferred failure")
	}
}

func TestClassifierFFmpegTranscript(t *testing.T) {
	c := NewClassifier(mustLookup(t, KindFFPSNR))

	// Progress before the header has no total.
	if cl := c.Classify("frame=    1 fps=0.0"); cl.Kind != LineProgress || cl.Progress.Total != 0 {
		t.Fatalf("expected progress with unknown total, got %+v", cl)
	}
	if cl := c.Classify("      NUMBER_OF_FRAMES: 100"); cl.Kind != LineTotal || cl.Progress.Total != 100 {
		t.Fatalf("expected total 100, got %+v", cl)
	}
	// The second input's header does not replace the first.
	if cl := c.Classify("      NUMBER_OF_FRAMES: 90"); cl.Kind != LineTotal || c.Total() != 100 {
		t.Fatalf("total should stay 100, got %d", c.Total())
	}
	if cl := c.Classify("frame=   50 fps= 25 q=-0.0 size=N/A time=00:00:02.00"); cl.Kind != LineProgress || cl.Progress != (Progress{Processed: 50, Total: 100}) {
		t.Fatalf("expected 50/100, got %+v", cl)
	}
	if cl := c.Classify("n:50 mse_avg:1.2 psnr_avg:47.3"); cl.Kind != LineValue || cl.Sample != (Sample{Frame: 50, Value: 47.3}) {
		t.Fatalf("expected sample, got %+v", cl)
	}
	if cl := c.Classify("n:120 mse_avg:1.2 psnr_avg:47.3"); cl.Kind != LineValue || cl.Anomaly == "" {
		t.Errorf("frame beyond total should be kept with an anomaly note, got %+v", cl)
	}
	if cl := c.Classify("n:51 psnr_avg:inf"); cl.Kind != LineValue || cl.Sample != (Sample{Frame: 51, Value: MaxPSNR}) {
		t.Errorf("identical frame should be recorded at the ceiling, got %+v", cl)
	}
	if cl := c.Classify("n:52 psnr_avg:nan"); cl.Kind != LineAnomaly {
		t.Errorf("nan value should be an anomaly, got %+v", cl)
	}
	if cl := c.Classify("[Parsed_psnr_0 @ 0x5581] PSNR y:43.1 u:48.0 v:47.9 average:44.5 min:40.2 max:inf"); cl.Kind != LineEndOfProgress {
		t.Fatalf("expected end of progress, got %+v", cl)
	}
	if c.InferredFailure() {
		t.Error("summary line must not infer failure")
	}
	if cl := c.Classify("frame=  100 fps= 25"); cl.Kind != LineIgnored {
		t.Errorf("progress after summary should be ignored, got %+v", cl)
	}
}

func TestBuildCommand(t *testing.T) {
	tools := Tools{FFmpegPath: "/opt/ffmpeg", WorkingDir: "/work", FFmpegExtraArgs: []string{"-threads", "4"}}

	t.Run("ffmpeg psnr", func(t *testing.T) {
		cmd, err := mustLookup(t, KindFFPSNR).BuildCommand(tools, "src.mkv", "enc.mkv", "")
		if err != nil {
			t.Fatalf("BuildCommand: %v", err)
		}
		want := `/opt/ffmpeg -hide_banner -nostdin -threads 4 -i enc.mkv -i src.mkv -lavfi [0:v][1:v]psnr=stats_file=- -f null -`
		if got := cmd.String(); got != want {
			t.Errorf("command = %q\nwant      %q", got, want)
		}
		if cmd.Dir != "/work" {
			t.Errorf("Dir = %q", cmd.Dir)
		}
	})

	t.Run("ffmpeg ssim missing input", func(t *testing.T) {
		if _, err := mustLookup(t, KindFFSSIM).BuildCommand(tools, "src.mkv", "", ""); err == nil {
			t.Error("expected error for missing secondary input")
		}
	})

	t.Run("vspipe", func(t *testing.T) {
		cmd, err := mustLookup(t, KindVSPSNR).BuildCommand(Tools{}, "src.mkv", "enc.mkv", "enc.mkv.vpy")
		if err != nil {
			t.Fatalf("BuildCommand: %v", err)
		}
		if cmd.Path != "vspipe" || len(cmd.Args) != 3 || cmd.Args[1] != "enc.mkv.vpy" {
			t.Errorf("unexpected command %q", cmd.String())
		}
	})

	t.Run("vspipe requires script", func(t *testing.T) {
		if _, err := mustLookup(t, KindVSPSNR).BuildCommand(Tools{}, "a", "b", ""); err == nil {
			t.Error("expected error without script path")
		}
	})
}
