package metric

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Marker is a line that changes how the rest of a job's output is read.
type Marker int

const (
	MarkerNone Marker = iota
	// MarkerFailure means the tool reported a fatal error; later output is noise.
	MarkerFailure
	// MarkerEndOfProgress means the tool printed its final summary; no more
	// progress lines are expected.
	MarkerEndOfProgress
)

// valueStatus distinguishes "not a value line" from "a value line whose
// number could not be used".
type valueStatus int

const (
	valueNone valueStatus = iota
	valueOK
	valueMalformed
	// valueIdentical is a positive infinity, printed for bit-identical frames.
	valueIdentical
)

const floatPattern = `[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`

var (
	vsProgressRe = regexp.MustCompile(`Frame:\s*(\d+)\s*/\s*(\d+)`)
	vsFailureRe  = regexp.MustCompile(`(?i)failed|error`)
	vsValueRe    = regexp.MustCompile(`^\s*(\d+)\s+(` + floatPattern + `|(?i:inf))\s*$`)

	ffTotalRe    = regexp.MustCompile(`NUMBER_OF_FRAMES(?:-[A-Za-z]+)?\s*:\s*(\d+)`)
	ffProgressRe = regexp.MustCompile(`frame=\s*(\d+)`)
	ffIndexRe    = regexp.MustCompile(`(?:^|\s)(?:n|frame)\s*[:=]\s*(\d+)`)
	ffValueRe    = regexp.MustCompile(`(?:^|\s)(?:psnr_avg|ssim_all|All)\s*[:=]\s*([^\s(]+)`)
)

const ffSummaryPrefix = "[Parsed_"

// VapourSynth grammar. vspipe prints "Frame: P/T" progress on stderr and the
// script prints "<frame> <value>" pairs on stdout.

func vsClassifyProgress(line string) (Progress, bool) {
	m := vsProgressRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	processed, err1 := strconv.Atoi(m[1])
	total, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return Progress{}, false
	}
	return Progress{Processed: processed, Total: total}, true
}

func vsClassifyMarker(line string) Marker {
	if vsFailureRe.MatchString(line) {
		return MarkerFailure
	}
	return MarkerNone
}

func vsClassifyTotal(string) (int, bool) {
	return 0, false
}

func vsParseValue(line string) (Sample, valueStatus) {
	m := vsValueRe.FindStringSubmatch(line)
	if m == nil {
		return Sample{}, valueNone
	}
	frame, err := strconv.Atoi(m[1])
	if err != nil {
		return Sample{}, valueMalformed
	}
	return finiteSample(frame, m[2])
}

// FFmpeg grammar. The total frame count comes from a container tag printed
// once in the input header; progress is the redrawn "frame=" status line;
// per-frame values come from the filter's stats_file output.

func ffClassifyProgress(line string) (Progress, bool) {
	// A stats line may carry "frame=N" too; it is a value, not progress.
	if ffValueRe.MatchString(line) {
		return Progress{}, false
	}
	m := ffProgressRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	processed, err := strconv.Atoi(m[1])
	if err != nil {
		return Progress{}, false
	}
	return Progress{Processed: processed}, true
}

func ffClassifyMarker(line string) Marker {
	if strings.HasPrefix(strings.TrimSpace(line), ffSummaryPrefix) {
		return MarkerEndOfProgress
	}
	return MarkerNone
}

func ffClassifyTotal(line string) (int, bool) {
	m := ffTotalRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	total, err := strconv.Atoi(m[1])
	if err != nil || total <= 0 {
		return 0, false
	}
	return total, true
}

// ffParseValue uses one permissive keyword extraction for both PSNR and SSIM
// stats lines. The frame index and value tokens may appear in either order.
func ffParseValue(line string) (Sample, valueStatus) {
	vm := ffValueRe.FindStringSubmatch(line)
	if vm == nil {
		return Sample{}, valueNone
	}
	im := ffIndexRe.FindStringSubmatch(line)
	if im == nil {
		return Sample{}, valueMalformed
	}
	frame, err := strconv.Atoi(im[1])
	if err != nil {
		return Sample{}, valueMalformed
	}
	return finiteSample(frame, vm[1])
}

func finiteSample(frame int, token string) (Sample, valueStatus) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsInf(v, -1) || math.IsNaN(v) {
		return Sample{}, valueMalformed
	}
	if math.IsInf(v, 1) {
		return Sample{Frame: frame}, valueIdentical
	}
	return Sample{Frame: frame, Value: v}, valueOK
}
