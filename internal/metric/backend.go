package metric

import (
	"fmt"

	"github.com/five82/rpcheck/internal/process"
)

// Tools holds the executables and shared arguments used to build commands.
type Tools struct {
	FFmpegPath      string
	VSPipePath      string
	WorkingDir      string
	FFmpegExtraArgs []string
}

// Backend is the function set for one measurement tool, selected once per job.
type Backend struct {
	Kind  Kind
	Title string
	// ValueName is the metric label shown to users, e.g. "PSNR".
	ValueName        string
	Unit             string
	DefaultThreshold float64
	// IdenticalValue is recorded for frames the tool scores as infinite,
	// which only happens when both frames are bit-identical.
	IdenticalValue float64
	// NeedsScript is set when the tool consumes a generated script artifact.
	NeedsScript bool
	Signatures  []Signature

	classifyProgress func(line string) (Progress, bool)
	classifyMarker   func(line string) Marker
	classifyTotal    func(line string) (int, bool)
	parseValue       func(line string) (Sample, valueStatus)
	buildCommand     func(t Tools, primary, secondary, script string) (process.Command, error)
}

// MaxPSNR is the PSNR recorded for identical frames, in dB.
const MaxPSNR = 100.0

var backends = map[Kind]Backend{
	KindVSPSNR: {
		Kind:             KindVSPSNR,
		Title:            "VapourSynth PSNR",
		ValueName:        "PSNR",
		Unit:             "dB",
		DefaultThreshold: 30,
		IdenticalValue:   MaxPSNR,
		NeedsScript:      true,
		Signatures:       vapourSynthSignatures,
		classifyProgress: vsClassifyProgress,
		classifyMarker:   vsClassifyMarker,
		classifyTotal:    vsClassifyTotal,
		parseValue:       vsParseValue,
		buildCommand:     buildVSPipeCommand,
	},
	KindFFPSNR: {
		Kind:             KindFFPSNR,
		Title:            "FFmpeg PSNR",
		ValueName:        "PSNR",
		Unit:             "dB",
		DefaultThreshold: 30,
		IdenticalValue:   MaxPSNR,
		Signatures:       ffmpegSignatures,
		classifyProgress: ffClassifyProgress,
		classifyMarker:   ffClassifyMarker,
		classifyTotal:    ffClassifyTotal,
		parseValue:       ffParseValue,
		buildCommand:     ffmpegCommandBuilder("psnr"),
	},
	KindFFSSIM: {
		Kind:             KindFFSSIM,
		Title:            "FFmpeg SSIM",
		ValueName:        "SSIM",
		DefaultThreshold: 0.95,
		IdenticalValue:   1,
		Signatures:       ffmpegSignatures,
		classifyProgress: ffClassifyProgress,
		classifyMarker:   ffClassifyMarker,
		classifyTotal:    ffClassifyTotal,
		parseValue:       ffParseValue,
		buildCommand:     ffmpegCommandBuilder("ssim"),
	},
}

// Lookup returns the backend registered for kind.
func Lookup(kind Kind) (Backend, error) {
	b, ok := backends[kind]
	if !ok {
		return Backend{}, fmt.Errorf("%w: '%s'", ErrUnknownBackend, kind)
	}
	return b, nil
}

// ClassifyProgress matches a progress line. Total is zero when the line
// itself does not carry the total frame count.
func (b Backend) ClassifyProgress(line string) (Progress, bool) {
	return b.classifyProgress(line)
}

// ClassifyError reports the backend's error or terminal marker for line.
func (b Backend) ClassifyError(line string) Marker {
	return b.classifyMarker(line)
}

// ClassifyTotal matches a one-time total frame count header.
func (b Backend) ClassifyTotal(line string) (int, bool) {
	return b.classifyTotal(line)
}

// ClassifyKnownFailure matches line against the backend's signature table.
func (b Backend) ClassifyKnownFailure(line string) (Signature, bool) {
	return MatchSignature(b.Signatures, line)
}

// ParseValue extracts a sample from a data line. Lines whose number is
// missing or malformed yield false. An infinite score is recorded as
// IdenticalValue.
func (b Backend) ParseValue(line string) (Sample, bool) {
	s, status := b.sample(line)
	return s, status == valueOK
}

func (b Backend) sample(line string) (Sample, valueStatus) {
	s, status := b.parseValue(line)
	if status == valueIdentical {
		s.Value = b.IdenticalValue
		status = valueOK
	}
	return s, status
}

// BuildCommand returns the tool invocation comparing primary against secondary.
// script is required by backends with NeedsScript and ignored otherwise.
func (b Backend) BuildCommand(t Tools, primary, secondary, script string) (process.Command, error) {
	if b.NeedsScript && script == "" {
		return process.Command{}, fmt.Errorf("%s requires a script path", b.Kind)
	}
	return b.buildCommand(t, primary, secondary, script)
}

func buildVSPipeCommand(t Tools, _, _, script string) (process.Command, error) {
	exe := t.VSPipePath
	if exe == "" {
		exe = "vspipe"
	}
	// -p prints "Frame: P/T" progress; "." discards the frame output.
	return process.Command{
		Path: exe,
		Args: []string{"-p", script, "."},
		Dir:  t.WorkingDir,
	}, nil
}

func ffmpegCommandBuilder(filter string) func(Tools, string, string, string) (process.Command, error) {
	return func(t Tools, primary, secondary, _ string) (process.Command, error) {
		if primary == "" || secondary == "" {
			return process.Command{}, fmt.Errorf("%s requires two input files", filter)
		}
		exe := t.FFmpegPath
		if exe == "" {
			exe = "ffmpeg"
		}

		args := []string{"-hide_banner", "-nostdin"}
		args = append(args, t.FFmpegExtraArgs...)
		args = append(args,
			"-i", secondary,
			"-i", primary,
			"-lavfi", fmt.Sprintf("[0:v][1:v]%s=stats_file=-", filter),
			"-f", "null", "-",
		)
		return process.Command{Path: exe, Args: args, Dir: t.WorkingDir}, nil
	}
}
