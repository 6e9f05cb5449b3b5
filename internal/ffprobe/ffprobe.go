// Package ffprobe reads the video stream properties used to interpret
// measurements: frame rate for timecodes, and dimensions and frame counts
// to catch mismatched pairs.
package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	rperrors "github.com/five82/rpcheck/internal/errors"
)

// DefaultPath is resolved through PATH.
const DefaultPath = "ffprobe"

// VideoInfo contains the first video stream's properties.
type VideoInfo struct {
	CodecName   string
	Width       int64
	Height      int64
	FrameRate   float64
	TotalFrames uint64
	Duration    float64
}

// SameDimensions reports whether both clips have the same frame size.
func (v *VideoInfo) SameDimensions(other *VideoInfo) bool {
	return v.Width == other.Width && v.Height == other.Height
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int64  `json:"width"`
	Height       int64  `json:"height"`
	NbFrames     string `json:"nb_frames"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// runFFprobe executes ffprobe and returns its JSON output.
func runFFprobe(ctx context.Context, ffprobePath, inputPath string) ([]byte, error) {
	if ffprobePath == "" {
		ffprobePath = DefaultPath
	}
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-select_streams", "v:0",
		"-show_format",
		"-show_streams",
		inputPath,
	)

	output, err := cmd.Output()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, rperrors.WrapStartError(ffprobePath, err)
		}
		return nil, fmt.Errorf("ffprobe failed on %s: %w", inputPath, err)
	}
	return output, nil
}

// Probe returns the properties of inputPath's first video stream.
func Probe(ctx context.Context, ffprobePath, inputPath string) (*VideoInfo, error) {
	data, err := runFFprobe(ctx, ffprobePath, inputPath)
	if err != nil {
		return nil, err
	}
	return parseOutput(data, inputPath)
}

func parseOutput(data []byte, inputPath string) (*VideoInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	var video *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			video = &probe.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, fmt.Errorf("no video stream found in %s", inputPath)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions in %s: %dx%d", inputPath, video.Width, video.Height)
	}

	info := &VideoInfo{
		CodecName: video.CodecName,
		Width:     video.Width,
		Height:    video.Height,
	}

	// r_frame_rate is the stream's base rate; avg_frame_rate is 0/0 for some containers.
	for _, rate := range []string{video.RFrameRate, video.AvgFrameRate} {
		if fps, err := ParseRate(rate); err == nil {
			info.FrameRate = fps
			break
		}
	}

	if video.NbFrames != "" {
		if frames, err := strconv.ParseUint(video.NbFrames, 10, 64); err == nil {
			info.TotalFrames = frames
		}
	}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	return info, nil
}

// ParseRate parses an ffprobe rational such as "24000/1001" or a plain number.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		den = "1"
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 || n <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", s)
	}
	return n / d, nil
}
