package metric

import "strings"

// Signature is a known misconfiguration message and the hint shown to the user.
type Signature struct {
	ID      string
	Pattern string
	Hint    string
}

var vapourSynthSignatures = []Signature{
	{
		ID:      "lsmas-missing",
		Pattern: "No attribute with the name lsmas exists",
		Hint:    "The L-SMASH Works source filter is not installed; place it in the VapourSynth plugins directory",
	},
	{
		ID:      "mvsfunc-missing",
		Pattern: "No module named 'mvsfunc'",
		Hint:    "The mvsfunc module is not installed; place it in Python's Lib/site-packages",
	},
	{
		ID:      "mvsfunc-outdated",
		Pattern: "There is no function named PlaneAverage",
		Hint:    "The installed mvsfunc is too old; upgrade it to r6 or newer",
	},
	{
		ID:      "muvsfunc-missing",
		Pattern: "No module named 'muvsfunc'",
		Hint:    "The muvsfunc module is not installed; place it in Python's Lib/site-packages",
	},
}

var ffmpegSignatures = []Signature{
	{
		ID:      "ffmpeg-filter-missing",
		Pattern: "No such filter",
		Hint:    "This FFmpeg build does not include the psnr/ssim filters; install a full FFmpeg build",
	},
	{
		ID:      "ffmpeg-size-mismatch",
		Pattern: "Width and height of input videos must be same",
		Hint:    "The two clips have different resolutions; crop or scale them to match before comparing",
	},
	{
		ID:      "ffmpeg-input-missing",
		Pattern: "No such file or directory",
		Hint:    "An input clip could not be opened; check that both paths exist",
	},
}

// MatchSignature returns the first signature whose pattern occurs in line.
func MatchSignature(signatures []Signature, line string) (Signature, bool) {
	for _, sig := range signatures {
		if strings.Contains(line, sig.Pattern) {
			return sig, true
		}
	}
	return Signature{}, false
}
