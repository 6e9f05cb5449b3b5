// Package metric defines the measurement backends: how each external tool is
// invoked and how its output lines are classified into progress updates,
// metric samples, and failure markers.
package metric

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBackend indicates a backend name that is not registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Kind identifies a measurement backend.
type Kind string

const (
	// KindVSPSNR measures PSNR through a vspipe-driven VapourSynth script.
	KindVSPSNR Kind = "vs-psnr"
	// KindFFPSNR measures PSNR with the FFmpeg psnr filter.
	KindFFPSNR Kind = "ff-psnr"
	// KindFFSSIM measures SSIM with the FFmpeg ssim filter.
	KindFFSSIM Kind = "ff-ssim"
)

// Kinds returns every registered backend kind in display order.
func Kinds() []Kind {
	return []Kind{KindVSPSNR, KindFFPSNR, KindFFSSIM}
}

// ParseKind parses a backend name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: '%s', valid options: vs-psnr, ff-psnr, ff-ssim", ErrUnknownBackend, s)
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Sample is one frame-index/metric-value pair reported by a backend.
type Sample struct {
	Frame int     `json:"frame"`
	Value float64 `json:"value"`
}
