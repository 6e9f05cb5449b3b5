// Package util provides utility functions for formatting and common operations.
package util

import (
	"fmt"
	"math"
)

// FormatDuration formats seconds as HH:MM:SS.
func FormatDuration(seconds float64) string {
	if seconds < 0 || seconds != seconds { // NaN check
		return "??:??:??"
	}

	totalSecs := int64(seconds)
	hours := totalSecs / 3600
	minutes := (totalSecs % 3600) / 60
	secs := totalSecs % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
}

// FormatTimecode formats seconds as HH:MM:SS.mmm.
func FormatTimecode(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "??:??:??.???"
	}

	totalMillis := int64(math.Round(seconds * 1000))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

// FrameToTimecode converts a frame index to a timecode at the given frame rate.
func FrameToTimecode(frame int, fps float64) string {
	if fps <= 0 {
		return "??:??:??.???"
	}
	return FormatTimecode(float64(frame) / fps)
}

// FormatMetric formats a metric value with four decimal places.
func FormatMetric(value float64) string {
	return fmt.Sprintf("%.4f", value)
}
