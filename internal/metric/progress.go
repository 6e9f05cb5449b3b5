package metric

import "math/bits"

// Progress is a processed/total frame count parsed from a progress line.
// Total is zero while the total frame count is still unknown.
type Progress struct {
	Processed int
	Total     int
}

// ProgressUpdate is the outcome of feeding one Progress into a ProgressTracker.
type ProgressUpdate struct {
	Percent int
	Emit    bool
	// Anomaly is set when processed exceeds total or total is not positive.
	Anomaly bool
}

// ProgressTracker converts frame counts into de-duplicated whole percentages.
type ProgressTracker struct {
	last    int
	hasLast bool
}

// Update computes floor(processed*100/total). The percent is emitted only when
// it differs from the previously emitted one; counts beyond the total are
// dropped as anomalies and leave the last percent unchanged.
func (t *ProgressTracker) Update(p Progress) ProgressUpdate {
	if p.Total <= 0 || p.Processed < 0 || p.Processed > p.Total {
		return ProgressUpdate{Anomaly: true}
	}

	// 128-bit product; the quotient is at most 100 since processed <= total.
	hi, lo := bits.Mul64(uint64(p.Processed), 100)
	q, _ := bits.Div64(hi, lo, uint64(p.Total))
	percent := int(q)
	if t.hasLast && percent == t.last {
		return ProgressUpdate{Percent: percent}
	}

	t.last = percent
	t.hasLast = true
	return ProgressUpdate{Percent: percent, Emit: true}
}

// Last returns the last emitted percent.
func (t *ProgressTracker) Last() (int, bool) {
	return t.last, t.hasLast
}
