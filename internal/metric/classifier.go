package metric

import "fmt"

// LineKind is the outcome of classifying one output line.
type LineKind int

const (
	LineIgnored LineKind = iota
	LineKnownFailure
	LineFailure
	LineEndOfProgress
	LineProgress
	LineTotal
	LineValue
	// LineAnomaly is a line that looked like data but could not be used.
	LineAnomaly
)

// String returns a short label for logs.
func (k LineKind) String() string {
	switch k {
	case LineKnownFailure:
		return "known-failure"
	case LineFailure:
		return "failure"
	case LineEndOfProgress:
		return "end-of-progress"
	case LineProgress:
		return "progress"
	case LineTotal:
		return "total"
	case LineValue:
		return "value"
	case LineAnomaly:
		return "anomaly"
	default:
		return "ignored"
	}
}

// Classification describes one classified line.
type Classification struct {
	Kind      LineKind
	Progress  Progress
	Sample    Sample
	Signature Signature
	// Anomaly describes a dropped or suspicious line. It may be set on a
	// LineValue when the sample was kept but is out of range.
	Anomaly string
}

// Classifier holds the per-job parse state for one backend: the cached total
// frame count and the flags that stop progress or value parsing. A
// Classifier must not be reused across jobs.
type Classifier struct {
	backend         Backend
	total           int
	inferredFailure bool
	progressClosed  bool
}

// NewClassifier returns fresh per-job state for backend.
func NewClassifier(backend Backend) *Classifier {
	return &Classifier{backend: backend}
}

// Backend returns the backend this classifier was built for.
func (c *Classifier) Backend() Backend {
	return c.backend
}

// InferredFailure reports whether a failure marker or known signature was seen.
func (c *Classifier) InferredFailure() bool {
	return c.inferredFailure
}

// Total returns the total frame count captured so far, or zero.
func (c *Classifier) Total() int {
	return c.total
}

// Classify checks, in order: known failure signature, error or terminal
// marker, progress, total frame header, data value. Signatures are matched
// even after a failure was inferred since tools often print the specific
// cause after the generic failure line.
func (c *Classifier) Classify(line string) Classification {
	if sig, ok := c.backend.ClassifyKnownFailure(line); ok {
		c.inferredFailure = true
		return Classification{Kind: LineKnownFailure, Signature: sig}
	}
	if c.inferredFailure {
		return Classification{Kind: LineIgnored}
	}

	switch c.backend.ClassifyError(line) {
	case MarkerFailure:
		c.inferredFailure = true
		return Classification{Kind: LineFailure}
	case MarkerEndOfProgress:
		c.progressClosed = true
		return Classification{Kind: LineEndOfProgress}
	}

	if p, ok := c.backend.ClassifyProgress(line); ok {
		if c.progressClosed {
			return Classification{Kind: LineIgnored}
		}
		if p.Total > 0 {
			if c.total == 0 {
				c.total = p.Total
			}
		} else {
			p.Total = c.total
		}
		return Classification{Kind: LineProgress, Progress: p}
	}

	if total, ok := c.backend.ClassifyTotal(line); ok {
		if c.total == 0 {
			c.total = total
		}
		return Classification{Kind: LineTotal, Progress: Progress{Total: c.total}}
	}

	sample, status := c.backend.sample(line)
	switch status {
	case valueOK:
		cl := Classification{Kind: LineValue, Sample: sample}
		if c.total > 0 && sample.Frame > c.total {
			cl.Anomaly = fmt.Sprintf("frame %d beyond total %d", sample.Frame, c.total)
		}
		return cl
	case valueMalformed:
		return Classification{Kind: LineAnomaly, Anomaly: fmt.Sprintf("unusable %s value", c.backend.ValueName)}
	}

	return Classification{Kind: LineIgnored}
}
