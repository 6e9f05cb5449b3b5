package result

import "github.com/five82/rpcheck/internal/metric"

// Summary condenses a Result's samples against a threshold.
type Summary struct {
	Count      int
	Min        float64
	Max        float64
	Mean       float64
	Threshold  float64
	BelowCount int
	// Worst holds up to the requested number of lowest-valued samples.
	Worst []metric.Sample
}

// Summarize computes statistics over r's samples. Samples are already sorted
// worst first, so Worst is a prefix of them.
func (r *Result) Summarize(threshold float64, worst int) Summary {
	s := Summary{Count: len(r.Samples), Threshold: threshold}
	if s.Count == 0 {
		return s
	}

	s.Min = r.Samples[0].Value
	s.Max = r.Samples[0].Value
	var sum float64
	for _, sample := range r.Samples {
		sum += sample.Value
		if sample.Value < s.Min {
			s.Min = sample.Value
		}
		if sample.Value > s.Max {
			s.Max = sample.Value
		}
		if sample.Value < threshold {
			s.BelowCount++
		}
	}
	s.Mean = sum / float64(s.Count)

	if worst > s.Count {
		worst = s.Count
	}
	if worst > 0 {
		s.Worst = append([]metric.Sample(nil), r.Samples[:worst]...)
	}
	return s
}

// Passed reports whether no sample fell below the threshold.
func (s Summary) Passed() bool {
	return s.Count > 0 && s.BelowCount == 0
}
