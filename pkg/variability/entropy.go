package variability

import (
	"math"
	"sort"

	"github.com/logflow/logvar/internal/model"
)

// ActivityTable counts activity occurrences across all traces of a log.
type ActivityTable struct {
	Counts map[string]int
	Total  int
}

// CountActivities builds the activity frequency table of a log in one pass.
func CountActivities(log *model.Log) *ActivityTable {
	t := &ActivityTable{Counts: make(map[string]int)}
	if log == nil {
		return t
	}
	for i := range log.Traces {
		for _, e := range log.Traces[i].Events {
			t.Counts[e.Activity]++
			t.Total++
		}
	}
	return t
}

// Distinct returns the number of distinct activity labels.
func (t *ActivityTable) Distinct() int {
	return len(t.Counts)
}

// Entropy returns the Shannon entropy in bits of the activity distribution.
// A log without events has no distribution; Entropy returns 0 for it.
// Labels are summed in sorted order so the result does not depend on map
// iteration order.
func (t *ActivityTable) Entropy() float64 {
	if t.Total == 0 {
		return 0
	}

	labels := make([]string, 0, len(t.Counts))
	for l := range t.Counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	n := float64(t.Total)
	entropy := 0.0
	for _, l := range labels {
		if c := t.Counts[l]; c > 0 {
			p := float64(c) / n
			entropy -= p * math.Log2(p)
		}
	}

	// -0 for a single activity reads badly in reports.
	if entropy <= 0 {
		return 0
	}
	return entropy
}

// NormalizedEntropy returns entropy divided by log2(distinct activities),
// in [0,1]. It is 0 when fewer than two activities occur.
func (t *ActivityTable) NormalizedEntropy() float64 {
	if t.Total == 0 || len(t.Counts) <= 1 {
		return 0
	}
	return t.Entropy() / math.Log2(float64(len(t.Counts)))
}

// Entropy is a shorthand for CountActivities(log).Entropy().
func Entropy(log *model.Log) float64 {
	return CountActivities(log).Entropy()
}
