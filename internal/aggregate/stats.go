package aggregate

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the descriptive statistics of a group. Statistic fields are
// zero when Count is zero.
type Summary struct {
	Runs           int              `json:"runs"`
	Count          int              `json:"count"`
	Min            int              `json:"min"`
	Max            int              `json:"max"`
	Mean           float64          `json:"mean"`
	Median         float64          `json:"median"`
	Std            float64          `json:"std"`
	TotalParticles int              `json:"total_particles"`
	AvgPerRun      float64          `json:"avg_per_run"`
	Durations      *DurationSummary `json:"durations,omitempty"`
}

// DurationSummary describes avalanche durations, when runs provide them
type DurationSummary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Total  float64 `json:"total"`
}

// Summarize computes the statistics of sizes pooled from runs. Results do
// not depend on the order of sizes.
func Summarize(sizes []int, durations []float64, runs int) Summary {
	s := Summary{Runs: runs, Count: len(sizes)}
	if len(sizes) > 0 {
		values := sortedFloats(sizesAsFloats(sizes))
		s.Min = int(values[0])
		s.Max = int(values[len(values)-1])
		s.Mean, s.Std = stat.PopMeanStdDev(values, nil)
		s.Median = median(values)
		for _, v := range sizes {
			s.TotalParticles += v
		}
	}
	if runs > 0 {
		s.AvgPerRun = float64(len(sizes)) / float64(runs)
	}
	if len(durations) > 0 {
		s.Durations = summarizeDurations(durations)
	}
	return s
}

func summarizeDurations(durations []float64) *DurationSummary {
	values := sortedFloats(durations)
	d := &DurationSummary{
		Count:  len(values),
		Min:    values[0],
		Max:    values[len(values)-1],
		Median: median(values),
		Total:  floats.Sum(values),
	}
	d.Mean, d.Std = stat.PopMeanStdDev(values, nil)
	return d
}

// median of sorted values, averaging the middle pair for even counts
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sortedFloats(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

func sizesAsFloats(sizes []int) []float64 {
	out := make([]float64, len(sizes))
	for i, s := range sizes {
		out[i] = float64(s)
	}
	return out
}
