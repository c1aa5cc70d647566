package distribution

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Binning heuristics
const (
	// ExactCenterMaxUnique is the largest number of distinct values that gets
	// one bin centered on each value.
	ExactCenterMaxUnique = 5

	// SmallSampleLimit: samples with fewer values than this use SmallSampleMaxBins
	// linear bins padded by half a unit on each side. The bound is exclusive:
	// a sample of exactly 10 values goes on to the log or linear rules.
	SmallSampleLimit   = 10
	SmallSampleMaxBins = 8

	// WideRangeRatio is the max/min ratio above which bins are log-spaced.
	WideRangeRatio = 10.0

	MaxLogBins    = 50
	MaxLinearBins = 30

	// LogFloor keeps the lower log-space bound away from log(0).
	LogFloor = 1.0
)

// Build bins values and returns the normalized table. Values must be
// non-negative. The input slice is not modified.
func Build(values []float64) (*Table, error) {
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	edges, strategy, warning := chooseEdges(sorted)

	t := histogram(sorted, edges)
	t.Strategy = strategy
	t.Warning = warning
	return t, nil
}

// BuildSizes is Build for integer avalanche sizes
func BuildSizes(sizes []int) (*Table, error) {
	return Build(FromInts(sizes))
}

// FromInts converts sizes to float64 values
func FromInts(sizes []int) []float64 {
	values := make([]float64, len(sizes))
	for i, s := range sizes {
		values[i] = float64(s)
	}
	return values
}

// FixedWidth bins values into consecutive bins of width binWidth starting at
// zero, up to the bin holding the maximum. Empty bins are kept so the table
// can be plotted as a continuous curve. Negative values are ignored.
func FixedWidth(values []float64, binWidth float64) (*Table, error) {
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}
	if math.IsNaN(binWidth) || binWidth <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidBinWidth, binWidth)
	}

	n := len(values)
	numBins := int(math.Floor(floats.Max(values)/binWidth)) + 1
	if numBins < 1 {
		numBins = 1
	}

	counts := make([]int, numBins)
	for _, v := range values {
		idx := int(math.Floor(v / binWidth))
		if idx < 0 || idx >= numBins {
			continue
		}
		counts[idx]++
	}

	t := &Table{
		Rows:     make([]Row, numBins),
		N:        n,
		Strategy: StrategyFixedWidth,
		Edges:    make([]float64, numBins+1),
	}
	for i := range t.Edges {
		t.Edges[i] = float64(i) * binWidth
	}
	for i, c := range counts {
		t.Rows[i] = Row{
			Center:      (float64(i) + 0.5) * binWidth,
			Width:       binWidth,
			Count:       c,
			Probability: float64(c) / float64(n),
			Density:     float64(c) / (float64(n) * binWidth),
		}
	}
	return t, nil
}

// chooseEdges picks bin edges for sorted values. Rules are applied in order;
// the first that matches wins.
func chooseEdges(sorted []float64) ([]float64, Strategy, error) {
	n := len(sorted)
	lo, hi := sorted[0], sorted[n-1]

	if n <= 1 {
		return []float64{lo - 0.5, lo + 0.5}, StrategySingle, nil
	}

	unique := uniqueSorted(sorted)
	if len(unique) <= ExactCenterMaxUnique {
		return exactCenterEdges(unique), StrategyExactCenter, nil
	}

	if n < SmallSampleLimit {
		bins := min(n, SmallSampleMaxBins)
		return linearEdges(lo-0.5, hi+0.5, bins), StrategySmallLinear, nil
	}

	if hi > WideRangeRatio*lo {
		bins := min(MaxLogBins, sqrtBins(n))
		lower := math.Max(lo, LogFloor)
		if lower >= hi {
			warning := fmt.Errorf("%w: lower bound %v >= upper bound %v", ErrDegenerateRange, lower, hi)
			return exactCenterEdges(unique), StrategyExactCenter, warning
		}
		return logEdges(lower, hi, bins), StrategyLog, nil
	}

	bins := min(MaxLinearBins, sqrtBins(n))
	return linearEdges(lo, hi, bins), StrategyLinear, nil
}

func sqrtBins(n int) int {
	return max(1, int(math.Round(math.Sqrt(float64(n)))))
}

func uniqueSorted(sorted []float64) []float64 {
	unique := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}
	return unique
}

// exactCenterEdges puts one bin around each unique value, splitting
// neighbors at their midpoint and padding the extremes by half a unit.
func exactCenterEdges(unique []float64) []float64 {
	edges := make([]float64, 0, len(unique)+1)
	edges = append(edges, unique[0]-0.5)
	for i := 1; i < len(unique); i++ {
		edges = append(edges, (unique[i-1]+unique[i])/2)
	}
	return append(edges, unique[len(unique)-1]+0.5)
}

func linearEdges(lo, hi float64, bins int) []float64 {
	edges := floats.Span(make([]float64, bins+1), lo, hi)
	edges[0], edges[bins] = lo, hi
	return edges
}

func logEdges(lo, hi float64, bins int) []float64 {
	edges := floats.LogSpan(make([]float64, bins+1), lo, hi)
	edges[0], edges[bins] = lo, hi
	return edges
}

// binIndex returns the bin of v: edge[i] <= v < edge[i+1], with the last bin
// closed on the right. Values outside the edges land in the nearest end bin
// so that every sample is counted.
func binIndex(edges []float64, v float64) int {
	i := sort.SearchFloat64s(edges, v)
	if i == len(edges) || edges[i] != v {
		i--
	}
	return min(max(i, 0), len(edges)-2)
}

func histogram(sorted, edges []float64) *Table {
	n := len(sorted)
	counts := make([]int, len(edges)-1)
	for _, v := range sorted {
		counts[binIndex(edges, v)]++
	}

	t := &Table{N: n, Edges: edges}
	for i, c := range counts {
		if c == 0 {
			continue
		}
		width := edges[i+1] - edges[i]
		t.Rows = append(t.Rows, Row{
			Center:      (edges[i] + edges[i+1]) / 2,
			Width:       width,
			Count:       c,
			Probability: float64(c) / float64(n),
			Density:     float64(c) / (float64(n) * width),
		})
	}
	return t
}
