// Package distribution builds normalized size distributions of avalanche
// samples using a binning scheme chosen from the sample size and range.
package distribution

import "errors"

var (
	// ErrEmptyInput indicates a distribution was requested for zero samples.
	ErrEmptyInput = errors.New("distribution: at least one sample is required")
	// ErrDegenerateRange flags log-spaced bounds that collapse; the binner
	// falls back to exact-center bins and records it on Table.Warning.
	ErrDegenerateRange = errors.New("distribution: degenerate log-space range")
	// ErrInvalidBinWidth indicates a fixed bin width that is not positive.
	ErrInvalidBinWidth = errors.New("distribution: bin width must be > 0")
)

// Strategy names the binning rule that produced a table
type Strategy string

const (
	StrategySingle      Strategy = "single"
	StrategyExactCenter Strategy = "exact_center"
	StrategySmallLinear Strategy = "small_linear"
	StrategyLog         Strategy = "log"
	StrategyLinear      Strategy = "linear"
	StrategyFixedWidth  Strategy = "fixed_width"
)

// Row is one bin of a distribution table
type Row struct {
	Center      float64 `json:"bin_center"`
	Width       float64 `json:"bin_width"`
	Count       int     `json:"count"`
	Probability float64 `json:"probability"`
	Density     float64 `json:"density"`
}

// Table is a normalized histogram, ascending by bin center
type Table struct {
	Rows     []Row     `json:"rows"`
	N        int       `json:"n"`
	Strategy Strategy  `json:"strategy"`
	Edges    []float64 `json:"edges"`

	// Warning holds a non-fatal condition met while binning, e.g. ErrDegenerateRange
	Warning error `json:"-"`
}

// TotalCount sums the counts of all rows
func (t *Table) TotalCount() int {
	total := 0
	for _, r := range t.Rows {
		total += r.Count
	}
	return total
}

// TotalProbability sums the probabilities of all rows
func (t *Table) TotalProbability() float64 {
	total := 0.0
	for _, r := range t.Rows {
		total += r.Probability
	}
	return total
}
