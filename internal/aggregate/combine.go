package aggregate

import (
	"errors"
	"fmt"

	"github.com/silolab/avalanche/internal/avalanche"
)

var (
	// ErrNoRuns is returned when combining an empty set of runs
	ErrNoRuns = errors.New("aggregate: no runs to combine")
	// ErrInconsistentParameters matches every ParameterMismatch
	ErrInconsistentParameters = errors.New("aggregate: runs disagree on simulation parameters")
)

// ParameterMismatch reports a run whose parameter differs from the first run
type ParameterMismatch struct {
	RunID     string
	Field     string
	Canonical float64
	Got       float64
}

func (e *ParameterMismatch) Error() string {
	return fmt.Sprintf("run %s: %s = %v, expected %v", e.RunID, e.Field, e.Got, e.Canonical)
}

// Is reports whether target is ErrInconsistentParameters
func (e *ParameterMismatch) Is(target error) bool {
	return target == ErrInconsistentParameters
}

// NominalRun is one repetition of a nominally identical simulation, with its
// parsed directory parameters and recorded events
type NominalRun struct {
	ID     string
	Params SimParams
	Events []avalanche.Event
}

// Combination is the pooled result of nominally identical runs. The first
// run's parameters are canonical; disagreements are kept in Warnings.
type Combination struct {
	Params   SimParams
	Group    *Group
	Warnings []error
}

// D returns the dimensionless outlet ratio of the canonical parameters
func (c *Combination) D() float64 {
	return c.Params.D()
}

// Combine pools the events of runs into a single group
func Combine(runs []NominalRun) (*Combination, error) {
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}

	canonical := runs[0].Params
	key := canonical.Key()
	agg := New()
	c := &Combination{Params: canonical}

	want := canonical.fields()
	for _, run := range runs {
		for i, f := range run.Params.fields() {
			if f.value != want[i].value {
				c.Warnings = append(c.Warnings, &ParameterMismatch{
					RunID:     run.ID,
					Field:     f.name,
					Canonical: want[i].value,
					Got:       f.value,
				})
			}
		}
		agg.Merge(key, Run{
			ID:        run.ID,
			Sizes:     avalanche.Sizes(run.Events),
			Durations: avalanche.Durations(run.Events),
		})
	}

	g, err := agg.Finalize(key)
	if err != nil {
		return nil, err
	}
	c.Group = g
	return c, nil
}
