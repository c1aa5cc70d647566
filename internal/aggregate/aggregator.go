package aggregate

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownGroup is returned when finalizing a key that never received a run
var ErrUnknownGroup = errors.New("aggregate: unknown group")

// Run is the contribution of one simulation run to its group
type Run struct {
	ID        string
	Sizes     []int
	Durations []float64
}

// SkippedRun records a run that could not be processed and why
type SkippedRun struct {
	ID  string `json:"id"`
	Err error  `json:"-"`
}

// Reason returns the error text of a skipped run
func (s SkippedRun) Reason() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Group is the finalized view of one parameter bucket
type Group struct {
	Key       GroupKey  `json:"key"`
	RunIDs    []string  `json:"run_ids"`
	Sizes     []int     `json:"sizes"`
	Durations []float64 `json:"durations,omitempty"`
	Summary   Summary   `json:"summary"`
}

type group struct {
	mu        sync.Mutex
	runIDs    []string
	sizes     []int
	durations []float64
}

// Aggregator accumulates runs into groups keyed by GroupKey. It is safe for
// concurrent use. Sizes are appended in merge order; summaries do not depend
// on that order.
type Aggregator struct {
	mu      sync.RWMutex
	groups  map[GroupKey]*group
	skipped []SkippedRun
}

// New returns an empty Aggregator
func New() *Aggregator {
	return &Aggregator{groups: make(map[GroupKey]*group)}
}

func (a *Aggregator) group(key GroupKey) *group {
	a.mu.RLock()
	g, ok := a.groups[key]
	a.mu.RUnlock()
	if ok {
		return g
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok = a.groups[key]; !ok {
		g = &group{}
		a.groups[key] = g
	}
	return g
}

// Merge adds a run to the group for key. A run with no avalanches still
// counts as contributing.
func (a *Aggregator) Merge(key GroupKey, run Run) {
	g := a.group(key)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runIDs = append(g.runIDs, run.ID)
	g.sizes = append(g.sizes, run.Sizes...)
	g.durations = append(g.durations, run.Durations...)
}

// Skip records a run that failed and contributes nothing
func (a *Aggregator) Skip(id string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped = append(a.skipped, SkippedRun{ID: id, Err: err})
}

// Skipped returns the runs recorded with Skip, in call order
func (a *Aggregator) Skipped() []SkippedRun {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.skipped)
}

// Keys returns every group key in ascending order
func (a *Aggregator) Keys() []GroupKey {
	a.mu.RLock()
	keys := make([]GroupKey, 0, len(a.groups))
	for k := range a.groups {
		keys = append(keys, k)
	}
	a.mu.RUnlock()

	slices.SortFunc(keys, func(x, y GroupKey) int {
		switch {
		case x.Less(y):
			return -1
		case y.Less(x):
			return 1
		}
		return 0
	})
	return keys
}

// Finalize returns a snapshot of the group for key with its summary
func (a *Aggregator) Finalize(key GroupKey) (*Group, error) {
	a.mu.RLock()
	g, ok := a.groups[key]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, key)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	out := &Group{
		Key:       key,
		RunIDs:    slices.Clone(g.runIDs),
		Sizes:     slices.Clone(g.sizes),
		Durations: slices.Clone(g.durations),
	}
	if out.Sizes == nil {
		out.Sizes = []int{}
	}
	out.Summary = Summarize(out.Sizes, out.Durations, len(out.RunIDs))
	return out, nil
}

// FinalizeAll finalizes every group in key order
func (a *Aggregator) FinalizeAll() []*Group {
	keys := a.Keys()
	groups := make([]*Group, 0, len(keys))
	for _, k := range keys {
		g, err := a.Finalize(k)
		if err != nil {
			continue
		}
		groups = append(groups, g)
	}
	return groups
}
