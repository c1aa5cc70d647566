package avalanche

import (
	"fmt"
	"iter"
	"math"
)

// Options controls how activity is grouped into avalanches
type Options struct {
	// GapThreshold is the minimum time, in seconds, between two counter changes
	// that closes the running avalanche (e.g., 5.0)
	GapThreshold float64

	// MinSize drops avalanches smaller than this many original particles
	MinSize int

	// CloseFinalBlock emits the block still open at the end of the series.
	// When false the trailing block is discarded because the run may have
	// ended mid-avalanche.
	CloseFinalBlock bool
}

// DefaultOptions returns the parameters used by the discharge analysis runs
func DefaultOptions() Options {
	return Options{
		GapThreshold:    5.0,
		MinSize:         1,
		CloseFinalBlock: true,
	}
}

// Segmenter detects avalanches in a sample series. It holds no state between
// calls and is safe for concurrent use.
type Segmenter struct {
	opts Options
}

// NewSegmenter validates opts and returns a Segmenter
func NewSegmenter(opts Options) (*Segmenter, error) {
	if math.IsNaN(opts.GapThreshold) || opts.GapThreshold <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, opts.GapThreshold)
	}
	if opts.MinSize < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMinSize, opts.MinSize)
	}
	return &Segmenter{opts: opts}, nil
}

// Options returns the options the segmenter was built with
func (s *Segmenter) Options() Options {
	return s.opts
}

// Events returns a lazy sequence of the avalanches in samples. Each range
// over the sequence walks the series again, so it can be consumed any number
// of times. samples must be ordered by non-decreasing time.
func (s *Segmenter) Events(samples []Sample) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if len(samples) < 2 {
			return
		}

		start, last := -1, -1
		for idx := 1; idx < len(samples); idx++ {
			if samples[idx].Count == samples[idx-1].Count {
				continue
			}

			if start < 0 {
				start, last = idx, idx
				continue
			}

			if samples[idx].Time-samples[last].Time >= s.opts.GapThreshold {
				if e, ok := s.closeBlock(samples, start, last); ok {
					if !yield(e) {
						return
					}
				}
				start = idx
			}
			last = idx
		}

		if start < 0 || !s.opts.CloseFinalBlock {
			return
		}
		if e, ok := s.closeBlock(samples, start, last); ok {
			yield(e)
		}
	}
}

// Segment collects every avalanche in samples
func (s *Segmenter) Segment(samples []Sample) []Event {
	events := []Event{}
	for e := range s.Events(samples) {
		events = append(events, e)
	}
	return events
}

// Sizes collects the size of every avalanche in samples
func (s *Segmenter) Sizes(samples []Sample) []int {
	sizes := []int{}
	for e := range s.Events(samples) {
		sizes = append(sizes, e.Size)
	}
	return sizes
}

// closeBlock sizes the inclusive index range [start, last]. Only positive
// increments of the original counter contribute, so corrections that lower
// the counter can never produce a negative size.
func (s *Segmenter) closeBlock(samples []Sample, start, last int) (Event, bool) {
	total := 0.0
	for j := start; j <= last; j++ {
		if inc := samples[j].OriginalCount - samples[j-1].OriginalCount; inc > 0 {
			total += inc
		}
	}

	size := int(math.Floor(total))
	if size < s.opts.MinSize {
		return Event{}, false
	}

	return Event{
		StartTime:  samples[start].Time,
		EndTime:    samples[last].Time,
		Duration:   samples[last].Time - samples[start].Time,
		Size:       size,
		StartIndex: start,
		EndIndex:   last,
	}, true
}
