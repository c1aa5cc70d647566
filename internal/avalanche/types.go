// Package avalanche splits a cumulative discharge series into avalanches:
// bursts of counter activity separated by inactivity gaps.
package avalanche

import "errors"

var (
	// ErrInvalidThreshold indicates a gap threshold that is not a positive number.
	ErrInvalidThreshold = errors.New("avalanche: gap threshold must be > 0")
	// ErrInvalidMinSize indicates a negative minimum avalanche size.
	ErrInvalidMinSize = errors.New("avalanche: min size must be >= 0")
)

// Sample is a single row of a discharge series
type Sample struct {
	Time float64
	// Count is the cumulative discharged count used for event timing (NoPTotal)
	Count float64
	// OriginalCount is the cumulative count used for sizing (NoPOriginalTotal)
	OriginalCount float64
}

// Event is a closed avalanche
type Event struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Size      int     `json:"size"`

	// StartIndex and EndIndex are the inclusive sample range of the event.
	// Events read from a simulator event log have no range and carry -1.
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`
}

// Sizes extracts the sizes of events, preserving order
func Sizes(events []Event) []int {
	sizes := make([]int, len(events))
	for i, e := range events {
		sizes[i] = e.Size
	}
	return sizes
}

// Durations extracts the durations of events, preserving order
func Durations(events []Event) []float64 {
	durations := make([]float64, len(events))
	for i, e := range events {
		durations[i] = e.Duration
	}
	return durations
}
