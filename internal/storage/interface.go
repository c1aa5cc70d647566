// Package storage defines the results store used to persist analysis batches.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/silolab/avalanche/internal/aggregate"
)

// ErrNotFound is returned when a batch or group does not exist
var ErrNotFound = errors.New("storage: not found")

// BatchRecord is one analysis invocation with its runs and groups
type BatchRecord struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	Root            string    `json:"root"`
	Source          string    `json:"source"`
	GapThreshold    float64   `json:"gap_threshold"`
	MinSize         int       `json:"min_size"`
	CloseFinalBlock bool      `json:"close_final_block"`

	Runs   []RunRecord        `json:"runs,omitempty"`
	Groups []*aggregate.Group `json:"groups,omitempty"`
}

// RunRecord is the outcome of one run within a batch
type RunRecord struct {
	Path    string             `json:"path"`
	Key     aggregate.GroupKey `json:"key"`
	Events  int                `json:"events"`
	Skipped bool               `json:"skipped"`
	Reason  string             `json:"reason,omitempty"`
}

// SkippedCount returns the number of skipped runs of the batch
func (b *BatchRecord) SkippedCount() int {
	n := 0
	for _, r := range b.Runs {
		if r.Skipped {
			n++
		}
	}
	return n
}

// ResultStore persists batches and serves them back by group
type ResultStore interface {
	SaveBatch(ctx context.Context, b *BatchRecord) error
	// LatestBatch returns the most recent batch with its runs, without groups
	LatestBatch(ctx context.Context) (*BatchRecord, error)
	// ListGroups returns the groups of a batch with summaries but no sizes
	ListGroups(ctx context.Context, batchID string) ([]*aggregate.Group, error)
	// Group returns one group of a batch including its sizes and durations
	Group(ctx context.Context, batchID string, key aggregate.GroupKey) (*aggregate.Group, error)
	GroupSizes(ctx context.Context, batchID string, key aggregate.GroupKey) ([]int, error)
	Health() *Health
	Close() error
}
