package pipeline

import (
	"time"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/storage"
)

// Batch is the result of one Processor.Run
type Batch struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Options  Options
	// Runs are in discovery order
	Runs    []RunResult
	Groups  []*aggregate.Group
	Skipped []aggregate.SkippedRun
}

// Processed returns the number of runs that contributed to a group
func (b *Batch) Processed() int {
	return len(b.Runs) - len(b.Skipped)
}

// Record converts the batch into its stored form
func (b *Batch) Record() *storage.BatchRecord {
	rec := &storage.BatchRecord{
		ID:              b.ID,
		CreatedAt:       b.Started.UTC(),
		Root:            b.Options.Root,
		Source:          string(b.Options.Source),
		GapThreshold:    b.Options.Segment.GapThreshold,
		MinSize:         b.Options.Segment.MinSize,
		CloseFinalBlock: b.Options.Segment.CloseFinalBlock,
		Runs:            make([]storage.RunRecord, 0, len(b.Runs)),
		Groups:          b.Groups,
	}
	for _, r := range b.Runs {
		run := storage.RunRecord{Path: r.Path, Key: r.Key, Events: len(r.Events)}
		if r.Err != nil {
			run.Skipped = true
			run.Reason = r.Err.Error()
		}
		rec.Runs = append(rec.Runs, run)
	}
	return rec
}
