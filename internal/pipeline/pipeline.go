// Package pipeline discovers simulation runs below a root directory,
// segments them in parallel and aggregates the results by parameter group.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/avalanche"
	"github.com/silolab/avalanche/internal/cache"
	"github.com/silolab/avalanche/internal/constants"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/internal/metrics"
	"github.com/silolab/avalanche/internal/series"
)

// Source selects what a run file contains
type Source string

const (
	// SourceFlow runs are flow_data.csv series segmented by the Segmenter
	SourceFlow Source = "flow"
	// SourceEvents runs are simulator event logs, used as recorded
	SourceEvents Source = "events"
)

// ErrUnknownSource is returned for a Source other than flow or events
var ErrUnknownSource = errors.New("pipeline: unknown source")

const tracerName = "github.com/silolab/avalanche/internal/pipeline"

// RunCache stores the events of processed runs by fingerprint
type RunCache interface {
	Get(key []byte) ([]avalanche.Event, bool, error)
	Put(key []byte, events []avalanche.Event) error
}

// Options configures a Processor
type Options struct {
	Root    string
	Pattern string
	Source  Source
	Segment avalanche.Options
	// Workers bounds the number of runs processed at once; <= 0 uses GOMAXPROCS
	Workers int
	// Cache, when set, is consulted before loading a run
	Cache RunCache
}

// RunResult is the outcome of one run. Err is set when the run was skipped.
type RunResult struct {
	Path    string
	Key     aggregate.GroupKey
	Events  []avalanche.Event
	Err     error
	Elapsed time.Duration
	Cached  bool
}

// Processor runs the discovery, segmentation and aggregation of one batch
type Processor struct {
	opts      Options
	segmenter *avalanche.Segmenter
	metrics   *metrics.Collector
	logger    *zap.SugaredLogger
	tracer    trace.Tracer
}

// NewProcessor validates opts and fills in defaults. m may be nil.
func NewProcessor(opts Options, m *metrics.Collector) (*Processor, error) {
	if opts.Source == "" {
		opts.Source = SourceFlow
	}
	if opts.Source != SourceFlow && opts.Source != SourceEvents {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, opts.Source)
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern(opts.Source)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	seg, err := avalanche.NewSegmenter(opts.Segment)
	if err != nil {
		return nil, err
	}

	return &Processor{
		opts:      opts,
		segmenter: seg,
		metrics:   m,
		logger:    log.GetSugaredLogger(),
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// DefaultPattern returns the discovery pattern of a source
func DefaultPattern(s Source) string {
	if s == SourceEvents {
		return constants.DefaultEventPattern
	}
	return constants.DefaultFlowPattern
}

// Options returns the effective options
func (p *Processor) Options() Options {
	return p.opts
}

// Discover returns the files under Root matching Pattern, sorted
func (p *Processor) Discover() ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(p.opts.Root, p.opts.Pattern))
	if err != nil {
		return nil, fmt.Errorf("pattern matching failed: %w", err)
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every discovered run. Unreadable runs are skipped and listed
// in the batch; only discovery failure or cancellation returns an error.
func (p *Processor) Run(ctx context.Context) (*Batch, error) {
	started := time.Now()
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("root", p.opts.Root),
		attribute.String("source", string(p.opts.Source)),
	))
	defer span.End()

	paths, err := p.Discover()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	p.logger.Infof("discovered %d runs under %s (%s)", len(paths), p.opts.Root, p.opts.Pattern)
	span.SetAttributes(attribute.Int("runs", len(paths)))

	results := make([]RunResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.processRun(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	// merge in discovery order so output files do not depend on scheduling
	agg := aggregate.New()
	for _, r := range results {
		if r.Err != nil {
			p.logger.Warnf("skipping %s: %v", r.Path, r.Err)
			agg.Skip(r.Path, r.Err)
			if p.metrics != nil {
				p.metrics.RecSkip()
			}
			continue
		}
		agg.Merge(r.Key, aggregate.Run{
			ID:        r.Path,
			Sizes:     avalanche.Sizes(r.Events),
			Durations: avalanche.Durations(r.Events),
		})
		if p.metrics != nil {
			p.metrics.RecRun(r.Key.String(), len(r.Events), r.Elapsed)
			if r.Cached {
				p.metrics.RecCacheHit()
			}
		}
	}

	b := &Batch{
		ID:       uuid.NewString(),
		Started:  started,
		Finished: time.Now(),
		Options:  p.opts,
		Runs:     results,
		Groups:   agg.FinalizeAll(),
		Skipped:  agg.Skipped(),
	}
	p.logger.Infof("batch %s: %d runs, %d groups, %d skipped in %v",
		b.ID, len(results), len(b.Groups), len(b.Skipped), b.Finished.Sub(started))
	span.SetAttributes(
		attribute.String("batch.id", b.ID),
		attribute.Int("groups", len(b.Groups)),
		attribute.Int("skipped", len(b.Skipped)),
	)
	return b, nil
}

// ProcessRun loads and segments one run. Errors are returned on the result,
// never panicked or propagated.
func (p *Processor) ProcessRun(path string) RunResult {
	return p.processRun(context.Background(), path)
}

func (p *Processor) processRun(ctx context.Context, path string) RunResult {
	start := time.Now()
	r := RunResult{Path: path, Key: p.keyOf(path)}

	_, span := p.tracer.Start(ctx, "pipeline.ProcessRun", trace.WithAttributes(
		attribute.String("path", path),
		attribute.String("group", r.Key.String()),
	))
	defer span.End()

	var key []byte
	if p.opts.Cache != nil {
		if info, err := os.Stat(path); err == nil {
			key = cache.Key(path, info, string(p.opts.Source), p.opts.Segment)
			events, ok, err := p.opts.Cache.Get(key)
			if err != nil {
				p.logger.Warnf("%s: %v", path, err)
			}
			if ok {
				r.Events, r.Cached = events, true
				r.Elapsed = time.Since(start)
				span.SetAttributes(attribute.Bool("cached", true), attribute.Int("events", len(events)))
				return r
			}
		}
	}

	switch p.opts.Source {
	case SourceEvents:
		el, err := series.LoadEventLogFile(path)
		if err != nil {
			r.Err = err
			break
		}
		if el.Malformed > 0 {
			p.logger.Warnf("%s: %d malformed event lines ignored", path, el.Malformed)
		}
		r.Events = filterMinSize(el.Events, p.opts.Segment.MinSize)
	default:
		samples, err := series.LoadFlowFile(path)
		if err != nil {
			r.Err = err
			break
		}
		r.Events = p.segmenter.Segment(samples)
	}

	if r.Err != nil {
		span.SetStatus(codes.Error, r.Err.Error())
	} else {
		span.SetAttributes(attribute.Int("events", len(r.Events)))
		if key != nil {
			if err := p.opts.Cache.Put(key, r.Events); err != nil {
				p.logger.Warnf("%s: %v", path, err)
			}
		}
	}

	r.Elapsed = time.Since(start)
	return r
}

// keyOf parses the group key from the whole run path, so parameters may be
// encoded in any directory level.
func (p *Processor) keyOf(path string) aggregate.GroupKey {
	return aggregate.ParseGroupKey(filepath.ToSlash(path))
}

func filterMinSize(events []avalanche.Event, minSize int) []avalanche.Event {
	out := make([]avalanche.Event, 0, len(events))
	for _, e := range events {
		if e.Size >= minSize {
			out = append(out, e)
		}
	}
	return out
}
