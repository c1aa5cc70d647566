package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/silolab/avalanche/internal/avalanche"
	"github.com/silolab/avalanche/internal/cache"
	"github.com/silolab/avalanche/internal/controllers/restserver"
	"github.com/silolab/avalanche/internal/export"
	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/internal/metrics"
	"github.com/silolab/avalanche/internal/pipeline"
	"github.com/silolab/avalanche/internal/storage/sqlite"
	"github.com/silolab/avalanche/internal/tracing"
	"github.com/silolab/avalanche/pkg/config"
)

const healthInterval = 30 * time.Second

// ErrNoStore is returned by Run when no sqlite path is configured
var ErrNoStore = errors.New("app: storage.sqlite_path is required to serve results")

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	metrics        *metrics.Collector
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
		metrics:        metrics.NewCollector(),
	}
}

// Metrics returns the collector shared by the pipeline and the REST server
func (a *App) Metrics() *metrics.Collector {
	return a.metrics
}

// AnalyzeResult is the outcome of one Analyze call
type AnalyzeResult struct {
	Batch  *pipeline.Batch
	Tables []export.GroupTable
	// Stored is true when the batch was saved to the results store
	Stored bool
}

// PipelineOptions maps the configuration onto processor options
func PipelineOptions(c *config.ConfigData) pipeline.Options {
	return pipeline.Options{
		Root:    c.Discovery.Root,
		Pattern: c.Discovery.Pattern,
		Source:  pipeline.Source(c.Analysis.Source),
		Segment: avalanche.Options{
			GapThreshold:    c.Analysis.GapThreshold,
			MinSize:         c.Analysis.MinSize,
			CloseFinalBlock: c.Analysis.CloseFinalBlock,
		},
		Workers: c.Workers,
	}
}

// Analyze processes every run below the configured root, writes the output
// artifacts and, when a sqlite path is configured, stores the batch.
func (a *App) Analyze(ctx context.Context) (*AnalyzeResult, error) {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	stopTracing, err := a.startTracing(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	defer stopTracing()

	opts := PipelineOptions(cfg)
	if cfg.Storage.CacheDir != "" {
		rc, err := cache.Open(cfg.Storage.CacheDir, a.logger)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		opts.Cache = rc
	}

	p, err := pipeline.NewProcessor(opts, a.metrics)
	if err != nil {
		return nil, err
	}

	b, err := p.Run(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := p.WriteOutputs(b, pipeline.OutputOptions{
		Dir:      cfg.Output.Dir,
		Gnuplot:  cfg.Output.Gnuplot,
		BinWidth: cfg.Output.BinWidth,
		Workbook: cfg.Output.XLSX,
	})
	if err != nil {
		return nil, fmt.Errorf("error writing outputs: %w", err)
	}

	res := &AnalyzeResult{Batch: b, Tables: tables}
	if cfg.Storage.SQLitePath == "" {
		return res, nil
	}

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := store.SaveBatch(ctx, b.Record()); err != nil {
		return nil, err
	}
	a.logger.Infof("batch %s stored in %s", b.ID, cfg.Storage.SQLitePath)
	res.Stored = true
	return res, nil
}

// Run starts the REST server over the results store and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if cfg.Storage.SQLitePath == "" {
		return ErrNoStore
	}

	stopTracing, err := a.startTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer stopTracing()

	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	store.StartHealthMonitor(ctx, healthInterval)

	ctrl, err := restserver.NewController(ctx, &wg, cfg.Server, store, a.metrics, a.logger)
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	log.Info("waiting for the REST server to terminate...")
	wg.Wait()
	log.Info("shutdown complete")
	return nil
}

// startTracing installs the OTLP exporter when tracing is enabled. The
// returned function flushes pending spans.
func (a *App) startTracing(ctx context.Context, tc config.TracingData) (func(), error) {
	if !tc.Enabled {
		return func() {}, nil
	}
	shutdown, err := tracing.Init(ctx, tc.Endpoint, tc.Insecure)
	if err != nil {
		return nil, err
	}
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			a.logger.Warnf("error flushing traces: %v", err)
		}
	}, nil
}
