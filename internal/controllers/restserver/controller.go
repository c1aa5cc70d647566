package restserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/silolab/avalanche/internal/log"
	"github.com/silolab/avalanche/internal/metrics"
	"github.com/silolab/avalanche/internal/storage"
	"github.com/silolab/avalanche/pkg/config"
)

// Controller represents the REST server controller
type Controller struct {
	ctx      context.Context
	wg       *sync.WaitGroup
	Server   http.Server
	store    storage.ResultStore
	metrics  *metrics.Collector
	logger   *zap.SugaredLogger
	handlers *Handlers
}

// NewController creates a new REST server controller serving the results in store
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, store storage.ResultStore, m *metrics.Collector, logger *zap.SugaredLogger) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("REST server requires a results store")
	}
	if m == nil {
		m = metrics.NewCollector()
	}
	if logger == nil {
		logger = log.Nop()
	}

	ctrl := &Controller{
		ctx:     ctx,
		wg:      wg,
		store:   store,
		metrics: m,
		logger:  logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		sc.ListenAddr = "0.0.0.0"
	}

	if sc.Port == 0 {
		logger.Info("server.port not provided; defaulting to 8080")
		sc.Port = 8080
	}

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = otelhttp.NewHandler(ctrl.setupRouter(), "avalanche-api")
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Infof("Starting REST server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Handler returns the router, for use without a listening server
func (c *Controller) Handler() http.Handler {
	return c.Server.Handler
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware)

	// Flat routes: a mux subrouter answers 404 on a method mismatch.
	router.HandleFunc("/api/batches/latest", c.handlers.GetLatestBatch).Methods(http.MethodGet)
	router.HandleFunc("/api/groups", c.handlers.ListGroups).Methods(http.MethodGet)
	router.HandleFunc("/api/groups/{key}", c.handlers.GetGroup).Methods(http.MethodGet)
	router.HandleFunc("/api/groups/{key}/distribution", c.handlers.GetGroupDistribution).Methods(http.MethodGet)
	router.HandleFunc("/api/health", c.handlers.GetHealth).Methods(http.MethodGet)

	router.Handle("/metrics", c.metrics.Handler()).Methods(http.MethodGet)

	return router
}

// statusRecorder captures the status code and body size of a response
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// loggingMiddleware logs every request and counts it by status and method
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, req)

		log.LogHTTPRequest(log.HTTPLogEntry{
			Timestamp:  start,
			Method:     req.Method,
			Path:       req.URL.Path,
			Status:     rec.status,
			Duration:   time.Since(start),
			Size:       rec.size,
			RemoteAddr: req.RemoteAddr,
			UserAgent:  req.UserAgent(),
		})
		c.metrics.RecHTTP(strconv.Itoa(rec.status), req.Method)
	})
}
