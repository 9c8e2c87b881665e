// Package api exposes the HTTP interface: health, synchronous strategy tests,
// queued downloads and backtests, status, live progress and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/backtest"
	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/observability"
	"candle-pattern-lab/internal/orchestrator"
)

// DefaultAddr is the listen address used when Options.Addr is empty.
const DefaultAddr = ":8000"

const shutdownTimeout = 10 * time.Second

// TestRunner runs synchronous strategy tests.
type TestRunner interface {
	RunTest(ctx context.Context, symbol, interval string) (*backtest.Outcome, error)
	Running() bool
	LastRun() (*domain.RunSummary, bool)
}

// JobQueue accepts background jobs of type J.
type JobQueue[J any] interface {
	Submit(job J) error
	Busy() bool
	Len() int
	Processed() uint64
	Failed() uint64
}

// ProgressSource streams progress snapshots of running tests.
type ProgressSource interface {
	Subscribe(buffer int) (<-chan orchestrator.Progress, func())
	Latest() (orchestrator.Progress, bool)
}

// Options for creating a Server.
type Options struct {
	// Required
	Tester    TestRunner
	Downloads JobQueue[domain.DownloadJob]
	Backtests JobQueue[domain.BacktestJob]

	// Optional
	Addr     string
	Progress ProgressSource       // /api/progress answers 503 without it
	Sweep    domain.StrategySweep // base for /api/backtest range overrides, default domain.DefaultSweep()
	Logger   logrus.FieldLogger
}

// Server is the HTTP API.
type Server struct {
	addr      string
	router    *gin.Engine
	tester    TestRunner
	downloads JobQueue[domain.DownloadJob]
	backtests JobQueue[domain.BacktestJob]
	progress  ProgressSource
	sweep     domain.StrategySweep
	logger    logrus.FieldLogger
	startedAt time.Time
}

// NewServer creates the API server and registers its routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Tester == nil || opts.Downloads == nil || opts.Backtests == nil {
		return nil, errors.New("api: tester, downloads and backtests are required")
	}
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	sweep := opts.Sweep
	if sweep == (domain.StrategySweep{}) {
		sweep = domain.DefaultSweep()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		addr:      addr,
		router:    router,
		tester:    opts.Tester,
		downloads: opts.Downloads,
		backtests: opts.Backtests,
		progress:  opts.Progress,
		sweep:     sweep,
		logger:    logger.WithField("component", "api"),
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.GET("/healthchecker", s.handleHealth)
	api.GET("/test", s.handleTest)
	api.GET("/dl", s.handleDownload)
	api.GET("/backtest", s.handleBacktest)
	api.GET("/status", s.handleStatus)
	api.GET("/progress", s.handleProgress)

	s.router.GET("/metrics", gin.WrapH(observability.Handler()))
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting HTTP server on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// requestLogger logs one line per request.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("http request")
	}
}
