package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/backtest"
	"candle-pattern-lab/internal/domain"
	"candle-pattern-lab/internal/jobqueue"
	"candle-pattern-lab/internal/orchestrator"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// HealthMessage is the fixed body message of /api/healthchecker.
const HealthMessage = "Candle pattern lab is up and running"

// GenericResponse is the body of every /api endpoint except status and progress.
type GenericResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// QueueStatus describes one job queue.
type QueueStatus struct {
	Busy      bool   `json:"busy"`
	Queued    int    `json:"queued"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// StatusResponse is the JSON response for /api/status.
type StatusResponse struct {
	Status      string                 `json:"status"`
	Uptime      string                 `json:"uptime"`
	TestRunning bool                   `json:"test_running"`
	Downloads   QueueStatus            `json:"downloads"`
	Backtests   QueueStatus            `json:"backtests"`
	LastRun     *domain.RunSummary     `json:"last_run,omitempty"`
	Progress    *orchestrator.Progress `json:"progress,omitempty"`
}

func success(c *gin.Context, message string) {
	c.JSON(http.StatusOK, GenericResponse{Status: StatusSuccess, Message: message})
}

func failure(c *gin.Context, code int, message string) {
	c.JSON(code, GenericResponse{Status: StatusError, Message: message})
}

// symbolInterval reads the required symbol and interval query parameters.
// It answers 400 and returns ok=false when one is missing.
func symbolInterval(c *gin.Context) (symbol, interval string, ok bool) {
	symbol = domain.NormalizeSymbol(c.Query("symbol"))
	interval = c.Query("interval")
	if symbol == "" || interval == "" {
		failure(c, http.StatusBadRequest, "symbol and interval query parameters are required")
		return "", "", false
	}
	return symbol, interval, true
}

func (s *Server) handleHealth(c *gin.Context) {
	success(c, HealthMessage)
}

func (s *Server) handleTest(c *gin.Context) {
	symbol, interval, ok := symbolInterval(c)
	if !ok {
		return
	}

	_, err := s.tester.RunTest(c.Request.Context(), symbol, interval)
	switch {
	case err == nil:
		success(c, fmt.Sprintf("Strategy tested for %s - %s", symbol, interval))
	case errors.Is(err, backtest.ErrNoData):
		failure(c, http.StatusNotFound, fmt.Sprintf(
			"There is no data. Download the corresponding data before. You sent %s - %s", symbol, interval))
	case errors.Is(err, backtest.ErrAlreadyRunning):
		failure(c, http.StatusConflict, fmt.Sprintf(
			"A strategy test is already running. Retry later : %s-%s", symbol, interval))
	default:
		s.logger.WithError(err).WithFields(logrus.Fields{"symbol": symbol, "interval": interval}).Error("strategy test failed")
		failure(c, http.StatusInternalServerError, fmt.Sprintf("Strategy test failed for %s - %s: %v", symbol, interval, err))
	}
}

func (s *Server) handleDownload(c *gin.Context) {
	symbol, interval, ok := symbolInterval(c)
	if !ok {
		return
	}

	busy := s.downloads.Busy()
	if err := s.downloads.Submit(domain.NewDownloadJob(symbol, interval)); err != nil {
		submitFailure(c, err)
		return
	}

	if busy {
		success(c, fmt.Sprintf("Already downloading datas. Queuing : %s-%s", symbol, interval))
		return
	}
	success(c, fmt.Sprintf("Downloading kline datas : %s-%s", symbol, interval))
}

func (s *Server) handleBacktest(c *gin.Context) {
	symbol, interval, ok := symbolInterval(c)
	if !ok {
		return
	}

	var params backtestParams
	if err := c.ShouldBindQuery(&params); err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}
	job, err := params.job(symbol, interval, s.sweep)
	if err != nil {
		failure(c, http.StatusBadRequest, err.Error())
		return
	}

	busy := s.backtests.Busy()
	if err := s.backtests.Submit(job); err != nil {
		submitFailure(c, err)
		return
	}

	if busy {
		success(c, fmt.Sprintf("Already backtesting. Queuing : %s-%s", symbol, interval))
		return
	}
	success(c, fmt.Sprintf("Backtest queued : %s-%s", symbol, interval))
}

func submitFailure(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobqueue.ErrQueueFull):
		failure(c, http.StatusTooManyRequests, err.Error())
	default:
		failure(c, http.StatusServiceUnavailable, err.Error())
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:      StatusSuccess,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		TestRunning: s.tester.Running(),
		Downloads:   queueStatus(s.downloads),
		Backtests:   queueStatus(s.backtests),
	}
	if run, ok := s.tester.LastRun(); ok {
		resp.LastRun = run
	}
	if s.progress != nil {
		if p, ok := s.progress.Latest(); ok {
			resp.Progress = &p
		}
	}
	c.JSON(http.StatusOK, resp)
}

func queueStatus[J any](q JobQueue[J]) QueueStatus {
	return QueueStatus{
		Busy:      q.Busy(),
		Queued:    q.Len(),
		Processed: q.Processed(),
		Failed:    q.Failed(),
	}
}
