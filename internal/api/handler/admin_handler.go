package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/service"
)

// PipelineRunner is the pipeline as seen by the admin endpoints.
type PipelineRunner interface {
	Start(ctx context.Context, done func(*service.RunResult, error)) (string, error)
	Running() bool
	LastRun() *domain.PipelineRun
}

// RunLister reads recorded pipeline runs.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.PipelineRun, error)
	GetByID(ctx context.Context, id string) (*domain.PipelineRun, error)
}

// StatsReporter reports index and article table counts.
type StatsReporter interface {
	CollectionStats(ctx context.Context) (*service.CollectionStats, error)
}

// AdminHandler handles admin operations.
type AdminHandler struct {
	pipeline PipelineRunner
	runs     RunLister
	stats    StatsReporter

	// runDone is signalled when a background run finishes; tests wait on it.
	runDone func(*service.RunResult, error)
}

// NewAdminHandler creates a new admin handler. stats may be nil.
func NewAdminHandler(pipeline PipelineRunner, runs RunLister, stats StatsReporter) *AdminHandler {
	return &AdminHandler{pipeline: pipeline, runs: runs, stats: stats}
}

// PipelineStatusResponse represents the pipeline status.
type PipelineStatusResponse struct {
	IsRunning  bool                     `json:"is_running"`
	LastRun    *domain.PipelineRun      `json:"last_run,omitempty"`
	Stats      *service.CollectionStats `json:"stats,omitempty"`
	StatsError string                   `json:"stats_error,omitempty"`
}

// TriggerPipeline handles POST /admin/pipeline/run. The run is claimed and
// recorded before the response is written and continues afterwards.
func (h *AdminHandler) TriggerPipeline(c *gin.Context) {
	ctx := c.Request.Context()

	// Detach from the request so the run survives the HTTP response
	runID, err := h.pipeline.Start(context.WithoutCancel(ctx), h.finished)
	switch {
	case errors.Is(err, service.ErrPipelineRunning):
		logger.CtxWarn(ctx, "Pipeline trigger rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, ErrorResponse{Detail: "pipeline is already running"})
		return
	case err != nil:
		logger.CtxError(ctx, "Failed to start pipeline run: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		return
	}

	logger.CtxInfo(ctx, "Pipeline run %s started: client_ip=%s", runID, c.ClientIP())
	c.JSON(http.StatusAccepted, gin.H{"message": "pipeline run started", "run_id": runID})
}

func (h *AdminHandler) finished(result *service.RunResult, err error) {
	if h.runDone != nil {
		h.runDone(result, err)
	}
}

// GetPipelineStatus handles GET /admin/pipeline/status. Stats that can't be
// collected are reported in stats_error; the endpoint still answers.
func (h *AdminHandler) GetPipelineStatus(c *gin.Context) {
	ctx := c.Request.Context()

	resp := PipelineStatusResponse{
		IsRunning: h.pipeline.Running(),
		LastRun:   h.pipeline.LastRun(),
	}
	if h.stats != nil {
		stats, err := h.stats.CollectionStats(ctx)
		if err != nil {
			logger.CtxWarn(ctx, "Failed to collect collection stats: %v", err)
			resp.StatsError = err.Error()
		} else {
			resp.Stats = stats
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetRun handles GET /admin/pipeline/runs/:id.
func (h *AdminHandler) GetRun(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		logger.CtxError(ctx, "Failed to load pipeline run %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: "pipeline run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRuns handles GET /admin/pipeline/runs.
func (h *AdminHandler) ListRuns(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{Detail: []ValidationIssue{
				{Loc: []string{"query", "limit"}, Msg: "limit must be between 1 and 200", Type: "value_error"},
			}})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(ctx, limit)
	if err != nil {
		logger.CtxError(ctx, "Failed to list pipeline runs: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
		return
	}
	if runs == nil {
		runs = []domain.PipelineRun{}
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}
