package apihandlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
	"alttext/internal/store"
)

// RunReader is the read side of the run store.
type RunReader interface {
	LatestRun(ctx context.Context, pipeline, step string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*models.RunRecord, error)
}

// BatchCanceller cancels a remote batch job.
type BatchCanceller interface {
	CancelBatch(ctx context.Context, batchID string) (models.JobStatus, error)
}

type APIHandler struct {
	Runs      RunReader
	Canceller BatchCanceller
}

func NewAPIHandler(runs RunReader, canceller BatchCanceller) *APIHandler {
	return &APIHandler{Runs: runs, Canceller: canceller}
}

// RegisterRoutes mounts the API under /api/v1.
func (h *APIHandler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.GET("", h.ListRunsHandler)
			runs.GET("/latest", h.LatestRunHandler)
		}
		v1.POST("/batches/:id/cancel", h.CancelBatchHandler)
	}
}

type runSummary struct {
	*models.RunRecord
	Counts map[models.JobStatus]int `json:"counts"`
}

func summarize(rec *models.RunRecord) runSummary {
	return runSummary{RunRecord: rec, Counts: rec.Tasks.CountByStatus()}
}

// ListRunsHandler handles GET /api/v1/runs?limit=&offset=.
func (h *APIHandler) ListRunsHandler(c *gin.Context) {
	limit, err := queryInt(c, "limit", 20)
	if err != nil || limit <= 0 {
		BadRequest(c, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		BadRequest(c, "offset must be a non-negative integer")
		return
	}

	runs, err := h.Runs.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		log.WithError(err).Error("ListRunsHandler: failed to list runs")
		Internal(c, "failed to list runs")
		return
	}
	out := make([]runSummary, 0, len(runs))
	for _, rec := range runs {
		out = append(out, summarize(rec))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// LatestRunHandler handles GET /api/v1/runs/latest?pipeline=&step=. Without
// parameters it returns the latest processing run.
func (h *APIHandler) LatestRunHandler(c *gin.Context) {
	pipeline := c.DefaultQuery("pipeline", models.PipelineBatchProcessing)
	step := c.DefaultQuery("step", models.StepWaitAndUpdate)

	rec, err := h.Runs.LatestRun(c.Request.Context(), pipeline, step)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(c, "no run for "+pipeline+"/"+step)
			return
		}
		log.WithError(err).Error("LatestRunHandler: failed to load run")
		Internal(c, "failed to load run")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": summarize(rec)})
}

// CancelBatchHandler handles POST /api/v1/batches/:id/cancel.
func (h *APIHandler) CancelBatchHandler(c *gin.Context) {
	batchID := strings.TrimSpace(c.Param("id"))
	if batchID == "" {
		BadRequest(c, "batch id is required")
		return
	}
	status, err := h.Canceller.CancelBatch(c.Request.Context(), batchID)
	if err != nil {
		if errors.Is(err, models.ErrProviderDisabled) {
			Unavailable(c, "OpenAI provider is not configured")
			return
		}
		log.WithError(err).WithField("batch_id", batchID).Error("CancelBatchHandler: cancel failed")
		Internal(c, "failed to cancel batch")
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"batch_id": batchID, "status": status}})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
