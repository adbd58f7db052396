package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docdiff-backend/internal/shared/server/middleware"
	"docdiff-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the jobs service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/comparisons/:id/analyze", h.submit)
	rg.GET("/jobs", h.listJobs)
	rg.GET("/jobs/:id", h.getJob)
}

type submitRequest struct {
	RequesterID string `json:"requesterId"`
	ModelName   string `json:"modelName"`
}

func (h *Handler) submit(c *gin.Context) {
	comparisonID := c.Param("id")
	if comparisonID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "comparison id is required", nil)
		return
	}
	c.Set("comparisonId", comparisonID)

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, created, err := h.Svc.Submit(ctx, comparisonID, req.RequesterID, req.ModelName)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusUnprocessableEntity, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit analysis", nil)
		}
		return
	}
	c.Set("jobId", job.ID)

	respond.Submitted(c, created, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("id")
	if jobID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "job id is required", nil)
		return
	}

	job, err := h.Svc.Get(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch job", nil)
		}
		return
	}
	c.Set("jobId", job.ID)

	resp := gin.H{
		"jobId":      job.ID,
		"status":     job.Status,
		"createdAt":  job.CreatedAt,
		"retryCount": job.RetryCount,
	}
	if job.Status == StatusCompleted && job.ResultPayload != nil {
		resp["resultPayload"] = job.ResultPayload
	}
	if job.Status == StatusError {
		resp["errorReason"] = gin.H{
			"code":    job.ErrorCode,
			"message": job.ErrorMessage,
		}
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listJobs(c *gin.Context) {
	requesterID := c.Query("requesterId")
	if requesterID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "requesterId is required", nil)
		return
	}

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	jobList, err := h.Svc.List(c.Request.Context(), requesterID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list jobs", nil)
		return
	}

	resp := make([]gin.H, 0, len(jobList))
	for _, job := range jobList {
		item := gin.H{
			"jobId":        job.ID,
			"comparisonId": job.ComparisonID,
			"title":        job.Title,
			"status":       job.Status,
			"createdAt":    job.CreatedAt,
		}
		if job.Status == StatusCompleted && job.ResultPayload != nil {
			if summary, ok := job.ResultPayload["summary"]; ok {
				item["summary"] = summary
			}
		}
		if job.Status == StatusError {
			item["errorCode"] = job.ErrorCode
		}
		resp = append(resp, item)
	}
	respond.JSON(c, http.StatusOK, resp)
}
