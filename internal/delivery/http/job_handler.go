package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/reel/internal/domain"
	"github.com/Harsh-BH/reel/internal/usecase"
)

// JobHandler handles HTTP requests for media jobs.
type JobHandler struct {
	submitUC *usecase.SubmitJobUsecase
	listUC   *usecase.ListJobsUsecase
	getJobUC *usecase.GetJobUsecase
	cancelUC *usecase.CancelJobUsecase
	logger   *zap.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(
	submitUC *usecase.SubmitJobUsecase,
	listUC *usecase.ListJobsUsecase,
	getJobUC *usecase.GetJobUsecase,
	cancelUC *usecase.CancelJobUsecase,
	logger *zap.Logger,
) *JobHandler {
	return &JobHandler{
		submitUC: submitUC,
		listUC:   listUC,
		getJobUC: getJobUC,
		cancelUC: cancelUC,
		logger:   logger,
	}
}

type listQuery struct {
	Status   string `form:"status"`
	FileType string `form:"fileType"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

type pageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

type listResponse struct {
	Data []*domain.Job `json:"data"`
	Meta pageMeta      `json:"meta"`
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	var req domain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": domain.ErrPayloadTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	job, err := h.submitUC.Execute(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, "Submit job", err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query: " + err.Error(),
		})
		return
	}

	res, err := h.listUC.Execute(c.Request.Context(), domain.ListFilter{
		Status:   domain.JobStatus(q.Status),
		FileType: domain.FileType(q.FileType),
		Page:     q.Page,
		Limit:    q.Limit,
	})
	if err != nil {
		writeError(c, h.logger, "List jobs", err)
		return
	}

	c.JSON(http.StatusOK, listResponse{
		Data: res.Items,
		Meta: pageMeta{
			Total:      res.Total,
			Page:       res.Page,
			Limit:      res.Limit,
			TotalPages: res.TotalPages,
		},
	})
}

// GetByID handles GET /api/v1/jobs/:id
func (h *JobHandler) GetByID(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	job, err := h.getJobUC.Execute(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.logger, "Get job", err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Cancel handles DELETE /api/v1/jobs/:id
func (h *JobHandler) Cancel(c *gin.Context) {
	id, ok := parseJobID(c)
	if !ok {
		return
	}

	if _, err := h.cancelUC.Execute(c.Request.Context(), id); err != nil {
		writeError(c, h.logger, "Cancel job", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseJobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return uuid.Nil, false
	}
	return id, true
}
