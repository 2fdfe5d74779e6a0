package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
	"github.com/noah-isme/sma-timetable-engine/pkg/response"
)

type timetableGenerator interface {
	Trigger(ctx context.Context, actor *models.JWTClaims, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error)
	Poll(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.GenerationJobListQuery) ([]dto.GenerationJobResponse, error)
	Cancel(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error)
	Violations(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.ViolationListResponse, error)
}

// GenerationHandler exposes the timetable generation job endpoints.
type GenerationHandler struct {
	service timetableGenerator
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(svc *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{service: svc}
}

// Trigger godoc
// @Summary Submit a timetable generation job
// @Description Builds a solver request from the term configuration and submits it. Only one active job per term is allowed.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *GenerationHandler) Trigger(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	job, err := h.service.Trigger(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Poll a generation job
// @Description Reconciles the job with the solver and materializes the lessons once the solver completes.
// @Tags Timetable
// @Produce json
// @Param job_id query string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/generate [get]
func (h *GenerationHandler) Status(c *gin.Context) {
	var query dto.GenerationStatusQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.JobID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "job_id is required"))
		return
	}
	job, err := h.service.Poll(c.Request.Context(), claimsFromContext(c), query.JobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// List godoc
// @Summary List generation jobs of a term
// @Tags Timetable
// @Produce json
// @Param term_id query string true "Term ID"
// @Param limit query int false "Maximum number of jobs"
// @Success 200 {object} response.Envelope
// @Router /timetable/jobs [get]
func (h *GenerationHandler) List(c *gin.Context) {
	var query dto.GenerationJobListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	jobs, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, jobs, map[string]interface{}{"count": len(jobs)})
}

// Cancel godoc
// @Summary Cancel an active generation job
// @Tags Timetable
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/jobs/{id}/cancel [post]
func (h *GenerationHandler) Cancel(c *gin.Context) {
	job, err := h.service.Cancel(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// Violations godoc
// @Summary List the constraint violations recorded for a job
// @Tags Timetable
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /timetable/jobs/{id}/violations [get]
func (h *GenerationHandler) Violations(c *gin.Context) {
	result, err := h.service.Violations(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
