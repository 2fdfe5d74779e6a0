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

type workloadReader interface {
	WorkloadFor(ctx context.Context, actor *models.JWTClaims, teacherID string, query dto.WorkloadQuery) (*dto.TeacherWorkloadResponse, error)
}

// WorkloadHandler exposes teacher workload views.
type WorkloadHandler struct {
	service workloadReader
}

// NewWorkloadHandler constructs the handler.
func NewWorkloadHandler(svc *service.WorkloadService) *WorkloadHandler {
	return &WorkloadHandler{service: svc}
}

// Get godoc
// @Summary Teacher workload in a term
// @Tags Workload
// @Produce json
// @Param id path string true "Teacher ID"
// @Param term_id query string true "Term ID"
// @Param additional_periods query int false "Hypothetical extra periods per week"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/workload [get]
func (h *WorkloadHandler) Get(c *gin.Context) {
	var query dto.WorkloadQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	result, err := h.service.WorkloadFor(c.Request.Context(), claimsFromContext(c), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
