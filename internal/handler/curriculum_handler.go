package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
	"github.com/noah-isme/sma-timetable-engine/pkg/response"
)

type curriculumValidator interface {
	Validate(ctx context.Context, req dto.ValidateCurriculumRequest) (*service.HoursValidation, error)
	ConsistencyReport(ctx context.Context, schoolID string) (*dto.CurriculumConsistencyReport, error)
	ExportConsistencyReport(ctx context.Context, schoolID, format string) (*dto.ExportedFile, error)
}

// CurriculumHandler exposes curriculum consistency checks.
type CurriculumHandler struct {
	service curriculumValidator
}

// NewCurriculumHandler constructs the handler.
func NewCurriculumHandler(svc *service.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{service: svc}
}

// Validate godoc
// @Summary Validate periods per week against required hours per term
// @Tags Curriculum
// @Accept json
// @Produce json
// @Param payload body dto.ValidateCurriculumRequest true "Curriculum check"
// @Success 200 {object} response.Envelope
// @Router /curriculum/validate [post]
func (h *CurriculumHandler) Validate(c *gin.Context) {
	var req dto.ValidateCurriculumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid curriculum payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Consistency godoc
// @Summary Curriculum consistency report
// @Tags Curriculum
// @Produce json
// @Param school_id query string false "School ID"
// @Success 200 {object} response.Envelope
// @Router /curriculum/consistency [get]
func (h *CurriculumHandler) Consistency(c *gin.Context) {
	report, err := h.service.ConsistencyReport(c.Request.Context(), scopedSchoolID(c, c.Query("school_id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Export godoc
// @Summary Download the curriculum consistency report
// @Tags Curriculum
// @Produce octet-stream
// @Param school_id query string false "School ID"
// @Param format query string false "csv, pdf or xlsx"
// @Success 200 {file} file
// @Router /curriculum/consistency/export [get]
func (h *CurriculumHandler) Export(c *gin.Context) {
	var query dto.ConsistencyReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	file, err := h.service.ExportConsistencyReport(c.Request.Context(), scopedSchoolID(c, query.SchoolID), query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
