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

type lessonScheduler interface {
	CheckConflict(ctx context.Context, req dto.LessonConflictRequest) (*dto.LessonConflictResponse, error)
	Schedule(ctx context.Context, actor *models.JWTClaims, req dto.ScheduleLessonRequest) (*dto.ScheduleLessonResponse, error)
}

// LessonHandler exposes conflict checks and manual lesson booking.
type LessonHandler struct {
	service lessonScheduler
}

// NewLessonHandler constructs the handler.
func NewLessonHandler(svc *service.LessonService) *LessonHandler {
	return &LessonHandler{service: svc}
}

// CheckConflict godoc
// @Summary Check a prospective lesson for teacher or room conflicts
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.LessonConflictRequest true "Prospective lesson"
// @Success 200 {object} response.Envelope
// @Router /lessons/conflicts [post]
func (h *LessonHandler) CheckConflict(c *gin.Context) {
	var req dto.LessonConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict payload"))
		return
	}
	result, err := h.service.CheckConflict(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Schedule godoc
// @Summary Book a single lesson
// @Tags Lessons
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleLessonRequest true "Lesson"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /lessons [post]
func (h *LessonHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}
	result, err := h.service.Schedule(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
