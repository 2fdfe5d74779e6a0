package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	internalmiddleware "github.com/noah-isme/sma-timetable-engine/internal/middleware"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type generatorMock struct {
	captured  dto.GenerateTimetableRequest
	actor     *models.JWTClaims
	polled    string
	triggerFn func() (*dto.GenerationJobResponse, error)
}

func (m *generatorMock) Trigger(ctx context.Context, actor *models.JWTClaims, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error) {
	m.captured = req
	m.actor = actor
	if m.triggerFn != nil {
		return m.triggerFn()
	}
	return &dto.GenerationJobResponse{JobID: "job-1", TermID: req.TermID, Status: models.JobStatusPending}, nil
}

func (m *generatorMock) Poll(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error) {
	m.actor = actor
	m.polled = jobID
	if jobID == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return &dto.GenerationJobResponse{JobID: jobID, Status: models.JobStatusGenerating, Progress: 40}, nil
}

func (m *generatorMock) List(ctx context.Context, actor *models.JWTClaims, query dto.GenerationJobListQuery) ([]dto.GenerationJobResponse, error) {
	return []dto.GenerationJobResponse{{JobID: "job-2"}, {JobID: "job-1"}}, nil
}

func (m *generatorMock) Cancel(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "job is already terminal")
}

func (m *generatorMock) Violations(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.ViolationListResponse, error) {
	return &dto.ViolationListResponse{JobID: jobID, Violations: []models.ConstraintViolation{}}, nil
}

func newGenerationRouter(svc timetableGenerator, role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := &GenerationHandler{service: svc}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: role, SchoolID: "school-1"})
		c.Next()
	})
	writes := internalmiddleware.RequireRoles(models.RoleAdmin)
	router.POST("/timetable/generate", writes, handler.Trigger)
	router.GET("/timetable/generate", handler.Status)
	router.GET("/timetable/jobs", handler.List)
	router.POST("/timetable/jobs/:id/cancel", writes, handler.Cancel)
	router.GET("/timetable/jobs/:id/violations", handler.Violations)
	return router
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGenerationHandlerTrigger(t *testing.T) {
	svc := &generatorMock{}
	router := newGenerationRouter(svc, models.RoleAdmin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generate", bytes.NewReader([]byte(`{"term_id":"term-1","optimization_goals":["balance_workload"]}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "term-1", svc.captured.TermID)
	assert.Equal(t, []string{"balance_workload"}, svc.captured.OptimizationGoals)
	assert.Equal(t, "admin-1", svc.actor.UserID)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, "pending", data["status"])
}

func TestGenerationHandlerTriggerConflict(t *testing.T) {
	svc := &generatorMock{triggerFn: func() (*dto.GenerationJobResponse, error) {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "term already has an active generation job"), map[string]interface{}{"job_id": "job-0"})
	}}
	router := newGenerationRouter(svc, models.RoleAdmin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generate", bytes.NewReader([]byte(`{"term_id":"term-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	errBody := decodeEnvelope(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "CONFLICT", errBody["code"])
	assert.Equal(t, "job-0", errBody["details"].(map[string]interface{})["job_id"])
}

func TestGenerationHandlerTriggerInvalidPayload(t *testing.T) {
	router := newGenerationRouter(&generatorMock{}, models.RoleAdmin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generate", bytes.NewReader([]byte(`{"term_id":`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerationHandlerTriggerForbiddenForTeachers(t *testing.T) {
	router := newGenerationRouter(&generatorMock{}, models.RoleTeacher)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/timetable/generate", bytes.NewReader([]byte(`{"term_id":"term-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerationHandlerStatus(t *testing.T) {
	svc := &generatorMock{}
	router := newGenerationRouter(svc, models.RoleTeacher)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/timetable/generate?job_id=job-9", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job-9", svc.polled)
	require.NotNil(t, svc.actor)
	assert.Equal(t, "school-1", svc.actor.SchoolID)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/timetable/generate", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/timetable/generate?job_id=missing", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandlerListCancelViolations(t *testing.T) {
	router := newGenerationRouter(&generatorMock{}, models.RoleAdmin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/timetable/jobs?term_id=term-1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeEnvelope(t, w)["meta"].(map[string]interface{})["count"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodPost, "/timetable/jobs/job-1/cancel", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/timetable/jobs/job-1/violations", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job-1", decodeEnvelope(t, w)["data"].(map[string]interface{})["job_id"])
}
