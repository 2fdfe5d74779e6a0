package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	internalmiddleware "github.com/noah-isme/sma-timetable-engine/internal/middleware"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type curriculumMock struct {
	schoolID string
	format   string
}

func (m *curriculumMock) Validate(ctx context.Context, req dto.ValidateCurriculumRequest) (*service.HoursValidation, error) {
	result := service.ValidateHours(service.HoursCheck{
		PeriodsPerWeek:        req.PeriodsPerWeek,
		RequiredHoursPerTerm:  req.RequiredHoursPerTerm,
		PeriodDurationMinutes: 45,
		WeeksPerTerm:          16,
		ToleranceHours:        5,
	})
	return &result, nil
}

func (m *curriculumMock) ConsistencyReport(ctx context.Context, schoolID string) (*dto.CurriculumConsistencyReport, error) {
	m.schoolID = schoolID
	return &dto.CurriculumConsistencyReport{SchoolID: schoolID, Rows: []dto.CurriculumConsistencyRow{}}, nil
}

func (m *curriculumMock) ExportConsistencyReport(ctx context.Context, schoolID, format string) (*dto.ExportedFile, error) {
	m.schoolID = schoolID
	m.format = format
	if format == "docx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &dto.ExportedFile{Filename: "curriculum-consistency.csv", ContentType: "text/csv", Data: []byte("class_offering_id\n")}, nil
}

func newCurriculumRouter(svc curriculumValidator, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := &CurriculumHandler{service: svc}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(internalmiddleware.ContextUserKey, claims)
		c.Next()
	})
	router.POST("/curriculum/validate", handler.Validate)
	router.GET("/curriculum/consistency", handler.Consistency)
	router.GET("/curriculum/consistency/export", handler.Export)
	return router
}

func TestCurriculumHandlerValidate(t *testing.T) {
	router := newCurriculumRouter(&curriculumMock{}, &models.JWTClaims{Role: models.RoleAdmin})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/curriculum/validate", bytes.NewReader([]byte(`{"periods_per_week":4,"required_hours_per_term":48}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["is_valid"])
	assert.Equal(t, float64(48), data["expected_hours"])
}

func TestCurriculumHandlerConsistencyDefaultsToCallerSchool(t *testing.T) {
	svc := &curriculumMock{}
	router := newCurriculumRouter(svc, &models.JWTClaims{Role: models.RoleAdmin, SchoolID: "school-1"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/curriculum/consistency", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "school-1", svc.schoolID)
}

func TestCurriculumHandlerConsistencySuperadminSeesAll(t *testing.T) {
	svc := &curriculumMock{}
	router := newCurriculumRouter(svc, &models.JWTClaims{Role: models.RoleSuperAdmin, SchoolID: "school-1"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/curriculum/consistency", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.schoolID)
}

func TestCurriculumHandlerExport(t *testing.T) {
	svc := &curriculumMock{}
	router := newCurriculumRouter(svc, &models.JWTClaims{Role: models.RoleAdmin, SchoolID: "school-1"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/curriculum/consistency/export?format=csv", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "curriculum-consistency.csv")
	assert.Equal(t, "csv", svc.format)
	assert.Equal(t, "school-1", svc.schoolID)
}
