package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type tokenValidatorStub struct {
	claims *models.JWTClaims
}

func (s tokenValidatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good-token" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type auditWriterStub struct {
	logs []*models.AuditLog
}

func (s *auditWriterStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
}

func withClaims(claims *models.JWTClaims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func serve(router *gin.Engine, method, target, auth string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/jobs", JWT(tokenValidatorStub{claims: &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}}), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).UserID)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/jobs", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/jobs", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/jobs", "Bearer bad-token").Code)

	w := serve(router, http.MethodGet, "/jobs", "Bearer good-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", w.Body.String())
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	router := gin.New()
	router.GET("/anon", RequireRoles(models.RoleAdmin), ok)
	router.GET("/teacher", withClaims(&models.JWTClaims{Role: models.RoleTeacher}), RequireRoles(models.RoleAdmin), ok)
	router.GET("/admin", withClaims(&models.JWTClaims{Role: models.RoleAdmin}), RequireRoles(models.RoleAdmin), ok)
	router.GET("/super", withClaims(&models.JWTClaims{Role: models.RoleSuperAdmin}), RequireRoles(models.RoleAdmin), ok)

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/anon", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/teacher", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/super", "").Code)
}

func TestSchoolScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	router := gin.New()
	router.GET("/admin", withClaims(&models.JWTClaims{Role: models.RoleAdmin, SchoolID: "school-1"}), SchoolScope(), ok)
	router.GET("/super", withClaims(&models.JWTClaims{Role: models.RoleSuperAdmin, SchoolID: "school-1"}), SchoolScope(), ok)

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/admin?school_id=school-1", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/admin?school_id=school-2", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/super?school_id=school-2", "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &auditWriterStub{}
	router := gin.New()
	router.Use(withClaims(&models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}))
	router.POST("/jobs/:id/cancel", Audit(repo, "CANCEL", "timetable_generation"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/jobs/:id/fail", Audit(repo, "CANCEL", "timetable_generation"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	serve(router, http.MethodPost, "/jobs/job-1/cancel", "")
	serve(router, http.MethodPost, "/jobs/job-1/fail", "")

	require.Len(t, repo.logs, 1)
	assert.Equal(t, "admin-1", *repo.logs[0].UserID)
	assert.Equal(t, "job-1", *repo.logs[0].ResourceID)
	assert.Contains(t, string(repo.logs[0].NewValues), "/jobs/:id/cancel")
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.GET("/jobs/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/jobs/job-1", "")
	serve(router, http.MethodGet, "/nowhere", "")

	assert.Equal(t, []string{"/jobs/:id", "unmatched"}, observer.paths)
}
