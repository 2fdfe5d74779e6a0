package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/solver"
	"github.com/noah-isme/sma-timetable-engine/pkg/config"
)

func newTestContainer(t *testing.T) (*Container, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: "/api/v1",
		JWT:       config.JWTConfig{Secret: "secret"},
		Metrics:   config.MetricsConfig{Enabled: true},
	}
	c := &Container{Config: cfg, Logger: zap.NewNop(), DB: sqlx.NewDb(db, "sqlmock")}
	c.wire(&solver.Presets{})
	return c, mock
}

func TestRouterProbes(t *testing.T) {
	c, mock := newTestContainer(t)
	mock.ExpectPing()
	router := NewRouter(c)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouterRequiresToken(t *testing.T) {
	c, _ := newTestContainer(t)
	router := NewRouter(c)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/timetable/jobs?term_id=term-1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterSystemMetricsIsSuperadminOnly(t *testing.T) {
	c, _ := newTestContainer(t)
	router := NewRouter(c)

	adminToken, _, err := c.Tokens.Issue("admin-1", models.RoleAdmin, "school-1")
	require.NoError(t, err)
	superToken, _, err := c.Tokens.Issue("root", models.RoleSuperAdmin, "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/system/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+superToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/curriculum/consistency?school_id=school-2", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
