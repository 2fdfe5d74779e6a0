package app

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/sma-timetable-engine/internal/handler"
	"github.com/noah-isme/sma-timetable-engine/internal/middleware"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/pkg/config"
	"github.com/noah-isme/sma-timetable-engine/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-engine/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-engine/pkg/middleware/requestid"
)

// NewRouter registers every HTTP route on a fresh gin engine.
func NewRouter(c *Container) *gin.Engine {
	if c.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(c.Config.CORS))
	if c.Metrics != nil {
		r.Use(middleware.Metrics(c.Metrics))
	}

	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return c.DB.PingContext(ctx) },
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(c.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if c.Metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if c.Config.Env != config.EnvProduction {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	generation := handler.NewGenerationHandler(c.Generation)
	curriculum := handler.NewCurriculumHandler(c.Curriculum)
	workload := handler.NewWorkloadHandler(c.Workload)
	lessons := handler.NewLessonHandler(c.Lessons)

	writes := middleware.RequireRoles(models.RoleAdmin)
	reads := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)

	api := r.Group(c.Config.APIPrefix)
	api.Use(middleware.JWT(c.Tokens), middleware.SchoolScope())
	{
		timetable := api.Group("/timetable")
		timetable.POST("/generate", writes, generation.Trigger)
		timetable.GET("/generate", reads, generation.Status)
		timetable.GET("/jobs", reads, generation.List)
		timetable.POST("/jobs/:id/cancel", writes, generation.Cancel)
		timetable.GET("/jobs/:id/violations", reads, generation.Violations)

		curr := api.Group("/curriculum")
		curr.POST("/validate", reads, curriculum.Validate)
		curr.GET("/consistency", writes, curriculum.Consistency)
		curr.GET("/consistency/export", writes, middleware.Audit(c.Audit, "CURRICULUM_REPORT_EXPORT", "curriculum_consistency"), curriculum.Export)

		api.GET("/teachers/:id/workload", reads, workload.Get)

		api.POST("/lessons/conflicts", reads, lessons.CheckConflict)
		api.POST("/lessons", writes, lessons.Schedule)

		api.GET("/system/metrics", middleware.RequireRoles(), metricsHandler.System)
	}

	return r
}
