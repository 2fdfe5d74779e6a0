package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/repository"
	"github.com/noah-isme/sma-timetable-engine/internal/service"
	"github.com/noah-isme/sma-timetable-engine/internal/solver"
	"github.com/noah-isme/sma-timetable-engine/pkg/cache"
	"github.com/noah-isme/sma-timetable-engine/pkg/config"
	"github.com/noah-isme/sma-timetable-engine/pkg/database"
)

// Container holds the wired services shared by the API server and the CLI.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Audit      *repository.AuditRepository
	Metrics    *service.MetricsService
	Tokens     *service.TokenService
	Generation *service.GenerationService
	Curriculum *service.CurriculumService
	Workload   *service.WorkloadService
	Lessons    *service.LessonService
	Violations *service.ViolationService
	Notifier   *service.AdminNotifier
	Sweeper    *service.GenerationSweeper
}

// New connects to Postgres and, when enabled, Redis and wires every service.
// A Redis outage degrades to the process-local term lock and no report cache.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, running without report cache and shared term lock", zap.Error(err))
		rdb = nil
	}

	presets, err := solver.LoadPresets(cfg.Solver.PresetsFile, cfg.Solver.DefaultGoals)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, DB: db, Redis: rdb}
	c.wire(presets)
	return c, nil
}

func (c *Container) wire(presets *solver.Presets) {
	cfg, logger := c.Config, c.Logger
	validate := validator.New()

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	schools := repository.NewSchoolRepository(c.DB)
	terms := repository.NewTermRepository(c.DB)
	teachers := repository.NewTeacherRepository(c.DB)
	rooms := repository.NewRoomRepository(c.DB)
	sections := repository.NewClassSectionRepository(c.DB)
	courses := repository.NewCourseRepository(c.DB)
	offerings := repository.NewClassOfferingRepository(c.DB)
	assignments := repository.NewTeachingAssignmentRepository(c.DB)
	slots := repository.NewTimeSlotRepository(c.DB)
	lessons := repository.NewScheduledLessonRepository(c.DB)
	jobs := repository.NewGenerationJobRepository(c.DB)
	violationRepo := repository.NewViolationRepository(c.DB)
	audit := repository.NewAuditRepository(c.DB)
	locks := repository.NewTermLockRepository(c.Redis)

	var cacheRepo service.CacheRepository
	if c.Redis != nil {
		cacheRepo = repository.NewCacheRepository(c.Redis, logger)
	}
	reportCache := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ConsistencyReportTTL, logger)

	notifier := service.NewAdminNotifier(schools, service.AdminNotifierConfig{
		WebhookURL: cfg.Notification.WebhookURL,
		Timeout:    cfg.Notification.WebhookTimeout,
		Workers:    cfg.Notification.WorkerConcurrency,
		Retries:    cfg.Notification.WorkerRetries,
	}, nil, metrics, logger)
	violations := service.NewViolationService(violationRepo, notifier, metrics, logger)

	snapshots := service.NewSnapshotService(service.SnapshotRepositories{
		Schools:       schools,
		Terms:         terms,
		Teachers:      teachers,
		Rooms:         rooms,
		ClassSections: sections,
		Courses:       courses,
		Offerings:     offerings,
		Assignments:   assignments,
		TimeSlots:     slots,
	}, logger)
	builder := service.NewRequestBuilder(service.RequestBuilderConfig{
		SchemaVersion:         cfg.Solver.SchemaVersion,
		DefaultMaxPeriodsWeek: cfg.Workload.DefaultMaxPeriods,
		DefaultPeriodMinutes:  cfg.Curriculum.DefaultPeriodDuration,
	})
	solverClient := solver.NewClient(solver.Config{
		BaseURL:       cfg.Solver.BaseURL,
		Timeout:       cfg.Solver.Timeout,
		SchemaVersion: cfg.Solver.SchemaVersion,
	}, nil, metrics, logger)
	conflicts := service.NewConflictService(slots, lessons, logger)
	thresholds := service.WorkloadThresholds{
		ModerateFrom:  cfg.Workload.ModerateFromPct,
		HighFrom:      cfg.Workload.HighFromPct,
		OverloadAbove: cfg.Workload.OverloadAbovePct,
	}

	c.Generation = service.NewGenerationService(
		service.GenerationRepositories{
			Jobs:           jobs,
			Locks:          locks,
			Assignments:    assignments,
			Lessons:        lessons,
			Terms:          terms,
			Unavailability: teachers,
			Audit:          audit,
		},
		snapshots, builder, solverClient, conflicts, violations, c.DB, validate, metrics, logger,
		service.GenerationServiceConfig{
			LeaseTTL:          cfg.Generation.JobLeaseTTL,
			LockTTL:           cfg.Generation.LockTTL,
			Presets:           presets,
			DefaultMaxPeriods: cfg.Workload.DefaultMaxPeriods,
			Thresholds:        thresholds,
		},
	)
	c.Curriculum = service.NewCurriculumService(offerings, terms, reportCache, validate, service.CurriculumServiceConfig{
		ToleranceHours:        cfg.Curriculum.ToleranceHours,
		DefaultWeeksPerTerm:   cfg.Curriculum.DefaultWeeksPerTerm,
		DefaultPeriodDuration: cfg.Curriculum.DefaultPeriodDuration,
		ReportTTL:             cfg.Cache.ConsistencyReportTTL,
	}, logger)
	c.Workload = service.NewWorkloadService(teachers, terms, assignments, validate, service.WorkloadServiceConfig{
		DefaultMaxPeriods:    cfg.Workload.DefaultMaxPeriods,
		DefaultMaxCourses:    cfg.Workload.DefaultMaxCourses,
		DefaultPeriodMinutes: cfg.Curriculum.DefaultPeriodDuration,
		Thresholds:           thresholds,
	}, logger)
	c.Lessons = service.NewLessonService(service.LessonRepositories{
		Assignments: assignments,
		Lessons:     lessons,
		Terms:       terms,
		Audit:       audit,
	}, conflicts, c.DB, validate, metrics, logger)

	c.Audit = audit
	c.Metrics = metrics
	c.Violations = violations
	c.Notifier = notifier
	c.Tokens = service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	c.Sweeper = service.NewGenerationSweeper(c.Generation, cfg.Generation.SweepSchedule, logger)
}

// Start launches the background workers: the escalation queue and, when
// enabled, the lease sweeper.
func (c *Container) Start(ctx context.Context) error {
	c.Notifier.Start(ctx)
	if !c.Config.Generation.SweepEnabled {
		return nil
	}
	return c.Sweeper.Start()
}

// Close stops background work and releases connections.
func (c *Container) Close() {
	if c.Config.Generation.SweepEnabled {
		c.Sweeper.Stop()
	}
	c.Notifier.Stop()
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	_ = c.DB.Close()
}
