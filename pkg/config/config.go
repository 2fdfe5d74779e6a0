package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Solver       SolverConfig
	Generation   GenerationConfig
	Curriculum   CurriculumConfig
	Workload     WorkloadConfig
	Cache        CacheConfig
	Notification NotificationConfig
	Metrics      MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig only carries verification settings; tokens are issued elsewhere.
type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SolverConfig points at the external timetable solver.
type SolverConfig struct {
	BaseURL       string
	Timeout       time.Duration
	SchemaVersion string
	DefaultGoals  []string
	PresetsFile   string
}

// GenerationConfig tunes the generation job lifecycle.
type GenerationConfig struct {
	JobLeaseTTL   time.Duration
	SweepSchedule string
	SweepEnabled  bool
	LockTTL       time.Duration
	PollInterval  time.Duration
}

// CurriculumConfig holds the hours consistency parameters.
type CurriculumConfig struct {
	ToleranceHours        float64
	DefaultWeeksPerTerm   int
	DefaultPeriodDuration int
}

// WorkloadConfig defines utilisation buckets in percent.
type WorkloadConfig struct {
	DefaultMaxPeriods int
	DefaultMaxCourses int
	ModerateFromPct   float64
	HighFromPct       float64
	OverloadAbovePct  float64
}

type CacheConfig struct {
	ConsistencyReportTTL time.Duration
}

// NotificationConfig configures administrator escalation delivery.
type NotificationConfig struct {
	WebhookURL        string
	WebhookTimeout    time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Solver = SolverConfig{
		BaseURL:       strings.TrimRight(v.GetString("AI_SERVICE_URL"), "/"),
		Timeout:       parseDuration(v.GetString("AI_SERVICE_TIMEOUT"), 30*time.Second),
		SchemaVersion: v.GetString("AI_SERVICE_SCHEMA_VERSION"),
		DefaultGoals:  splitAndTrim(v.GetString("AI_SERVICE_DEFAULT_GOALS")),
		PresetsFile:   v.GetString("AI_SERVICE_PRESETS_FILE"),
	}

	cfg.Generation = GenerationConfig{
		JobLeaseTTL:   parseDuration(v.GetString("GENERATION_JOB_LEASE_TTL"), 2*time.Hour),
		SweepSchedule: v.GetString("GENERATION_SWEEP_SCHEDULE"),
		SweepEnabled:  v.GetBool("GENERATION_SWEEP_ENABLED"),
		LockTTL:       parseDuration(v.GetString("GENERATION_LOCK_TTL"), time.Minute),
		PollInterval:  parseDuration(v.GetString("GENERATION_POLL_INTERVAL"), 5*time.Second),
	}

	cfg.Curriculum = CurriculumConfig{
		ToleranceHours:        v.GetFloat64("CURRICULUM_TOLERANCE_HOURS"),
		DefaultWeeksPerTerm:   v.GetInt("CURRICULUM_DEFAULT_WEEKS"),
		DefaultPeriodDuration: v.GetInt("CURRICULUM_DEFAULT_PERIOD_MINUTES"),
	}

	cfg.Workload = WorkloadConfig{
		DefaultMaxPeriods: v.GetInt("WORKLOAD_DEFAULT_MAX_PERIODS"),
		DefaultMaxCourses: v.GetInt("WORKLOAD_DEFAULT_MAX_COURSES"),
		ModerateFromPct:   v.GetFloat64("WORKLOAD_MODERATE_FROM_PCT"),
		HighFromPct:       v.GetFloat64("WORKLOAD_HIGH_FROM_PCT"),
		OverloadAbovePct:  v.GetFloat64("WORKLOAD_OVERLOAD_ABOVE_PCT"),
	}

	cfg.Cache = CacheConfig{
		ConsistencyReportTTL: parseDuration(v.GetString("CONSISTENCY_REPORT_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Notification = NotificationConfig{
		WebhookURL:        v.GetString("ADMIN_WEBHOOK_URL"),
		WebhookTimeout:    parseDuration(v.GetString("ADMIN_WEBHOOK_TIMEOUT"), 5*time.Second),
		WorkerConcurrency: v.GetInt("NOTIFY_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("NOTIFY_WORKER_RETRIES"),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("AI_SERVICE_URL", "http://localhost:8000")
	v.SetDefault("AI_SERVICE_TIMEOUT", "30s")
	v.SetDefault("AI_SERVICE_SCHEMA_VERSION", "1")
	v.SetDefault("AI_SERVICE_DEFAULT_GOALS", "minimize_conflicts,balance_workload")
	v.SetDefault("AI_SERVICE_PRESETS_FILE", "")

	v.SetDefault("GENERATION_JOB_LEASE_TTL", "2h")
	v.SetDefault("GENERATION_SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("GENERATION_SWEEP_ENABLED", true)
	v.SetDefault("GENERATION_LOCK_TTL", "1m")
	v.SetDefault("GENERATION_POLL_INTERVAL", "5s")

	v.SetDefault("CURRICULUM_TOLERANCE_HOURS", 5.0)
	v.SetDefault("CURRICULUM_DEFAULT_WEEKS", 16)
	v.SetDefault("CURRICULUM_DEFAULT_PERIOD_MINUTES", 50)

	v.SetDefault("WORKLOAD_DEFAULT_MAX_PERIODS", 20)
	v.SetDefault("WORKLOAD_DEFAULT_MAX_COURSES", 5)
	v.SetDefault("WORKLOAD_MODERATE_FROM_PCT", 70.0)
	v.SetDefault("WORKLOAD_HIGH_FROM_PCT", 90.0)
	v.SetDefault("WORKLOAD_OVERLOAD_ABOVE_PCT", 100.0)

	v.SetDefault("CONSISTENCY_REPORT_CACHE_TTL", "5m")

	v.SetDefault("ADMIN_WEBHOOK_URL", "")
	v.SetDefault("ADMIN_WEBHOOK_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_WORKER_CONCURRENCY", 1)
	v.SetDefault("NOTIFY_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_METRICS", true)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
