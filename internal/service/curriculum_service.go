package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
	"github.com/noah-isme/sma-timetable-engine/pkg/export"
)

// HoursCheck is the input of ValidateHours.
type HoursCheck struct {
	PeriodsPerWeek        int
	RequiredHoursPerTerm  float64
	PeriodDurationMinutes int
	WeeksPerTerm          int
	ToleranceHours        float64
}

// HoursValidation is the outcome of ValidateHours. Hour figures are rounded to
// two decimals; validity is decided on the unrounded values.
type HoursValidation struct {
	Valid                     bool                        `json:"is_valid"`
	ExpectedHours             float64                     `json:"expected_hours"`
	VarianceHours             float64                     `json:"variance_hours"`
	WeeksPerTerm              int                         `json:"weeks_per_term"`
	PeriodDurationMinutes     int                         `json:"period_duration_minutes"`
	Message                   string                      `json:"message"`
	Recommendation            string                      `json:"recommendation,omitempty"`
	RecommendedPeriodsPerWeek *int                        `json:"recommended_periods_per_week,omitempty"`
	RecommendedHoursPerTerm   *float64                    `json:"recommended_hours_per_term,omitempty"`
	Violation                 *models.ConstraintViolation `json:"violation,omitempty"`
}

// ExpectedHours converts a weekly period count into teaching hours per term.
func ExpectedHours(periodsPerWeek, weeksPerTerm, periodDurationMinutes int) float64 {
	return float64(periodsPerWeek*weeksPerTerm*periodDurationMinutes) / 60
}

// RecommendedPeriods is the weekly period count closest to requiredHours.
func RecommendedPeriods(requiredHours float64, weeksPerTerm, periodDurationMinutes int) int {
	if weeksPerTerm <= 0 || periodDurationMinutes <= 0 {
		return 0
	}
	return int(math.Round(requiredHours * 60 / float64(weeksPerTerm*periodDurationMinutes)))
}

// ValidateHours checks that periods per week and required hours per term agree
// within the tolerance. An inconsistent pair yields a warning violation with
// a recommendation: more required hours when the periods overshoot, more
// periods when they fall short. The period count matching the required hours
// is reported in both cases.
func ValidateHours(in HoursCheck) HoursValidation {
	expected := ExpectedHours(in.PeriodsPerWeek, in.WeeksPerTerm, in.PeriodDurationMinutes)
	variance := expected - in.RequiredHoursPerTerm
	out := HoursValidation{
		Valid:                 math.Abs(variance) <= in.ToleranceHours,
		ExpectedHours:         round2(expected),
		VarianceHours:         round2(variance),
		WeeksPerTerm:          in.WeeksPerTerm,
		PeriodDurationMinutes: in.PeriodDurationMinutes,
	}
	if out.Valid {
		out.Message = "hours and periods are consistent"
		return out
	}

	out.Message = fmt.Sprintf("expected %.1f hours but %.1f are required (variance %.1f)", expected, in.RequiredHoursPerTerm, variance)
	periods := RecommendedPeriods(in.RequiredHoursPerTerm, in.WeeksPerTerm, in.PeriodDurationMinutes)
	if in.WeeksPerTerm > 0 && in.PeriodDurationMinutes > 0 {
		out.RecommendedPeriodsPerWeek = &periods
	}
	if variance > 0 {
		hours := round1(expected)
		out.RecommendedHoursPerTerm = &hours
		out.Recommendation = fmt.Sprintf("increase required_hours_per_term to %.1f", expected)
		if out.RecommendedPeriodsPerWeek != nil {
			out.Recommendation += fmt.Sprintf(" or set periods_per_week to %d", periods)
		}
	} else {
		out.Recommendation = fmt.Sprintf("increase periods_per_week to %d", periods)
	}

	violation := models.NewViolation(models.CodeCurriculumHoursVariance, out.Message, models.ViolationContext{
		"periods_per_week":        in.PeriodsPerWeek,
		"required_hours_per_term": in.RequiredHoursPerTerm,
		"expected_hours":          out.ExpectedHours,
		"variance_hours":          out.VarianceHours,
		"tolerance_hours":         in.ToleranceHours,
		"weeks_per_term":          in.WeeksPerTerm,
		"period_duration_minutes": in.PeriodDurationMinutes,
		"recommendation":          out.Recommendation,
	})
	out.Violation = &violation
	return out
}

type offeringDetailLister interface {
	ListDetails(ctx context.Context, schoolID string) ([]models.ClassOfferingDetail, error)
}

type termLookup interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

// CurriculumServiceConfig holds the consistency parameters.
type CurriculumServiceConfig struct {
	ToleranceHours        float64
	DefaultWeeksPerTerm   int
	DefaultPeriodDuration int
	ReportTTL             time.Duration
}

// CurriculumService validates curriculum hours and builds the consistency report.
type CurriculumService struct {
	offerings offeringDetailLister
	terms     termLookup
	cache     *CacheService
	validator *validator.Validate
	cfg       CurriculumServiceConfig
	logger    *zap.Logger
}

// NewCurriculumService constructs the service.
func NewCurriculumService(offerings offeringDetailLister, terms termLookup, cache *CacheService, validate *validator.Validate, cfg CurriculumServiceConfig, logger *zap.Logger) *CurriculumService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ToleranceHours <= 0 {
		cfg.ToleranceHours = 5.0
	}
	if cfg.DefaultWeeksPerTerm <= 0 {
		cfg.DefaultWeeksPerTerm = 16
	}
	if cfg.DefaultPeriodDuration <= 0 {
		cfg.DefaultPeriodDuration = 50
	}
	return &CurriculumService{offerings: offerings, terms: terms, cache: cache, validator: validate, cfg: cfg, logger: logger}
}

// Validate checks a single periods/hours pair.
func (s *CurriculumService) Validate(ctx context.Context, req dto.ValidateCurriculumRequest) (*HoursValidation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	weeks := req.WeeksPerTerm
	if weeks == 0 {
		weeks = s.cfg.DefaultWeeksPerTerm
	}
	duration := req.PeriodDurationMinutes
	if duration == 0 {
		duration = s.cfg.DefaultPeriodDuration
	}
	if req.TermID != "" {
		term, err := s.terms.FindByID(ctx, req.TermID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
		}
		weeks = term.WeeksPerTerm(weeks)
		duration = term.PeriodMinutes(duration)
	}

	tolerance := s.cfg.ToleranceHours
	if req.ToleranceHours != nil {
		tolerance = *req.ToleranceHours
	}

	result := ValidateHours(HoursCheck{
		PeriodsPerWeek:        req.PeriodsPerWeek,
		RequiredHoursPerTerm:  req.RequiredHoursPerTerm,
		PeriodDurationMinutes: duration,
		WeeksPerTerm:          weeks,
		ToleranceHours:        tolerance,
	})
	if result.Violation != nil && req.TermID != "" {
		termID := req.TermID
		result.Violation.TermID = &termID
	}
	return &result, nil
}

// ConsistencyReport validates every class offering, optionally scoped to one
// school. Reports are cached; the cache is only an accelerator.
func (s *CurriculumService) ConsistencyReport(ctx context.Context, schoolID string) (*dto.CurriculumConsistencyReport, error) {
	key := consistencyReportKey(schoolID)
	var cached dto.CurriculumConsistencyReport
	if s.cache.Lookup(ctx, key, &cached) {
		return &cached, nil
	}

	details, err := s.offerings.ListDetails(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class offerings")
	}

	report := &dto.CurriculumConsistencyReport{
		SchoolID:    schoolID,
		GeneratedAt: time.Now().UTC(),
		Rows:        make([]dto.CurriculumConsistencyRow, 0, len(details)),
	}
	var varianceTotal float64
	var measured int
	for _, d := range details {
		row := s.reportRow(d)
		switch row.Status {
		case dto.ConsistencyStatusConsistent:
			report.Summary.Consistent++
		case dto.ConsistencyStatusInconsistent:
			report.Summary.Inconsistent++
		default:
			report.Summary.Unspecified++
		}
		if row.RequiredHoursPerTerm != nil {
			varianceTotal += math.Abs(row.VarianceHours)
			measured++
		}
		report.Rows = append(report.Rows, row)
	}
	report.Summary.Total = len(report.Rows)
	if measured > 0 {
		report.Summary.AverageVarianceHours = round2(varianceTotal / float64(measured))
	}

	s.cache.Store(ctx, key, report, s.cfg.ReportTTL)
	return report, nil
}

func (s *CurriculumService) reportRow(d models.ClassOfferingDetail) dto.CurriculumConsistencyRow {
	term := d.Term()
	weeks := term.WeeksPerTerm(s.cfg.DefaultWeeksPerTerm)
	duration := term.PeriodMinutes(s.cfg.DefaultPeriodDuration)
	row := dto.CurriculumConsistencyRow{
		ClassOfferingID:      d.ID,
		TermID:               d.TermID,
		TermName:             d.TermName,
		ClassName:            d.ClassSectionName,
		CourseName:           d.CourseName,
		PeriodsPerWeek:       d.PeriodsPerWeek,
		RequiredHoursPerTerm: d.RequiredHoursPerTerm,
		ExpectedHours:        round2(ExpectedHours(d.PeriodsPerWeek, weeks, duration)),
	}
	if d.RequiredHoursPerTerm == nil {
		row.Status = dto.ConsistencyStatusUnspecified
		row.Recommendation = fmt.Sprintf("set required_hours_per_term to %.1f", ExpectedHours(d.PeriodsPerWeek, weeks, duration))
		return row
	}

	result := ValidateHours(HoursCheck{
		PeriodsPerWeek:        d.PeriodsPerWeek,
		RequiredHoursPerTerm:  *d.RequiredHoursPerTerm,
		PeriodDurationMinutes: duration,
		WeeksPerTerm:          weeks,
		ToleranceHours:        s.cfg.ToleranceHours,
	})
	row.VarianceHours = result.VarianceHours
	row.Recommendation = result.Recommendation
	row.Status = dto.ConsistencyStatusConsistent
	if !result.Valid {
		row.Status = dto.ConsistencyStatusInconsistent
	}
	return row
}

var consistencyColumns = []export.Column{
	{Key: "term", Header: "Term", Width: 1.2},
	{Key: "class", Header: "Class", Width: 1},
	{Key: "course", Header: "Course", Width: 1.6},
	{Key: "periods", Header: "Periods/Week", Width: 0.8},
	{Key: "required", Header: "Required Hours", Width: 0.9},
	{Key: "expected", Header: "Expected Hours", Width: 0.9},
	{Key: "variance", Header: "Variance", Width: 0.8},
	{Key: "status", Header: "Status", Width: 1},
	{Key: "recommendation", Header: "Recommendation", Width: 2.6},
}

// ExportConsistencyReport renders the report as CSV, PDF or XLSX.
func (s *CurriculumService) ExportConsistencyReport(ctx context.Context, schoolID, format string) (*dto.ExportedFile, error) {
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	renderer, err := export.RendererFor(parsed)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	report, err := s.ConsistencyReport(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{Title: "Curriculum Consistency Report", Columns: consistencyColumns}
	for _, row := range report.Rows {
		required := ""
		if row.RequiredHoursPerTerm != nil {
			required = fmt.Sprintf("%.1f", *row.RequiredHoursPerTerm)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"term":           row.TermName,
			"class":          row.ClassName,
			"course":         row.CourseName,
			"periods":        fmt.Sprintf("%d", row.PeriodsPerWeek),
			"required":       required,
			"expected":       fmt.Sprintf("%.2f", row.ExpectedHours),
			"variance":       fmt.Sprintf("%.2f", row.VarianceHours),
			"status":         row.Status,
			"recommendation": row.Recommendation,
		})
	}

	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	scope := schoolID
	if scope == "" {
		scope = "all"
	}
	s.logger.Info("consistency report exported", zap.String("school_id", scope), zap.String("format", string(parsed)), zap.Int("rows", len(report.Rows)))
	return &dto.ExportedFile{
		Filename:    fmt.Sprintf("curriculum-consistency-%s-%s.%s", scope, report.GeneratedAt.Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
