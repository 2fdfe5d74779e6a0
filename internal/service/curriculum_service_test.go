package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type offeringDetailStub struct {
	details []models.ClassOfferingDetail
	calls   int
	err     error
}

func (s *offeringDetailStub) ListDetails(ctx context.Context, schoolID string) ([]models.ClassOfferingDetail, error) {
	s.calls++
	return s.details, s.err
}

type cacheRepoStub struct {
	values map[string]interface{}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	report, ok := v.(*dto.CurriculumConsistencyReport)
	if !ok {
		return errors.New("unexpected cache type")
	}
	*(dest.(*dto.CurriculumConsistencyReport)) = *report
	return nil
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.values == nil {
		c.values = map[string]interface{}{}
	}
	c.values[key] = value
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.values = map[string]interface{}{}
	return nil
}

func TestValidateHoursWithinTolerance(t *testing.T) {
	result := ValidateHours(HoursCheck{
		PeriodsPerWeek:        4,
		RequiredHoursPerTerm:  50,
		PeriodDurationMinutes: 50,
		WeeksPerTerm:          16,
		ToleranceHours:        5,
	})

	assert.True(t, result.Valid)
	assert.Equal(t, 53.33, result.ExpectedHours)
	assert.Equal(t, 3.33, result.VarianceHours)
	assert.Nil(t, result.Violation)
	assert.Empty(t, result.Recommendation)
}

func TestValidateHoursRecommendsPeriods(t *testing.T) {
	result := ValidateHours(HoursCheck{
		PeriodsPerWeek:        4,
		RequiredHoursPerTerm:  30,
		PeriodDurationMinutes: 50,
		WeeksPerTerm:          16,
		ToleranceHours:        5,
	})

	assert.False(t, result.Valid)
	assert.Equal(t, 23.33, result.VarianceHours)
	require.NotNil(t, result.RecommendedPeriodsPerWeek)
	assert.Equal(t, 2, *result.RecommendedPeriodsPerWeek)
	assert.Contains(t, result.Recommendation, "periods_per_week to 2")
	require.NotNil(t, result.Violation)
	assert.Equal(t, models.CodeCurriculumHoursVariance, result.Violation.Code)
	assert.Equal(t, models.SeverityWarning, result.Violation.Severity)
}

func TestValidateHoursShortfallSuggestsMorePeriods(t *testing.T) {
	result := ValidateHours(HoursCheck{
		PeriodsPerWeek:        2,
		RequiredHoursPerTerm:  80,
		PeriodDurationMinutes: 50,
		WeeksPerTerm:          16,
		ToleranceHours:        5,
	})

	assert.False(t, result.Valid)
	assert.Less(t, result.VarianceHours, 0.0)
	require.NotNil(t, result.RecommendedPeriodsPerWeek)
	assert.Equal(t, 6, *result.RecommendedPeriodsPerWeek)
	assert.Equal(t, "increase periods_per_week to 6", result.Recommendation)
	assert.Nil(t, result.RecommendedHoursPerTerm)
}

func TestValidateHoursToleranceBoundary(t *testing.T) {
	result := ValidateHours(HoursCheck{
		PeriodsPerWeek:        3,
		RequiredHoursPerTerm:  35,
		PeriodDurationMinutes: 50,
		WeeksPerTerm:          16,
		ToleranceHours:        5,
	})
	assert.True(t, result.Valid)
}

func TestCurriculumServiceValidateUsesTermCalendar(t *testing.T) {
	terms := &termCalendarStub{terms: map[string]models.Term{
		"term-1": {
			ID:                    "term-1",
			StartDate:             time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
			EndDate:               time.Date(2024, 9, 8, 0, 0, 0, 0, time.UTC),
			PeriodDurationMinutes: 45,
		},
	}}
	svc := NewCurriculumService(&offeringDetailStub{}, terms, nil, nil, CurriculumServiceConfig{}, nil)

	result, err := svc.Validate(context.Background(), dto.ValidateCurriculumRequest{
		PeriodsPerWeek:       4,
		RequiredHoursPerTerm: 24,
		TermID:               "term-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, result.WeeksPerTerm)
	assert.Equal(t, 45, result.PeriodDurationMinutes)
	assert.Equal(t, 24.0, result.ExpectedHours)
	assert.True(t, result.Valid)
}

func TestCurriculumServiceValidateUnknownTerm(t *testing.T) {
	svc := NewCurriculumService(&offeringDetailStub{}, &termCalendarStub{}, nil, nil, CurriculumServiceConfig{}, nil)
	_, err := svc.Validate(context.Background(), dto.ValidateCurriculumRequest{PeriodsPerWeek: 4, TermID: "missing"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCurriculumServiceValidateRejectsZeroPeriods(t *testing.T) {
	svc := NewCurriculumService(&offeringDetailStub{}, &termCalendarStub{}, nil, nil, CurriculumServiceConfig{}, nil)
	_, err := svc.Validate(context.Background(), dto.ValidateCurriculumRequest{PeriodsPerWeek: 0})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func sampleOfferingDetails() []models.ClassOfferingDetail {
	start := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 16*7-1)
	detail := func(id, course string, periods int, required *float64) models.ClassOfferingDetail {
		return models.ClassOfferingDetail{
			ClassOffering: models.ClassOffering{
				ID:                   id,
				TermID:               "term-1",
				PeriodsPerWeek:       periods,
				RequiredHoursPerTerm: required,
			},
			CourseName:            course,
			ClassSectionName:      "X-1",
			TermName:              "Odd 2024",
			TermStartDate:         start,
			TermEndDate:           end,
			PeriodDurationMinutes: 50,
		}
	}
	return []models.ClassOfferingDetail{
		detail("co-1", "Mathematics", 4, floatPtr(50)),
		detail("co-2", "Physics", 4, floatPtr(30)),
		detail("co-3", "Art", 2, nil),
	}
}

func TestCurriculumServiceConsistencyReport(t *testing.T) {
	offerings := &offeringDetailStub{details: sampleOfferingDetails()}
	svc := NewCurriculumService(offerings, &termCalendarStub{}, nil, nil, CurriculumServiceConfig{}, nil)

	report, err := svc.ConsistencyReport(context.Background(), "school-1")
	require.NoError(t, err)
	require.Len(t, report.Rows, 3)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.Consistent)
	assert.Equal(t, 1, report.Summary.Inconsistent)
	assert.Equal(t, 1, report.Summary.Unspecified)
	assert.Equal(t, 13.33, report.Summary.AverageVarianceHours)
	assert.Equal(t, dto.ConsistencyStatusUnspecified, report.Rows[2].Status)
	assert.Contains(t, report.Rows[2].Recommendation, "required_hours_per_term")
}

func TestCurriculumServiceConsistencyReportCached(t *testing.T) {
	offerings := &offeringDetailStub{details: sampleOfferingDetails()}
	cache := NewCacheService(&cacheRepoStub{}, nil, time.Minute, nil)
	svc := NewCurriculumService(offerings, &termCalendarStub{}, cache, nil, CurriculumServiceConfig{}, nil)

	_, err := svc.ConsistencyReport(context.Background(), "school-1")
	require.NoError(t, err)
	report, err := svc.ConsistencyReport(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 1, offerings.calls)
	assert.Len(t, report.Rows, 3)

	require.NoError(t, cache.InvalidateConsistencyReports(context.Background()))
	_, err = svc.ConsistencyReport(context.Background(), "school-1")
	require.NoError(t, err)
	assert.Equal(t, 2, offerings.calls)
}

func TestCurriculumServiceExportCSV(t *testing.T) {
	svc := NewCurriculumService(&offeringDetailStub{details: sampleOfferingDetails()}, &termCalendarStub{}, nil, nil, CurriculumServiceConfig{}, nil)

	file, err := svc.ExportConsistencyReport(context.Background(), "school-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Contains(t, file.Filename, "curriculum-consistency-school-1")
	assert.Contains(t, string(file.Data), "Physics")
	assert.Contains(t, string(file.Data), dto.ConsistencyStatusInconsistent)
}

func TestCurriculumServiceExportRejectsFormat(t *testing.T) {
	svc := NewCurriculumService(&offeringDetailStub{}, &termCalendarStub{}, nil, nil, CurriculumServiceConfig{}, nil)
	_, err := svc.ExportConsistencyReport(context.Background(), "", "docx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
