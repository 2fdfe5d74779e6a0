package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type teacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type teacherLoadLister interface {
	ListActiveLoad(ctx context.Context, teacherID, termID string) ([]models.TeacherLoad, error)
}

// WorkloadThresholds buckets utilisation percentages:
// available below ModerateFrom, moderate below HighFrom, high up to and
// including OverloadAbove, overloaded beyond it.
type WorkloadThresholds struct {
	ModerateFrom  float64
	HighFrom      float64
	OverloadAbove float64
}

// DefaultWorkloadThresholds are the 70/90/100 buckets.
var DefaultWorkloadThresholds = WorkloadThresholds{ModerateFrom: 70, HighFrom: 90, OverloadAbove: 100}

// Classify returns the workload status for a utilisation percentage.
func (t WorkloadThresholds) Classify(utilization float64) string {
	switch {
	case utilization < t.ModerateFrom:
		return dto.WorkloadAvailable
	case utilization < t.HighFrom:
		return dto.WorkloadModerate
	case utilization <= t.OverloadAbove:
		return dto.WorkloadHigh
	default:
		return dto.WorkloadOverloaded
	}
}

// WorkloadServiceConfig carries caps used when a teacher has none configured.
type WorkloadServiceConfig struct {
	DefaultMaxPeriods    int
	DefaultMaxCourses    int
	DefaultPeriodMinutes int
	Thresholds           WorkloadThresholds
}

// WorkloadService derives a teacher's committed load for a term. It never
// writes.
type WorkloadService struct {
	teachers  teacherLookup
	terms     termLookup
	loads     teacherLoadLister
	validator *validator.Validate
	cfg       WorkloadServiceConfig
	logger    *zap.Logger
}

// NewWorkloadService constructs the service.
func NewWorkloadService(teachers teacherLookup, terms termLookup, loads teacherLoadLister, validate *validator.Validate, cfg WorkloadServiceConfig, logger *zap.Logger) *WorkloadService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultMaxPeriods <= 0 {
		cfg.DefaultMaxPeriods = 20
	}
	if cfg.DefaultMaxCourses <= 0 {
		cfg.DefaultMaxCourses = 5
	}
	if cfg.DefaultPeriodMinutes <= 0 {
		cfg.DefaultPeriodMinutes = 50
	}
	if cfg.Thresholds == (WorkloadThresholds{}) {
		cfg.Thresholds = DefaultWorkloadThresholds
	}
	return &WorkloadService{teachers: teachers, terms: terms, loads: loads, validator: validate, cfg: cfg, logger: logger}
}

// WorkloadFor reports the teacher's utilisation in the term including an
// optional hypothetical extra load. Teachers and terms outside the actor's
// school read as missing.
func (s *WorkloadService) WorkloadFor(ctx context.Context, actor *models.JWTClaims, teacherID string, query dto.WorkloadQuery) (*dto.TeacherWorkloadResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	school := restrictedSchool(actor)
	if school != "" && teacher.SchoolID != school {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	term, err := s.terms.FindByID(ctx, query.TermID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if school != "" && term.SchoolID != school {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
	}
	loads, err := s.loads.ListActiveLoad(ctx, teacherID, query.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teaching assignments")
	}

	resp := s.compute(*teacher, term.PeriodMinutes(s.cfg.DefaultPeriodMinutes), loads, query.AdditionalPeriods)
	resp.TermID = term.ID
	if resp.Violation != nil {
		resp.Violation.TermID = &resp.TermID
		if term.SchoolID != "" {
			resp.Violation.SchoolID = &term.SchoolID
		}
	}
	return &resp, nil
}

func (s *WorkloadService) compute(teacher models.Teacher, periodMinutes int, loads []models.TeacherLoad, additional int) dto.TeacherWorkloadResponse {
	current := 0
	courses := make(map[string]struct{}, len(loads))
	for _, l := range loads {
		current += l.PeriodsPerWeek
		courses[l.CourseID] = struct{}{}
	}
	total := current + additional
	maxPeriods := teacher.PeriodCap(s.cfg.DefaultMaxPeriods)

	maxHours := float64(maxPeriods*periodMinutes) / 60
	if teacher.MaxHoursPerWeek != nil && *teacher.MaxHoursPerWeek > 0 {
		maxHours = *teacher.MaxHoursPerWeek
	}
	maxCourses := s.cfg.DefaultMaxCourses
	if teacher.MaxCourses != nil && *teacher.MaxCourses > 0 {
		maxCourses = *teacher.MaxCourses
	}

	utilization := float64(total) / float64(maxPeriods) * 100
	status := s.cfg.Thresholds.Classify(utilization)
	available := maxPeriods - total
	if available < 0 {
		available = 0
	}

	resp := dto.TeacherWorkloadResponse{
		TeacherID:                    teacher.ID,
		TeacherName:                  teacher.FullName,
		CurrentPeriodsPerWeek:        current,
		AdditionalPeriodsPerWeek:     additional,
		TotalPeriodsPerWeek:          total,
		MaxPeriodsPerWeek:            maxPeriods,
		AvailablePeriodsPerWeek:      available,
		CurrentHoursPerWeek:          round2(float64(current*periodMinutes) / 60),
		MaxHoursPerWeek:              round2(maxHours),
		CurrentCoursesCount:          len(courses),
		MaxCoursesCount:              maxCourses,
		UtilizationPercentage:        round2(utilization),
		WorkloadStatus:               status,
		RecommendedForNewAssignments: status == dto.WorkloadAvailable || status == dto.WorkloadModerate,
	}
	if teacher.DepartmentName != nil {
		resp.DepartmentName = *teacher.DepartmentName
	}
	if status == dto.WorkloadOverloaded {
		v := models.NewViolation(models.CodeTeacherWorkloadExceeded,
			fmt.Sprintf("teacher %s would carry %d periods per week, above the cap of %d", teacher.ID, total, maxPeriods),
			models.ViolationContext{
				"teacher_id":             teacher.ID,
				"periods":                total,
				"max_periods":            maxPeriods,
				"utilization_percentage": resp.UtilizationPercentage,
			})
		resp.Violation = &v
	}
	return resp
}

type weekKey struct {
	owner string
	year  int
	week  int
}

type dayKey struct {
	teacher string
	date    string
}

// BatchLoadViolations checks a lesson batch per ISO week against each
// teacher's weekly cap and each assignment's curriculum allocation, and per
// day against each teacher's daily cap. Lessons without a resolved teacher
// are skipped. Weekly overloads and daily excess are errors; a week holding
// more lessons of an assignment than its periods_per_week is a warning.
func BatchLoadViolations(lessons []models.ScheduledLesson, refs map[string]models.AssignmentRef, defaultMaxPeriods int, thresholds WorkloadThresholds) []models.ConstraintViolation {
	teacherWeeks := make(map[weekKey]int)
	assignmentWeeks := make(map[weekKey]int)
	teacherDays := make(map[dayKey]int)
	teacherRefs := make(map[string]models.AssignmentRef)
	for _, l := range lessons {
		ref, ok := refs[l.TeachingAssignmentID]
		if !ok || l.TeacherID == "" {
			continue
		}
		year, week := l.Date.ISOWeek()
		teacherWeeks[weekKey{owner: l.TeacherID, year: year, week: week}]++
		assignmentWeeks[weekKey{owner: ref.ID, year: year, week: week}]++
		teacherDays[dayKey{teacher: l.TeacherID, date: l.Date.Format(models.DateLayout)}]++
		teacherRefs[l.TeacherID] = ref
	}

	violations := make([]models.ConstraintViolation, 0)
	for _, k := range sortedWeekKeys(teacherWeeks) {
		count := teacherWeeks[k]
		maxPeriods := teacherRefs[k.owner].PeriodCap(defaultMaxPeriods)
		utilization := float64(count) / float64(maxPeriods) * 100
		if thresholds.Classify(utilization) != dto.WorkloadOverloaded {
			continue
		}
		violations = append(violations, models.NewViolation(models.CodeTeacherWorkloadExceeded,
			fmt.Sprintf("teacher %s has %d periods in week %d-W%02d, above the cap of %d", k.owner, count, k.year, k.week, maxPeriods),
			models.ViolationContext{
				"teacher_id":             k.owner,
				"iso_year":               k.year,
				"iso_week":               k.week,
				"periods":                count,
				"max_periods":            maxPeriods,
				"utilization_percentage": round2(utilization),
			}))
	}

	days := make([]dayKey, 0, len(teacherDays))
	for k := range teacherDays {
		days = append(days, k)
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].teacher != days[j].teacher {
			return days[i].teacher < days[j].teacher
		}
		return days[i].date < days[j].date
	})
	for _, k := range days {
		limit := teacherRefs[k.teacher].MaxPeriodsPerDay
		if limit == nil || *limit <= 0 || teacherDays[k] <= *limit {
			continue
		}
		violations = append(violations, models.NewViolation(models.CodeMaxLessonsExceeded,
			fmt.Sprintf("teacher %s has %d periods on %s, above the daily cap of %d", k.teacher, teacherDays[k], k.date, *limit),
			models.ViolationContext{"teacher_id": k.teacher, "date": k.date, "periods": teacherDays[k], "max_periods": *limit}))
	}

	for _, k := range sortedWeekKeys(assignmentWeeks) {
		ref := refs[k.owner]
		count := assignmentWeeks[k]
		if ref.PeriodsPerWeek <= 0 || count <= ref.PeriodsPerWeek {
			continue
		}
		violations = append(violations, models.NewViolation(models.CodeCurriculumHoursVariance,
			fmt.Sprintf("teaching assignment %s has %d periods in week %d-W%02d, %d allocated", ref.ID, count, k.year, k.week, ref.PeriodsPerWeek),
			models.ViolationContext{
				"teaching_assignment_id": ref.ID,
				"class_offering_id":      ref.ClassOfferingID,
				"iso_year":               k.year,
				"iso_week":               k.week,
				"periods":                count,
				"periods_per_week":       ref.PeriodsPerWeek,
				"variance_periods":       count - ref.PeriodsPerWeek,
			}))
	}
	return violations
}

func sortedWeekKeys(m map[weekKey]int) []weekKey {
	keys := make([]weekKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].owner != keys[j].owner {
			return keys[i].owner < keys[j].owner
		}
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		return keys[i].week < keys[j].week
	})
	return keys
}
