package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type schoolLookup interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type termCalendarReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
	ListHolidays(ctx context.Context, termID string) ([]models.Holiday, error)
}

type teacherRosterReader interface {
	ListActiveBySchool(ctx context.Context, schoolID string) ([]models.Teacher, error)
	ListQualifications(ctx context.Context, schoolID string) ([]models.TeacherQualification, error)
	ListUnavailability(ctx context.Context, termID string) ([]models.TeacherUnavailability, error)
}

type roomLister interface {
	ListActiveBySchool(ctx context.Context, schoolID string) ([]models.Room, error)
}

type classSectionLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.ClassSection, error)
}

type courseLister interface {
	ListBySchool(ctx context.Context, schoolID string) ([]models.Course, error)
}

type offeringLister interface {
	ListByTerm(ctx context.Context, termID string) ([]models.ClassOffering, error)
}

type assignmentLister interface {
	ListActiveByTerm(ctx context.Context, termID string) ([]models.TeachingAssignment, error)
}

type timeSlotLister interface {
	ListByTerm(ctx context.Context, termID string) ([]models.TimeSlot, error)
}

// SnapshotRequest identifies the configuration to read. SchoolID and
// AcademicYearID are optional cross-checks against the term.
type SnapshotRequest struct {
	SchoolID       string
	AcademicYearID string
	TermID         string
}

// Snapshot is a read-only view of a term's scheduling configuration. Time
// slots are ordered by day of week then start time.
type Snapshot struct {
	School         models.School
	Term           models.Term
	Teachers       []models.Teacher
	Qualifications map[string][]string
	Unavailable    map[string]map[string]struct{}
	ClassSections  []models.ClassSection
	Rooms          []models.Room
	Courses        []models.Course
	Offerings      []models.ClassOffering
	Assignments    []models.TeachingAssignment
	TimeSlots      []models.TimeSlot
	Holidays       []models.Holiday
}

// SnapshotRepositories groups the readers behind the snapshot.
type SnapshotRepositories struct {
	Schools       schoolLookup
	Terms         termCalendarReader
	Teachers      teacherRosterReader
	Rooms         roomLister
	ClassSections classSectionLister
	Courses       courseLister
	Offerings     offeringLister
	Assignments   assignmentLister
	TimeSlots     timeSlotLister
}

// SnapshotService loads domain snapshots.
type SnapshotService struct {
	repos  SnapshotRepositories
	logger *zap.Logger
}

// NewSnapshotService constructs the service.
func NewSnapshotService(repos SnapshotRepositories, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{repos: repos, logger: logger}
}

// Load reads the snapshot for a term. It fails with NotFound when the term or
// its school is missing and with IncompleteConfiguration when the term has no
// time grid or the school has no active teachers.
func (s *SnapshotService) Load(ctx context.Context, req SnapshotRequest) (*Snapshot, error) {
	term, err := s.repos.Terms.FindByID(ctx, req.TermID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if req.AcademicYearID != "" && term.AcademicYearID != req.AcademicYearID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found in academic year")
	}
	if req.SchoolID != "" && term.SchoolID != req.SchoolID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found in school")
	}
	if !term.Valid() {
		return nil, appErrors.Clone(appErrors.ErrIncompleteConfiguration, "term end date must be after its start date")
	}

	school, err := s.repos.Schools.FindByID(ctx, term.SchoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
	}

	snap := &Snapshot{School: *school, Term: *term}
	var (
		qualifications []models.TeacherQualification
		unavailable    []models.TeacherUnavailability
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Teachers, err = s.repos.Teachers.ListActiveBySchool(gctx, school.ID)
		return err
	})
	g.Go(func() (err error) {
		qualifications, err = s.repos.Teachers.ListQualifications(gctx, school.ID)
		return err
	})
	g.Go(func() (err error) {
		unavailable, err = s.repos.Teachers.ListUnavailability(gctx, term.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.Rooms, err = s.repos.Rooms.ListActiveBySchool(gctx, school.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.ClassSections, err = s.repos.ClassSections.ListBySchool(gctx, school.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.Courses, err = s.repos.Courses.ListBySchool(gctx, school.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.Offerings, err = s.repos.Offerings.ListByTerm(gctx, term.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.Assignments, err = s.repos.Assignments.ListActiveByTerm(gctx, term.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.TimeSlots, err = s.repos.TimeSlots.ListByTerm(gctx, term.ID)
		return err
	})
	g.Go(func() (err error) {
		snap.Holidays, err = s.repos.Terms.ListHolidays(gctx, term.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling configuration")
	}

	if len(snap.TimeSlots) == 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrIncompleteConfiguration, "term has no time slots"),
			map[string]interface{}{"term_id": term.ID},
		)
	}
	if len(snap.Teachers) == 0 {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrIncompleteConfiguration, "school has no active teachers"),
			map[string]interface{}{"school_id": school.ID},
		)
	}

	sort.SliceStable(snap.TimeSlots, func(i, j int) bool {
		a, b := snap.TimeSlots[i], snap.TimeSlots[j]
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.StartTime < b.StartTime
	})

	snap.Qualifications = make(map[string][]string, len(snap.Teachers))
	for _, q := range qualifications {
		snap.Qualifications[q.TeacherID] = append(snap.Qualifications[q.TeacherID], q.CourseID)
	}
	snap.Unavailable = make(map[string]map[string]struct{})
	for _, u := range unavailable {
		if snap.Unavailable[u.TeacherID] == nil {
			snap.Unavailable[u.TeacherID] = make(map[string]struct{})
		}
		snap.Unavailable[u.TeacherID][u.TimeSlotID] = struct{}{}
	}

	s.logger.Debug("domain snapshot loaded",
		zap.String("term_id", term.ID),
		zap.Int("teachers", len(snap.Teachers)),
		zap.Int("offerings", len(snap.Offerings)),
		zap.Int("time_slots", len(snap.TimeSlots)))
	return snap, nil
}
