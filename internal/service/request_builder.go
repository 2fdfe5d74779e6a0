package service

import (
	"encoding/json"
	"sort"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/internal/solver"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

// Slot types sent to the solver.
const (
	SlotTypeTeaching = "teaching"
	SlotTypeBreak    = "break"
)

// RequestBuilderConfig supplies caps for teachers that have none configured.
type RequestBuilderConfig struct {
	SchemaVersion           string
	DefaultMaxPeriodsPerDay int
	DefaultMaxPeriodsWeek   int
	DefaultPeriodMinutes    int
}

// RequestBuilder turns a snapshot into a solver request. It performs presence
// checks only.
type RequestBuilder struct {
	cfg RequestBuilderConfig
}

// NewRequestBuilder constructs a builder.
func NewRequestBuilder(cfg RequestBuilderConfig) *RequestBuilder {
	if cfg.SchemaVersion == "" {
		cfg.SchemaVersion = "1"
	}
	if cfg.DefaultMaxPeriodsPerDay <= 0 {
		cfg.DefaultMaxPeriodsPerDay = 8
	}
	if cfg.DefaultMaxPeriodsWeek <= 0 {
		cfg.DefaultMaxPeriodsWeek = 20
	}
	if cfg.DefaultPeriodMinutes <= 0 {
		cfg.DefaultPeriodMinutes = 50
	}
	return &RequestBuilder{cfg: cfg}
}

// Build composes the solver request. Constraints and goals are passed through
// verbatim.
func (b *RequestBuilder) Build(snap *Snapshot, constraints []solver.Constraint, goals []string) (solver.Request, error) {
	if snap == nil || len(snap.TimeSlots) == 0 {
		return solver.Request{}, appErrors.Clone(appErrors.ErrIncompleteConfiguration, "term has no time slots")
	}
	if constraints == nil {
		constraints = []solver.Constraint{}
	}
	if goals == nil {
		goals = []string{}
	}

	periodMinutes := snap.Term.PeriodMinutes(b.cfg.DefaultPeriodMinutes)
	holidays := make([]string, 0, len(snap.Holidays))
	for _, h := range snap.Holidays {
		holidays = append(holidays, h.Date.Format(models.DateLayout))
	}

	return solver.Request{
		SchemaVersion:     b.cfg.SchemaVersion,
		SchoolConfig:      b.schoolConfig(snap, periodMinutes),
		Teachers:          b.teachers(snap),
		Classes:           b.classes(snap, periodMinutes),
		Rooms:             rooms(snap.Rooms),
		TimeSlots:         timeSlots(snap.TimeSlots),
		Constraints:       constraints,
		OptimizationGoals: goals,
		TermStart:         snap.Term.StartDate.Format(models.DateLayout),
		TermEnd:           snap.Term.EndDate.Format(models.DateLayout),
		Holidays:          holidays,
	}, nil
}

func (b *RequestBuilder) schoolConfig(snap *Snapshot, periodMinutes int) solver.SchoolConfig {
	days := make([]int, 0, 7)
	for _, d := range snap.School.WorkingDays {
		days = append(days, int(d))
	}
	if len(days) == 0 {
		seen := make(map[int]struct{})
		for _, slot := range snap.TimeSlots {
			if _, ok := seen[slot.DayOfWeek]; !ok {
				seen[slot.DayOfWeek] = struct{}{}
				days = append(days, slot.DayOfWeek)
			}
		}
	}
	sort.Ints(days)
	names := make([]string, 0, len(days))
	for _, d := range days {
		if name := models.DayName(d); name != "" {
			names = append(names, name)
		}
	}

	start, end := snap.School.DayStartTime, snap.School.DayEndTime
	for _, slot := range snap.TimeSlots {
		if start == "" || slot.StartTime < start {
			start = slot.StartTime
		}
		if end == "" || slot.EndTime > end {
			end = slot.EndTime
		}
	}

	return solver.SchoolConfig{
		SchoolID:              snap.School.ID,
		TermID:                snap.Term.ID,
		Name:                  snap.School.Name,
		WorkingDays:           names,
		StartTime:             start,
		EndTime:               end,
		LessonDurationMinutes: periodMinutes,
		BreakDurationMinutes:  snap.School.BreakDurationMinutes,
	}
}

func (b *RequestBuilder) teachers(snap *Snapshot) []solver.Teacher {
	out := make([]solver.Teacher, 0, len(snap.Teachers))
	for _, t := range snap.Teachers {
		availability := make(map[string][]string)
		blocked := snap.Unavailable[t.ID]
		for _, slot := range snap.TimeSlots {
			if !slot.IsTeachingPeriod {
				continue
			}
			if _, no := blocked[slot.ID]; no {
				continue
			}
			day := models.DayName(slot.DayOfWeek)
			availability[day] = append(availability[day], slot.ID)
		}

		perDay := b.cfg.DefaultMaxPeriodsPerDay
		if t.MaxPeriodsPerDay != nil && *t.MaxPeriodsPerDay > 0 {
			perDay = *t.MaxPeriodsPerDay
		}
		teacher := solver.Teacher{
			ID:                t.ID,
			Name:              t.FullName,
			Email:             t.Email,
			DepartmentID:      t.DepartmentID,
			MaxPeriodsPerDay:  perDay,
			MaxPeriodsPerWeek: t.PeriodCap(b.cfg.DefaultMaxPeriodsWeek),
			Availability:      availability,
			Qualifications:    append([]string{}, snap.Qualifications[t.ID]...),
		}
		if t.DepartmentName != nil {
			teacher.Department = *t.DepartmentName
		}
		if t.MaxHoursPerWeek != nil {
			teacher.MaxHoursPerWeek = *t.MaxHoursPerWeek
		}
		out = append(out, teacher)
	}
	return out
}

func (b *RequestBuilder) classes(snap *Snapshot, periodMinutes int) []solver.Class {
	courses := make(map[string]models.Course, len(snap.Courses))
	for _, c := range snap.Courses {
		courses[c.ID] = c
	}
	assignments := make(map[string][]solver.SubjectAssignment)
	for _, a := range snap.Assignments {
		assignments[a.ClassOfferingID] = append(assignments[a.ClassOfferingID], solver.SubjectAssignment{
			TeachingAssignmentID: a.ID,
			TeacherID:            a.TeacherID,
		})
	}
	subjects := make(map[string][]solver.Subject)
	for _, o := range snap.Offerings {
		course := courses[o.CourseID]
		subject := solver.Subject{
			ClassOfferingID:  o.ID,
			CourseID:         o.CourseID,
			CourseName:       course.Name,
			PeriodsPerWeek:   o.PeriodsPerWeek,
			HoursPerWeek:     round2(float64(o.PeriodsPerWeek*periodMinutes) / 60),
			HoursPerTerm:     o.RequiredHoursPerTerm,
			RequiredRoomType: course.RequiredRoomType,
			Assignments:      assignments[o.ID],
		}
		if subject.Assignments == nil {
			subject.Assignments = []solver.SubjectAssignment{}
		}
		subjects[o.ClassSectionID] = append(subjects[o.ClassSectionID], subject)
	}

	out := make([]solver.Class, 0, len(snap.ClassSections))
	for _, section := range snap.ClassSections {
		class := solver.Class{
			ID:           section.ID,
			Name:         section.Name,
			GradeLevel:   section.GradeLevel,
			StudentCount: section.StudentCount,
			Subjects:     subjects[section.ID],
		}
		if class.Subjects == nil {
			class.Subjects = []solver.Subject{}
		}
		out = append(out, class)
	}
	return out
}

func rooms(in []models.Room) []solver.Room {
	out := make([]solver.Room, 0, len(in))
	for _, r := range in {
		out = append(out, solver.Room{
			ID:        r.ID,
			Name:      r.Name,
			Capacity:  r.Capacity,
			RoomType:  r.RoomType,
			Equipment: equipmentList(r.Equipment),
		})
	}
	return out
}

// equipmentList accepts either a JSON array of names or an object whose
// truthy keys are the available equipment.
func equipmentList(raw []byte) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return append(out, list...)
	}
	var flags map[string]interface{}
	if err := json.Unmarshal(raw, &flags); err != nil {
		return out
	}
	for name, v := range flags {
		if enabled, ok := v.(bool); ok && !enabled {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func timeSlots(in []models.TimeSlot) []solver.TimeSlot {
	out := make([]solver.TimeSlot, 0, len(in))
	for _, s := range in {
		slotType := SlotTypeTeaching
		if !s.IsTeachingPeriod {
			slotType = SlotTypeBreak
		}
		out = append(out, solver.TimeSlot{
			ID:           s.ID,
			Day:          models.DayName(s.DayOfWeek),
			DayOfWeek:    s.DayOfWeek,
			StartTime:    s.StartTime,
			EndTime:      s.EndTime,
			PeriodNumber: s.PeriodNumber,
			SlotType:     slotType,
		})
	}
	return out
}
