package solver

// Constraint types understood by the solver.
const (
	ConstraintTeacherUnavailability = "teacher_unavailability"
	ConstraintRoomUnavailability    = "room_unavailability"
	ConstraintClassUnavailability   = "class_unavailability"
	ConstraintTeacherPreference     = "teacher_preference"
	ConstraintRoomPreference        = "room_preference"
	ConstraintConsecutiveLessons    = "consecutive_lessons"
	ConstraintBreakRequirements     = "break_requirements"
	ConstraintMaxLessonsPerDay      = "max_lessons_per_day"
	ConstraintMinLessonsPerDay      = "min_lessons_per_day"
)

// Optimisation goals understood by the solver.
const (
	GoalMinimizeTeacherGaps        = "minimize_teacher_gaps"
	GoalMinimizeClassGaps          = "minimize_class_gaps"
	GoalMaximizeTeacherPreferences = "maximize_teacher_preferences"
	GoalMaximizeRoomPreferences    = "maximize_room_preferences"
	GoalDistributeSubjectsEvenly   = "distribute_subjects_evenly"
	GoalMinimizeConflicts          = "minimize_conflicts"
	GoalBalanceWorkload            = "balance_workload"
)

var constraintTypes = map[string]struct{}{
	ConstraintTeacherUnavailability: {},
	ConstraintRoomUnavailability:    {},
	ConstraintClassUnavailability:   {},
	ConstraintTeacherPreference:     {},
	ConstraintRoomPreference:        {},
	ConstraintConsecutiveLessons:    {},
	ConstraintBreakRequirements:     {},
	ConstraintMaxLessonsPerDay:      {},
	ConstraintMinLessonsPerDay:      {},
}

var goals = map[string]struct{}{
	GoalMinimizeTeacherGaps:        {},
	GoalMinimizeClassGaps:          {},
	GoalMaximizeTeacherPreferences: {},
	GoalMaximizeRoomPreferences:    {},
	GoalDistributeSubjectsEvenly:   {},
	GoalMinimizeConflicts:          {},
	GoalBalanceWorkload:            {},
}

// KnownConstraintType reports whether t is part of the solver vocabulary.
func KnownConstraintType(t string) bool {
	_, ok := constraintTypes[t]
	return ok
}

// KnownGoal reports whether g is part of the solver vocabulary.
func KnownGoal(g string) bool {
	_, ok := goals[g]
	return ok
}
