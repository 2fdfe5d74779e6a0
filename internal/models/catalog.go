package models

import "github.com/jmoiron/sqlx/types"

// Room is a bookable teaching space.
type Room struct {
	ID        string         `db:"id" json:"id"`
	SchoolID  string         `db:"school_id" json:"school_id"`
	Name      string         `db:"name" json:"name"`
	Capacity  int            `db:"capacity" json:"capacity"`
	RoomType  string         `db:"room_type" json:"room_type"`
	Equipment types.JSONText `db:"equipment" json:"equipment"`
}

// ClassSection is a cohort of students taught together.
type ClassSection struct {
	ID           string `db:"id" json:"id"`
	SchoolID     string `db:"school_id" json:"school_id"`
	Name         string `db:"name" json:"name"`
	GradeLevel   int    `db:"grade_level" json:"grade_level"`
	StudentCount int    `db:"student_count" json:"student_count"`
}

// Course is a subject in the school catalogue.
type Course struct {
	ID               string  `db:"id" json:"id"`
	SchoolID         string  `db:"school_id" json:"school_id"`
	Code             string  `db:"code" json:"code"`
	Name             string  `db:"name" json:"name"`
	RequiredRoomType *string `db:"required_room_type" json:"required_room_type,omitempty"`
}
