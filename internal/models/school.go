package models

import (
	"time"

	"github.com/lib/pq"
)

// School holds the session configuration shared by every term.
type School struct {
	ID                   string        `db:"id" json:"id"`
	Name                 string        `db:"name" json:"name"`
	WorkingDays          pq.Int64Array `db:"working_days" json:"working_days"`
	DayStartTime         string        `db:"day_start_time" json:"day_start_time"`
	DayEndTime           string        `db:"day_end_time" json:"day_end_time"`
	BreakDurationMinutes int           `db:"break_duration_minutes" json:"break_duration_minutes"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
}

// Holiday is a non-teaching date within a term.
type Holiday struct {
	ID     string    `db:"id" json:"id"`
	TermID string    `db:"term_id" json:"term_id"`
	Date   time.Time `db:"date" json:"date"`
	Name   string    `db:"name" json:"name"`
}
