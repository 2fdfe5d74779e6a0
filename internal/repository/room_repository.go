package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

// RoomRepository reads bookable rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// ListActiveBySchool returns active rooms ordered by name.
func (r *RoomRepository) ListActiveBySchool(ctx context.Context, schoolID string) ([]models.Room, error) {
	const query = `SELECT id, school_id, name, capacity, room_type, equipment FROM rooms
WHERE school_id = $1 AND active = TRUE ORDER BY name`
	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, schoolID); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}
