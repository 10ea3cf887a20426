package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/uniattend/attendance-api/internal/models"
)

// RoomRepository handles persistence for rooms.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs the repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

const roomColumns = `id, name, building, floor, center_latitude, center_longitude, gps_polygon,
floor_altitude, ceiling_height, altitude_tolerance, active, created_at, updated_at`

// FindByID returns a room by primary key.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1 LIMIT 1", roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}
