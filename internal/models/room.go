package models

import (
	"time"

	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// Room is a teaching room row.
type Room struct {
	ID        string    `db:"id" json:"id"`
	Building  string    `db:"building" json:"building"`
	Number    string    `db:"number" json:"number"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Type      string    `db:"room_type" json:"type"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Domain converts the row into the scheduling value type.
func (r Room) Domain() scheduling.Room {
	return scheduling.Room{
		ID:       r.ID,
		Building: r.Building,
		Number:   r.Number,
		Capacity: r.Capacity,
		Type:     r.Type,
		Status:   scheduling.RoomStatus(r.Status),
	}
}

// RoomsToDomain converts a slice of rows.
func RoomsToDomain(rows []Room) []scheduling.Room {
	out := make([]scheduling.Room, len(rows))
	for i, r := range rows {
		out[i] = r.Domain()
	}
	return out
}

// RoomFilter describes query params for listing rooms.
type RoomFilter struct {
	Building    string
	Type        string
	Status      string
	MinCapacity int
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
