package dto

import (
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
)

// PlacementRequest is a date plus start and end times as sent by clients.
type PlacementRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// CheckAvailabilityRequest asks whether one room is free.
type CheckAvailabilityRequest struct {
	PlacementRequest
	RoomID          string `json:"room_id" validate:"required"`
	ExcludeLessonID string `json:"exclude_lesson_id"`
}

// CheckAvailabilityResponse lists the bookings blocking the room, if any.
type CheckAvailabilityResponse struct {
	RoomID    string               `json:"room_id"`
	Available bool                 `json:"available"`
	Conflicts []scheduling.Booking `json:"conflicts"`
}

// SearchAvailableRequest filters and ranks free rooms.
type SearchAvailableRequest struct {
	PlacementRequest
	MinCapacity       int    `json:"min_capacity" validate:"gte=0"`
	Building          string `json:"building"`
	Type              string `json:"room_type"`
	PreferredBuilding string `json:"preferred_building"`
	PreferredType     string `json:"preferred_room_type"`
	ExcludeLessonID   string `json:"exclude_lesson_id"`
}

// AlternativesRequest asks for substitutes for a rejected room placement.
type AlternativesRequest struct {
	PlacementRequest
	RoomID            string `json:"room_id" validate:"required"`
	LessonID          string `json:"lesson_id"`
	MinCapacity       int    `json:"min_capacity" validate:"gte=0"`
	PreferredBuilding string `json:"preferred_building"`
	PreferredType     string `json:"preferred_room_type"`
	FlexibleTime      bool   `json:"flexible_time"`
	FlexibleDate      bool   `json:"flexible_date"`
}

// RoomSchedule is a room's Monday-based week with half-hour grids.
type RoomSchedule struct {
	Room     models.Room          `json:"room"`
	Week     []string             `json:"week"`
	Bookings []models.RoomBooking `json:"bookings"`
	Days     []scheduling.DayGrid `json:"days"`
}
