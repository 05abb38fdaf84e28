package scheduling

import "sort"

// RoomStatus is the administrative state of a room.
type RoomStatus string

const (
	RoomActive   RoomStatus = "ACTIVE"
	RoomInactive RoomStatus = "INACTIVE"
)

// Room is static reference data; nothing in this package mutates it.
type Room struct {
	ID       string     `json:"id"`
	Building string     `json:"building"`
	Number   string     `json:"number"`
	Capacity int        `json:"capacity"`
	Type     string     `json:"type"`
	Status   RoomStatus `json:"status"`
}

func (r Room) Active() bool { return r.Status == RoomActive }

// IsAvailable reports whether no booking of room overlaps the placement.
// Bookings held by excludeSubjectID are ignored so a lesson does not collide
// with its own slot. Bookings owned by other rooms or by teachers are skipped.
func IsAvailable(room Room, at Placement, bookings []Booking, excludeSubjectID string) bool {
	for _, b := range bookings {
		if b.OwnerKind == OwnerTeacher || (b.OwnerID != "" && b.OwnerID != room.ID) {
			continue
		}
		if excludeSubjectID != "" && b.SubjectID == excludeSubjectID {
			continue
		}
		if at.Overlaps(b.Placement()) {
			return false
		}
	}
	return true
}

// RoomConstraints are hard filters for FilterAvailable. Empty fields do not filter.
type RoomConstraints struct {
	MinCapacity      int    `json:"min_capacity"`
	Building         string `json:"building,omitempty"`
	Type             string `json:"type,omitempty"`
	ExcludeSubjectID string `json:"exclude_subject_id,omitempty"`
}

// FilterAvailable keeps the rooms that satisfy c and are free at the
// placement, preserving input order.
func FilterAvailable(rooms []Room, at Placement, bookingsByRoom map[string][]Booking, c RoomConstraints) []Room {
	out := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Capacity < c.MinCapacity {
			continue
		}
		if c.Building != "" && room.Building != c.Building {
			continue
		}
		if c.Type != "" && room.Type != c.Type {
			continue
		}
		if !IsAvailable(room, at, bookingsByRoom[room.ID], c.ExcludeSubjectID) {
			continue
		}
		out = append(out, room)
	}
	return out
}

// RoomPreferences are soft criteria for ScoreRoom.
type RoomPreferences struct {
	MinCapacity       int    `json:"min_capacity"`
	PreferredBuilding string `json:"preferred_building,omitempty"`
	PreferredType     string `json:"preferred_type,omitempty"`
}

// ScoreRoom adds up to 50 points for capacity fit, 30 for the preferred
// building, 20 for the preferred type and 10 for an active room.
func ScoreRoom(room Room, prefs RoomPreferences) int {
	diff := room.Capacity - prefs.MinCapacity
	if diff < 0 {
		diff = -diff
	}
	score := 0
	if diff < 50 {
		score = 50 - diff
	}
	if prefs.PreferredBuilding != "" && room.Building == prefs.PreferredBuilding {
		score += 30
	}
	if prefs.PreferredType != "" && room.Type == prefs.PreferredType {
		score += 20
	}
	if room.Active() {
		score += 10
	}
	return score
}

// RankedRoom pairs a room with its score.
type RankedRoom struct {
	Room  Room `json:"room"`
	Score int  `json:"score"`
}

// RankRooms scores rooms and sorts them best first; ties keep input order.
func RankRooms(rooms []Room, prefs RoomPreferences) []RankedRoom {
	ranked := make([]RankedRoom, len(rooms))
	for i, room := range rooms {
		ranked[i] = RankedRoom{Room: room, Score: ScoreRoom(room, prefs)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}
