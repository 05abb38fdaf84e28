package scheduling

import "sort"

// MaxRecommendations caps every recommendation list.
const MaxRecommendations = 10

// CandidateKind says how a candidate differs from the rejected request.
type CandidateKind string

const (
	CandidateOtherRoom CandidateKind = "same_time_different_room"
	CandidateOtherTime CandidateKind = "same_room_different_time"
	CandidateOtherDate CandidateKind = "same_room_different_date"
)

// Candidate is one substitute booking. It is never persisted.
type Candidate struct {
	Kind     CandidateKind `json:"kind"`
	Room     Room          `json:"room"`
	Date     CalendarDate  `json:"date"`
	Interval TimeInterval  `json:"interval"`
	Score    int           `json:"score"`
}

// Request is the rejected placement alternatives are sought for.
type Request struct {
	RoomID    string       `json:"room_id"`
	Date      CalendarDate `json:"date"`
	Interval  TimeInterval `json:"interval"`
	SubjectID string       `json:"subject_id,omitempty"`
}

func (r Request) placement() Placement { return Placement{Date: r.Date, Interval: r.Interval} }

// Pool is the in-memory snapshot the recommender searches.
type Pool struct {
	Rooms          []Room
	BookingsByRoom map[string][]Booking
}

func (p Pool) room(id string) (Room, bool) {
	for _, r := range p.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

// Preferences combine scoring criteria with the flexibility flags.
type Preferences struct {
	RoomPreferences
	FlexibleTime bool `json:"flexible_time"`
	FlexibleDate bool `json:"flexible_date"`
}

// AlternativeFinder proposes other placements for the requested room.
type AlternativeFinder interface {
	Find(req Request, room Room, pool Pool) []Placement
}

// AlternativeFinderFunc adapts a function to AlternativeFinder.
type AlternativeFinderFunc func(req Request, room Room, pool Pool) []Placement

func (f AlternativeFinderFunc) Find(req Request, room Room, pool Pool) []Placement {
	return f(req, room, pool)
}

// CatalogSlotFinder offers the other catalog slots on the same date that are free for the room.
type CatalogSlotFinder struct{}

func (CatalogSlotFinder) Find(req Request, room Room, pool Pool) []Placement {
	var out []Placement
	for _, slot := range slotCatalog {
		if slot.Interval == req.Interval {
			continue
		}
		at := Placement{Date: req.Date, Interval: slot.Interval}
		if IsAvailable(room, at, pool.BookingsByRoom[room.ID], req.SubjectID) {
			out = append(out, at)
		}
	}
	return out
}

// NearbyDateFinder offers dates within Days of the request, nearest first,
// where the room is free at the same interval. Dates before Today are skipped
// when Today is set.
type NearbyDateFinder struct {
	Days  int
	Today CalendarDate
}

func (f NearbyDateFinder) Find(req Request, room Room, pool Pool) []Placement {
	var out []Placement
	for d := 1; d <= f.Days; d++ {
		for _, offset := range [2]int{d, -d} {
			date := req.Date.AddDays(offset)
			if !f.Today.IsZero() && IsPast(date, f.Today) {
				continue
			}
			at := Placement{Date: date, Interval: req.Interval}
			if IsAvailable(room, at, pool.BookingsByRoom[room.ID], req.SubjectID) {
				out = append(out, at)
			}
		}
	}
	return out
}

// Recommender ranks substitutes for a rejected request. Nil finders disable
// the time and date searches.
type Recommender struct {
	TimeFinder AlternativeFinder
	DateFinder AlternativeFinder
	// Limit lowers the cap below MaxRecommendations when positive.
	Limit int
}

// Recommend returns at most the configured number of candidates, highest
// score first. Finding nothing yields an empty, non-nil slice.
func (r Recommender) Recommend(req Request, pool Pool, prefs Preferences) []Candidate {
	candidates := make([]Candidate, 0)
	at := req.placement()

	for _, room := range pool.Rooms {
		if room.ID == req.RoomID {
			continue
		}
		if !IsAvailable(room, at, pool.BookingsByRoom[room.ID], req.SubjectID) {
			continue
		}
		candidates = append(candidates, Candidate{
			Kind:     CandidateOtherRoom,
			Room:     room,
			Date:     req.Date,
			Interval: req.Interval,
			Score:    ScoreRoom(room, prefs.RoomPreferences),
		})
	}

	if original, ok := pool.room(req.RoomID); ok {
		score := ScoreRoom(original, prefs.RoomPreferences)
		if prefs.FlexibleTime && r.TimeFinder != nil {
			for _, p := range r.TimeFinder.Find(req, original, pool) {
				candidates = append(candidates, Candidate{Kind: CandidateOtherTime, Room: original, Date: p.Date, Interval: p.Interval, Score: score})
			}
		}
		if prefs.FlexibleDate && r.DateFinder != nil {
			for _, p := range r.DateFinder.Find(req, original, pool) {
				candidates = append(candidates, Candidate{Kind: CandidateOtherDate, Room: original, Date: p.Date, Interval: p.Interval, Score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	limit := MaxRecommendations
	if r.Limit > 0 && r.Limit < limit {
		limit = r.Limit
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
