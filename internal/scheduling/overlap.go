package scheduling

// OwnerKind names the resource a booking occupies.
type OwnerKind string

const (
	OwnerRoom    OwnerKind = "ROOM"
	OwnerTeacher OwnerKind = "TEACHER"
	// OwnerClass only appears in conflict reports: a class cannot attend two lessons at once.
	OwnerClass OwnerKind = "CLASS"
)

// Booking is an occupied (owner, date, interval) triple. SubjectID is the
// lesson holding it.
type Booking struct {
	ID        string       `json:"id"`
	Date      CalendarDate `json:"date"`
	Interval  TimeInterval `json:"interval"`
	OwnerKind OwnerKind    `json:"owner_kind"`
	OwnerID   string       `json:"owner_id"`
	SubjectID string       `json:"subject_id"`
}

// Placement is a dated interval, the shape of a proposed booking.
type Placement struct {
	Date     CalendarDate `json:"date"`
	Interval TimeInterval `json:"interval"`
}

// Overlaps reports whether both placements fall on the same day and intersect.
func (p Placement) Overlaps(other Placement) bool {
	return p.Date == other.Date && IntervalsOverlap(p.Interval, other.Interval)
}

// IntervalsOverlap is the half-open test a.start < b.end && b.start < a.end.
// Touching intervals do not overlap.
func IntervalsOverlap(a, b TimeInterval) bool {
	return a.Start.Minutes() < b.End.Minutes() && b.Start.Minutes() < a.End.Minutes()
}

// ConflictsWithAny returns every booking on the candidate's date whose
// interval overlaps it, in input order.
func ConflictsWithAny(candidate Placement, bookings []Booking) []Booking {
	var conflicts []Booking
	for _, b := range bookings {
		if candidate.Overlaps(b.Placement()) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// Placement drops the ownership fields.
func (b Booking) Placement() Placement {
	return Placement{Date: b.Date, Interval: b.Interval}
}

// GroupByOwner indexes bookings of one kind by owner id.
func GroupByOwner(bookings []Booking, kind OwnerKind) map[string][]Booking {
	grouped := make(map[string][]Booking)
	for _, b := range bookings {
		if b.OwnerKind != kind {
			continue
		}
		grouped[b.OwnerID] = append(grouped[b.OwnerID], b)
	}
	return grouped
}
