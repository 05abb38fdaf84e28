package scheduling

import "time"

const (
	gridCellMinutes = 30
	gridStartMinute = 7*60 + 30
	gridEndMinute   = 22*60 + 30
)

// GridCell is one 30-minute cell of a room's day.
type GridCell struct {
	Interval   TimeInterval `json:"interval"`
	Booked     bool         `json:"booked"`
	SubjectIDs []string     `json:"subject_ids,omitempty"`
}

// DayGrid is the calendar view of one day from 07:30 to 22:30.
type DayGrid struct {
	Date  CalendarDate `json:"date"`
	Cells []GridCell   `json:"cells"`
}

// BuildDayGrid marks each cell booked when any booking on date overlaps it.
func BuildDayGrid(date CalendarDate, bookings []Booking) DayGrid {
	grid := DayGrid{Date: date}
	for m := gridStartMinute; m < gridEndMinute; m += gridCellMinutes {
		cell := GridCell{Interval: TimeInterval{Start: timeFromMinutes(m), End: timeFromMinutes(m + gridCellMinutes)}}
		at := Placement{Date: date, Interval: cell.Interval}
		for _, b := range ConflictsWithAny(at, bookings) {
			cell.Booked = true
			cell.SubjectIDs = appendUnique(cell.SubjectIDs, b.SubjectID)
		}
		grid.Cells = append(grid.Cells, cell)
	}
	return grid
}

// BuildWeekGrid builds day grids for the Monday-based week containing date.
func BuildWeekGrid(date CalendarDate, bookings []Booking) []DayGrid {
	week := WeekDates(date)
	grids := make([]DayGrid, 0, len(week))
	for _, d := range week {
		grids = append(grids, BuildDayGrid(d, bookings))
	}
	return grids
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// WeeklyPattern is a recurring lesson: the same interval on each listed weekday.
type WeeklyPattern struct {
	Weekdays []time.Weekday `json:"weekdays"`
	Interval TimeInterval   `json:"interval"`
}

// ExpandWeekly lists the placements of pattern between from and to inclusive.
func ExpandWeekly(pattern WeeklyPattern, from, to CalendarDate) []Placement {
	if len(pattern.Weekdays) == 0 || to.Before(from) {
		return nil
	}
	days := make(map[time.Weekday]bool, len(pattern.Weekdays))
	for _, d := range pattern.Weekdays {
		days[d] = true
	}
	var out []Placement
	for d := from; !d.After(to); d = d.AddDays(1) {
		if days[d.Weekday()] {
			out = append(out, Placement{Date: d, Interval: pattern.Interval})
		}
	}
	return out
}
