// Package scheduling holds the lesson rescheduling rules: the fixed slot
// catalog, interval overlap checks, change-set validation, room availability
// and alternative recommendations. Everything here is pure and safe for
// concurrent use; network-bound collaborators are injected as interfaces.
package scheduling

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	compactDatePattern = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	isoDatePattern     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T ].*)?$`)
	timePattern        = regexp.MustCompile(`^(\d{2}):(\d{2})(?::(\d{2}))?$`)
	intervalPattern    = regexp.MustCompile(`^\s*([0-9:]+)\s*-\s*([0-9:]+)\s*$`)
)

// CalendarDate is a day on the school calendar with no time or zone component.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// Ordering is the result of comparing two calendar dates.
type Ordering int

const (
	OrderBefore Ordering = -1
	OrderEqual  Ordering = 0
	OrderAfter  Ordering = 1
)

func (o Ordering) String() string {
	switch o {
	case OrderBefore:
		return "before"
	case OrderAfter:
		return "after"
	default:
		return "equal"
	}
}

// NewCalendarDate validates the components and builds a date.
func NewCalendarDate(year int, month time.Month, day int) (CalendarDate, error) {
	raw := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
	if year < 1 || year > 9999 {
		return CalendarDate{}, &ParseError{Kind: "date", Input: raw, Reason: "year out of range"}
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return CalendarDate{}, &ParseError{Kind: "date", Input: raw, Reason: "no such calendar day"}
	}
	return CalendarDate{Year: year, Month: month, Day: day}, nil
}

// DateOf takes the calendar day of t in t's own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// Today returns the current calendar day in loc.
func Today(loc *time.Location) CalendarDate {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// CompareDates orders a and b by (year, month, day).
func CompareDates(a, b CalendarDate) Ordering {
	switch {
	case a.Year != b.Year:
		return orderInts(a.Year, b.Year)
	case a.Month != b.Month:
		return orderInts(int(a.Month), int(b.Month))
	default:
		return orderInts(a.Day, b.Day)
	}
}

func orderInts(a, b int) Ordering {
	switch {
	case a < b:
		return OrderBefore
	case a > b:
		return OrderAfter
	default:
		return OrderEqual
	}
}

// IsPast reports whether date falls strictly before today. Today itself is not past.
func IsPast(date, today CalendarDate) bool {
	return CompareDates(date, today) == OrderBefore
}

func (c CalendarDate) Compare(other CalendarDate) Ordering { return CompareDates(c, other) }
func (c CalendarDate) Before(other CalendarDate) bool      { return CompareDates(c, other) == OrderBefore }
func (c CalendarDate) After(other CalendarDate) bool       { return CompareDates(c, other) == OrderAfter }
func (c CalendarDate) Equal(other CalendarDate) bool       { return c == other }

// IsZero reports whether the date was never set.
func (c CalendarDate) IsZero() bool { return c == CalendarDate{} }

// Time returns local midnight of the date in loc.
func (c CalendarDate) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(c.Year, c.Month, c.Day, 0, 0, 0, 0, loc)
}

// AddDays shifts the date by n calendar days.
func (c CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(c.Time(time.UTC).AddDate(0, 0, n))
}

func (c CalendarDate) Weekday() time.Weekday { return c.Time(time.UTC).Weekday() }

func (c CalendarDate) String() string {
	if c.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", c.Year, int(c.Month), c.Day)
}

// MarshalJSON renders the date as YYYY-MM-DD.
func (c CalendarDate) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts any format understood by ParseFlexibleDate.
func (c *CalendarDate) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*c = CalendarDate{}
		return nil
	}
	parsed, err := ParseFlexibleDate(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Scan implements sql.Scanner for DATE columns.
func (c *CalendarDate) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*c = CalendarDate{}
		return nil
	case time.Time:
		*c = DateOf(v)
		return nil
	case []byte:
		return c.scanString(string(v))
	case string:
		return c.scanString(v)
	default:
		return fmt.Errorf("scan calendar date: unsupported type %T", value)
	}
}

func (c *CalendarDate) scanString(raw string) error {
	parsed, err := ParseFlexibleDate(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer.
func (c CalendarDate) Value() (driver.Value, error) {
	if c.IsZero() {
		return nil, nil
	}
	return c.String(), nil
}

// ParseFlexibleDate reads the date shapes upstream sources emit: ISO strings
// (optionally with a time part, whose calendar day is kept as written),
// YYYYMMDD strings, and [y, m, d, ...] arrays.
func ParseFlexibleDate(input interface{}) (CalendarDate, error) {
	switch v := input.(type) {
	case CalendarDate:
		return NewCalendarDate(v.Year, v.Month, v.Day)
	case *CalendarDate:
		if v == nil {
			return CalendarDate{}, &ParseError{Kind: "date", Input: "<nil>", Reason: "empty input"}
		}
		return NewCalendarDate(v.Year, v.Month, v.Day)
	case time.Time:
		return DateOf(v), nil
	case string:
		return parseDateString(v)
	case []int:
		return dateFromParts(len(v), func(i int) (int, bool) { return v[i], true }, v)
	case []int64:
		return dateFromParts(len(v), func(i int) (int, bool) { return int(v[i]), true }, v)
	case []float64:
		return dateFromParts(len(v), func(i int) (int, bool) { return toInt(v[i]) }, v)
	case []interface{}:
		return dateFromParts(len(v), func(i int) (int, bool) { return toInt(v[i]) }, v)
	default:
		return CalendarDate{}, &ParseError{Kind: "date", Input: fmt.Sprintf("%v", input), Reason: fmt.Sprintf("unsupported type %T", input)}
	}
}

func parseDateString(raw string) (CalendarDate, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return CalendarDate{}, &ParseError{Kind: "date", Input: raw, Reason: "empty input"}
	}
	m := compactDatePattern.FindStringSubmatch(s)
	if m == nil {
		m = isoDatePattern.FindStringSubmatch(s)
	}
	if m == nil {
		return CalendarDate{}, &ParseError{Kind: "date", Input: raw, Reason: "unrecognized format"}
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return NewCalendarDate(y, time.Month(mo), d)
}

func dateFromParts(n int, at func(int) (int, bool), raw interface{}) (CalendarDate, error) {
	if n < 3 {
		return CalendarDate{}, &ParseError{Kind: "date", Input: fmt.Sprintf("%v", raw), Reason: "date array needs year, month and day"}
	}
	parts := [3]int{}
	for i := 0; i < 3; i++ {
		v, ok := at(i)
		if !ok {
			return CalendarDate{}, &ParseError{Kind: "date", Input: fmt.Sprintf("%v", raw), Reason: "date array holds a non-integer"}
		}
		parts[i] = v
	}
	return NewCalendarDate(parts[0], time.Month(parts[1]), parts[2])
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// TimeOfDay is a 24-hour wall clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates 0 <= hour < 24 and 0 <= minute < 60.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, &ParseError{Kind: "time", Input: fmt.Sprintf("%02d:%02d", hour, minute), Reason: "out of range"}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// NormalizeTime parses HH:mm or HH:mm:ss, dropping the seconds.
func NormalizeTime(input string) (TimeOfDay, error) {
	m := timePattern.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return TimeOfDay{}, &ParseError{Kind: "time", Input: input, Reason: "expected HH:mm or HH:mm:ss"}
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	if m[3] != "" {
		if sec, _ := strconv.Atoi(m[3]); sec > 59 {
			return TimeOfDay{}, &ParseError{Kind: "time", Input: input, Reason: "seconds out of range"}
		}
	}
	t, err := NewTimeOfDay(h, mi)
	if err != nil {
		return TimeOfDay{}, &ParseError{Kind: "time", Input: input, Reason: "out of range"}
	}
	return t, nil
}

// Minutes is the offset from midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) Before(other TimeOfDay) bool { return t.Minutes() < other.Minutes() }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func timeFromMinutes(m int) TimeOfDay { return TimeOfDay{Hour: m / 60, Minute: m % 60} }

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NormalizeTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan implements sql.Scanner for TIME columns.
func (t *TimeOfDay) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		*t = TimeOfDay{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("scan time of day: unsupported type %T", value)
	}
}

func (t *TimeOfDay) scanString(raw string) error {
	parsed, err := NormalizeTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) { return t.String(), nil }

// TimeInterval is the half-open range [Start, End).
type TimeInterval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// NewInterval enforces Start < End.
func NewInterval(start, end TimeOfDay) (TimeInterval, error) {
	if !start.Before(end) {
		return TimeInterval{}, &ParseError{Kind: "interval", Input: start.String() + "-" + end.String(), Reason: "start must be before end"}
	}
	return TimeInterval{Start: start, End: end}, nil
}

// ParseInterval reads "HH:mm-HH:mm".
func ParseInterval(raw string) (TimeInterval, error) {
	m := intervalPattern.FindStringSubmatch(raw)
	if m == nil {
		return TimeInterval{}, &ParseError{Kind: "interval", Input: raw, Reason: "expected HH:mm-HH:mm"}
	}
	start, err := NormalizeTime(m[1])
	if err != nil {
		return TimeInterval{}, err
	}
	end, err := NormalizeTime(m[2])
	if err != nil {
		return TimeInterval{}, err
	}
	return NewInterval(start, end)
}

// ParseTimes builds an interval from separate start and end strings.
func ParseTimes(start, end string) (TimeInterval, error) {
	s, err := NormalizeTime(start)
	if err != nil {
		return TimeInterval{}, err
	}
	e, err := NormalizeTime(end)
	if err != nil {
		return TimeInterval{}, err
	}
	return NewInterval(s, e)
}

func (i TimeInterval) Duration() time.Duration {
	return time.Duration(i.End.Minutes()-i.Start.Minutes()) * time.Minute
}

func (i TimeInterval) String() string { return i.Start.String() + "-" + i.End.String() }

// UnmarshalJSON rejects intervals that are empty or reversed.
func (i *TimeInterval) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start TimeOfDay `json:"start"`
		End   TimeOfDay `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewInterval(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// SlotDuration is the length of every catalog slot.
const SlotDuration = 120 * time.Minute

// Slot is one of the fixed daily teaching periods, numbered from 1.
type Slot struct {
	Number   int          `json:"number"`
	Interval TimeInterval `json:"interval"`
}

var slotCatalog = []Slot{
	{Number: 1, Interval: TimeInterval{Start: TimeOfDay{7, 30}, End: TimeOfDay{9, 30}}},
	{Number: 2, Interval: TimeInterval{Start: TimeOfDay{9, 50}, End: TimeOfDay{11, 50}}},
	{Number: 3, Interval: TimeInterval{Start: TimeOfDay{13, 30}, End: TimeOfDay{15, 30}}},
	{Number: 4, Interval: TimeInterval{Start: TimeOfDay{15, 50}, End: TimeOfDay{17, 50}}},
	{Number: 5, Interval: TimeInterval{Start: TimeOfDay{18, 0}, End: TimeOfDay{20, 0}}},
	{Number: 6, Interval: TimeInterval{Start: TimeOfDay{20, 10}, End: TimeOfDay{22, 10}}},
}

// Slots returns a copy of the slot catalog in daily order.
func Slots() []Slot {
	out := make([]Slot, len(slotCatalog))
	copy(out, slotCatalog)
	return out
}

// SlotByNumber looks up a slot by its 1-based number.
func SlotByNumber(n int) (Slot, bool) {
	if n < 1 || n > len(slotCatalog) {
		return Slot{}, false
	}
	return slotCatalog[n-1], true
}

// SlotFor finds the catalog slot with exactly this interval.
func SlotFor(interval TimeInterval) (Slot, bool) {
	for _, s := range slotCatalog {
		if s.Interval == interval {
			return s, true
		}
	}
	return Slot{}, false
}

// WeekDates returns Monday through Sunday of the week containing date.
func WeekDates(date CalendarDate) [7]CalendarDate {
	offset := (int(date.Weekday()) + 6) % 7
	monday := date.AddDays(-offset)
	var week [7]CalendarDate
	for i := range week {
		week[i] = monday.AddDays(i)
	}
	return week
}

// ParseWeekday accepts English day names in any case, full or three-letter.
func ParseWeekday(name string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if key == full || key == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, &ParseError{Kind: "weekday", Input: name, Reason: "unknown day name"}
}
