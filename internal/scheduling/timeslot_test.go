package scheduling

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlexibleDateAcceptsUpstreamShapes(t *testing.T) {
	want := CalendarDate{Year: 2025, Month: time.June, Day: 10}
	inputs := []interface{}{
		[]int{2025, 6, 10},
		[]interface{}{float64(2025), float64(6), float64(10), float64(7), float64(30)},
		"2025-06-10",
		"2025-06-10T17:45:00Z",
		"20250610",
		time.Date(2025, 6, 10, 23, 0, 0, 0, time.UTC),
	}
	for _, in := range inputs {
		got, err := ParseFlexibleDate(in)
		require.NoError(t, err, "%v", in)
		assert.Equal(t, want, got, "%v", in)
	}
}

func TestParseFlexibleDateRejectsGarbage(t *testing.T) {
	inputs := []interface{}{"", "10/06/2025", "2025-13-01", "20250230", []int{2025, 6}, 42, []interface{}{"x", 1, 2}}
	for _, in := range inputs {
		_, err := ParseFlexibleDate(in)
		var parseErr *ParseError
		assert.True(t, errors.As(err, &parseErr), "%v should fail with ParseError", in)
	}
}

func TestIsPastTreatsTodayAsValid(t *testing.T) {
	today := mustDate(t, "2025-06-01")
	assert.True(t, IsPast(mustDate(t, "2025-05-31"), today))
	assert.False(t, IsPast(today, today))
	assert.False(t, IsPast(mustDate(t, "2025-06-02"), today))
}

func TestCompareDates(t *testing.T) {
	a := mustDate(t, "2024-12-31")
	b := mustDate(t, "2025-01-01")
	assert.Equal(t, OrderBefore, CompareDates(a, b))
	assert.Equal(t, OrderAfter, CompareDates(b, a))
	assert.Equal(t, OrderEqual, CompareDates(a, a))
	assert.Equal(t, b, a.AddDays(1))
}

func TestNormalizeTime(t *testing.T) {
	got, err := NormalizeTime("07:30:59")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 30}, got)

	for _, bad := range []string{"7:30", "24:00", "07:60", "07:30:61", "0730"} {
		_, err := NormalizeTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseIntervalRequiresStartBeforeEnd(t *testing.T) {
	iv, err := ParseInterval("07:30 - 09:30")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, iv.Duration())

	_, err = ParseInterval("09:30-09:30")
	assert.Error(t, err)
	_, err = ParseInterval("10:00-09:00")
	assert.Error(t, err)
}

func TestSlotCatalog(t *testing.T) {
	slots := Slots()
	require.Len(t, slots, 6)
	for i, s := range slots {
		assert.Equal(t, i+1, s.Number)
		assert.Equal(t, SlotDuration, s.Interval.Duration())
		if i > 0 {
			assert.False(t, IntervalsOverlap(slots[i-1].Interval, s.Interval))
		}
	}

	third, ok := SlotByNumber(3)
	require.True(t, ok)
	assert.Equal(t, "13:30-15:30", third.Interval.String())

	found, ok := SlotFor(mustInterval(t, "20:10-22:10"))
	require.True(t, ok)
	assert.Equal(t, 6, found.Number)

	_, ok = SlotByNumber(7)
	assert.False(t, ok)

	slots[0].Number = 99
	first, _ := SlotByNumber(1)
	assert.Equal(t, 1, first.Number)
}

func TestWeekDatesStartOnMonday(t *testing.T) {
	week := WeekDates(mustDate(t, "2025-06-15"))
	assert.Equal(t, mustDate(t, "2025-06-09"), week[0])
	assert.Equal(t, time.Monday, week[0].Weekday())
	assert.Equal(t, mustDate(t, "2025-06-15"), week[6])
}

func TestCalendarDateJSON(t *testing.T) {
	var payload struct {
		A CalendarDate `json:"a"`
		B CalendarDate `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"20250610","b":[2025,6,10]}`), &payload))
	assert.Equal(t, payload.A, payload.B)

	out, err := json.Marshal(payload.A)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-06-10"`, string(out))
}

func TestTimeIntervalJSONRejectsReversed(t *testing.T) {
	var iv TimeInterval
	assert.Error(t, json.Unmarshal([]byte(`{"start":"10:00","end":"09:00"}`), &iv))
	require.NoError(t, json.Unmarshal([]byte(`{"start":"07:30:00","end":"09:30"}`), &iv))
	assert.Equal(t, "07:30-09:30", iv.String())
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("Wednesday")
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, d)
	d, err = ParseWeekday("fri")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d)
	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}

func TestCalendarDateScan(t *testing.T) {
	var d CalendarDate
	require.NoError(t, d.Scan(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-06-10", d.String())
	require.NoError(t, d.Scan([]byte("2025-06-11")))
	assert.Equal(t, "2025-06-11", d.String())

	var tod TimeOfDay
	require.NoError(t, tod.Scan([]byte("13:30:00")))
	assert.Equal(t, "13:30", tod.String())
}
