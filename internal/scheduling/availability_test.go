package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAvailableExcludesOwnSubject(t *testing.T) {
	day := mustDate(t, "2025-06-10")
	room := Room{ID: "r1"}
	bookings := []Booking{{ID: "b1", Date: day, Interval: mustInterval(t, "07:30-09:30"), OwnerKind: OwnerRoom, OwnerID: "r1", SubjectID: "lesson-1"}}
	at := Placement{Date: day, Interval: mustInterval(t, "07:30-09:30")}

	assert.False(t, IsAvailable(room, at, bookings, ""))
	assert.True(t, IsAvailable(room, at, bookings, "lesson-1"))
	assert.True(t, IsAvailable(room, Placement{Date: day, Interval: mustInterval(t, "09:30-11:50")}, bookings, ""))
	assert.True(t, IsAvailable(Room{ID: "r2"}, at, bookings, ""))
}

func TestFilterAvailableAppliesConstraints(t *testing.T) {
	day := mustDate(t, "2025-06-10")
	at := Placement{Date: day, Interval: mustInterval(t, "09:50-11:50")}
	rooms := []Room{
		{ID: "small", Building: "A", Capacity: 20, Type: "lecture"},
		{ID: "busy", Building: "A", Capacity: 60, Type: "lecture"},
		{ID: "lab", Building: "A", Capacity: 60, Type: "lab"},
		{ID: "other", Building: "B", Capacity: 60, Type: "lecture"},
		{ID: "fit", Building: "A", Capacity: 45, Type: "lecture"},
	}
	bookings := map[string][]Booking{
		"busy": {{Date: day, Interval: mustInterval(t, "10:00-11:00"), OwnerKind: OwnerRoom, OwnerID: "busy"}},
	}

	got := FilterAvailable(rooms, at, bookings, RoomConstraints{MinCapacity: 40, Building: "A", Type: "lecture"})
	assert.Equal(t, []Room{rooms[4]}, got)

	assert.NotNil(t, FilterAvailable(nil, at, nil, RoomConstraints{}))
}

func TestScoreRoomComponents(t *testing.T) {
	prefs := RoomPreferences{MinCapacity: 40, PreferredBuilding: "A", PreferredType: "lab"}
	assert.Equal(t, 110, ScoreRoom(Room{Capacity: 40, Building: "A", Type: "lab", Status: RoomActive}, prefs))
	assert.Equal(t, 45, ScoreRoom(Room{Capacity: 45, Building: "B", Type: "lecture", Status: RoomInactive}, prefs))
	assert.Equal(t, 10, ScoreRoom(Room{Capacity: 400, Status: RoomActive}, prefs))
}

func TestScoreRoomDecreasesWithCapacityGap(t *testing.T) {
	prefs := RoomPreferences{MinCapacity: 40}
	prev := ScoreRoom(Room{Capacity: 40, Status: RoomActive}, prefs)
	for gap := 1; gap < 50; gap++ {
		above := ScoreRoom(Room{Capacity: 40 + gap, Status: RoomActive}, prefs)
		below := ScoreRoom(Room{Capacity: 40 - gap, Status: RoomActive}, RoomPreferences{MinCapacity: 40})
		assert.Less(t, above, prev)
		assert.Equal(t, above, below)
		prev = above
	}
}

func TestRankRoomsIsStableDescending(t *testing.T) {
	ranked := RankRooms([]Room{
		{ID: "x", Capacity: 30},
		{ID: "y", Capacity: 40},
		{ID: "z", Capacity: 30},
	}, RoomPreferences{MinCapacity: 40})
	ids := []string{ranked[0].Room.ID, ranked[1].Room.ID, ranked[2].Room.ID}
	assert.Equal(t, []string{"y", "x", "z"}, ids)
}
