package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeOfDay(t *testing.T) {
	t.Run("Parse", func(t *testing.T) {
		tod, err := ParseTimeOfDay("09:30")
		require.NoError(t, err)
		assert.Equal(t, TimeOfDay(570), tod)
		assert.Equal(t, "09:30", tod.String())

		tod, err = ParseTimeOfDay("7:05:00")
		require.NoError(t, err)
		assert.Equal(t, "07:05", tod.String())

		tod, err = ParseTimeOfDay("24:00")
		require.NoError(t, err)
		assert.Equal(t, TimeOfDay(MinutesPerDay), tod)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, in := range []string{"", "9", "aa:00", "10:7", "10:60", "24:01", "-1:00", "1:2:3:4"} {
			_, err := ParseTimeOfDay(in)
			assert.Error(t, err, in)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		var w Window
		require.NoError(t, json.Unmarshal([]byte(`{"enabled":true,"start":"09:00","end":"17:00"}`), &w))
		assert.True(t, w.Enabled)
		assert.True(t, w.Valid())
		assert.Equal(t, MustTimeOfDay("17:00"), w.End)

		data, err := json.Marshal(w)
		require.NoError(t, err)
		assert.JSONEq(t, `{"enabled":true,"start":"09:00","end":"17:00"}`, string(data))
	})
}

func TestWeeklySchedule(t *testing.T) {
	var ws WeeklySchedule
	ws.Days[time.Monday] = []Window{
		{Enabled: false, Start: MustTimeOfDay("08:00"), End: MustTimeOfDay("09:00")},
		{Enabled: true, Start: MustTimeOfDay("10:00"), End: MustTimeOfDay("12:00")},
	}
	ws.Days[time.Tuesday] = []Window{{Enabled: true, Start: MustTimeOfDay("12:00"), End: MustTimeOfDay("11:00")}}

	assert.True(t, ws.HasEnabled(time.Monday))
	assert.False(t, ws.HasEnabled(time.Tuesday), "inverted window is not usable")
	assert.False(t, ws.HasEnabled(time.Sunday))
	assert.Len(t, ws.Windows(time.Monday), 2)

	data, err := json.Marshal(ws)
	require.NoError(t, err)

	var decoded map[string][]Window
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 7)
	assert.Len(t, decoded["monday"], 2)
	assert.Empty(t, decoded["sunday"])
}

func TestParseWeekday(t *testing.T) {
	day, ok := ParseWeekday("Friday")
	assert.True(t, ok)
	assert.Equal(t, time.Friday, day)

	day, ok = ParseWeekday("sat")
	assert.True(t, ok)
	assert.Equal(t, time.Saturday, day)

	_, ok = ParseWeekday("someday")
	assert.False(t, ok)
}

func TestBookingHelpers(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	b := &Booking{ProviderID: 7, StartAt: start, Duration: 45, Status: StatusBooked}

	assert.Equal(t, start.Add(45*time.Minute), b.EndAt())
	assert.True(t, b.IsActive())
	assert.True(t, b.IsOwnedBy(7))
	assert.False(t, b.IsOwnedBy(8))

	b.Status = StatusCancelled
	assert.False(t, b.IsActive())
}
