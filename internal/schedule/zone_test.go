package schedule

import (
	"testing"
	"time"

	"sessionbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZone(t *testing.T) {
	z, err := LoadZone("Europe/Moscow")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", z.Name())

	date, err := z.ParseDate("2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, z.Weekday(date))

	at, ok := z.At(date, models.MustTimeOfDay("09:00"))
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC), at.UTC())
	assert.Equal(t, "09:00", z.Label(at))
	assert.Equal(t, "2025-01-10", z.LocalDate(at))

	start, end := z.DayBounds(at)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestLoadZone(t *testing.T) {
	z, err := LoadZone("")
	require.NoError(t, err)
	assert.Equal(t, "UTC", z.Name())

	_, err = LoadZone("Mars/Olympus_Mons")
	assert.Error(t, err)

	_, err = z.ParseDate("03/03/2025")
	assert.Error(t, err)
}
