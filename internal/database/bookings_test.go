package database

import (
	"context"
	"testing"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(providerID int64, start time.Time, minutes int) *models.Booking {
	return &models.Booking{
		ProviderID:  providerID,
		ClientName:  "Ann",
		ClientEmail: "ann@example.com",
		StartAt:     start,
		Duration:    minutes,
		Status:      models.StatusBooked,
		Price:       40,
	}
}

func insertBooking(t *testing.T, db *DB, b *models.Booking) *models.Booking {
	t.Helper()
	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		return tx.CreateBooking(context.Background(), b)
	})
	require.NoError(t, err)
	return b
}

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	p := seedProvider(t, db, "create")
	ctx := context.Background()

	start := time.Date(2030, 1, 7, 9, 30, 15, 500, time.UTC)
	b := insertBooking(t, db, newBooking(p.ID, start, 45))
	require.NotZero(t, b.ID)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, start.Truncate(time.Second), got.StartAt)
	assert.Equal(t, 45, got.Duration)
	assert.Equal(t, models.StatusBooked, got.Status)
	assert.Nil(t, got.ClientID)
	assert.Equal(t, got.StartAt.Add(45*time.Minute), got.EndAt())

	_, err = db.GetBooking(ctx, b.ID+100)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestListActiveBookingsOverlap(t *testing.T) {
	db := setupTestDB(t)
	p := seedProvider(t, db, "overlap")
	other := seedProvider(t, db, "other")
	ctx := context.Background()

	day := time.Date(2030, 1, 7, 0, 0, 0, 0, time.UTC)
	insertBooking(t, db, newBooking(p.ID, day.Add(9*time.Hour), 60))  // 09:00-10:00
	insertBooking(t, db, newBooking(p.ID, day.Add(11*time.Hour), 60)) // 11:00-12:00
	cancelled := newBooking(p.ID, day.Add(10*time.Hour), 60)
	cancelled.Status = models.StatusCancelled
	insertBooking(t, db, cancelled)
	insertBooking(t, db, newBooking(other.ID, day.Add(10*time.Hour), 60))

	// [10:00, 11:00) touches both active bookings without overlapping either.
	got, err := db.ListActiveBookings(ctx, p.ID, day.Add(10*time.Hour), day.Add(11*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = db.ListActiveBookings(ctx, p.ID, day.Add(9*time.Hour+30*time.Minute), day.Add(11*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	all, err := db.ListBookings(ctx, p.ID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 3, "export listing includes cancelled bookings")
}

func TestSetBookingStatusIsConditional(t *testing.T) {
	db := setupTestDB(t)
	p := seedProvider(t, db, "status")
	ctx := context.Background()
	b := insertBooking(t, db, newBooking(p.ID, time.Now().Add(time.Hour), 30))

	err := db.WithTx(ctx, func(tx domain.Tx) error {
		ok, err := tx.SetBookingStatus(ctx, b.ID, models.StatusBooked, models.StatusCompleted, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.SetBookingStatus(ctx, b.ID, models.StatusBooked, models.StatusCancelled, time.Now())
		require.NoError(t, err)
		assert.False(t, ok, "row is no longer booked")
		return nil
	})
	require.NoError(t, err)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestListDueBookings(t *testing.T) {
	db := setupTestDB(t)
	p := seedProvider(t, db, "due")
	other := seedProvider(t, db, "due-other")
	ctx := context.Background()

	now := time.Date(2030, 1, 7, 12, 0, 0, 0, time.UTC)
	ended := insertBooking(t, db, newBooking(p.ID, now.Add(-2*time.Hour), 60))
	endsNow := insertBooking(t, db, newBooking(p.ID, now.Add(-time.Hour), 60))
	insertBooking(t, db, newBooking(p.ID, now.Add(-30*time.Minute), 60)) // still running
	insertBooking(t, db, newBooking(other.ID, now.Add(-3*time.Hour), 60))

	err := db.WithTx(ctx, func(tx domain.Tx) error {
		due, err := tx.ListDueBookings(ctx, p.ID, now)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, ended.ID, due[0].ID)
		assert.Equal(t, endsNow.ID, due[1].ID)

		all, err := tx.ListDueBookings(ctx, 0, now)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		return nil
	})
	require.NoError(t, err)
}

func TestSetBookingExternalRef(t *testing.T) {
	db := setupTestDB(t)
	p := seedProvider(t, db, "extref")
	ctx := context.Background()
	b := insertBooking(t, db, newBooking(p.ID, time.Now().Add(time.Hour), 30))

	require.NoError(t, db.SetBookingExternalRef(ctx, b.ID, "evt-42"))
	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-42", got.ExternalRef)
}
