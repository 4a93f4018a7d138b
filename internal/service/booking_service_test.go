package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/events"
	"sessionbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.bookings.CreateBooking(ctx, bookingRequest("anna", " Alice@Example.com ", "+49 111", at(t, "09:00")))
	require.NoError(t, err)

	b := res.Booking
	assert.NotZero(t, b.ID)
	assert.Equal(t, models.StatusBooked, b.Status)
	assert.Equal(t, 60, b.Duration)
	assert.Equal(t, 50.0, b.Price)
	assert.Equal(t, "alice@example.com", b.ClientEmail)
	assert.True(t, b.StartAt.Equal(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)))
	assert.True(t, res.ClientCreated)
	require.NotNil(t, b.ClientID)
	assert.Equal(t, res.Client.ID, *b.ClientID)
	require.NotNil(t, res.Client.DefaultPrice)
	assert.Equal(t, 50.0, *res.Client.DefaultPrice)

	stored, err := f.db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.StartAt, stored.StartAt)

	tasks, err := f.db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.TaskNotify, tasks[0].TaskType)

	var payload models.NotifyPayload
	require.NoError(t, json.Unmarshal([]byte(tasks[0].Payload), &payload))
	assert.Equal(t, models.TemplateBookingConfirmed, payload.Template)
	assert.Equal(t, "email:alice@example.com", payload.Recipient)
	assert.Equal(t, "09:00", payload.Data["time"])
	assert.Equal(t, "2025-03-10", payload.Data["date"])

	f.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	assert.Equal(t, []string{events.EventBookingCreated}, f.publishedEvents())
}

func TestCreateBookingRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, "alice@example.com", "10:00")

	_, err := f.bookings.CreateBooking(ctx, bookingRequest("anna", "dave@example.com", "", at(t, "10:30")))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	// half-open intervals: touching bookings do not overlap
	_, err = f.bookings.CreateBooking(ctx, bookingRequest("anna", "bob@example.com", "", at(t, "11:00")))
	assert.NoError(t, err)
	_, err = f.bookings.CreateBooking(ctx, bookingRequest("anna", "carol@example.com", "", at(t, "09:00")))
	assert.NoError(t, err)

	clients, err := f.db.ListClients(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 3, "the rejected request leaves no client behind")
}

func TestCreateBookingDeduplicatesClientByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.bookings.CreateBooking(ctx, bookingRequest("anna", "ann@example.com", "111", at(t, "09:00")))
	require.NoError(t, err)

	req := bookingRequest("anna", "ANN@example.com", "222", at(t, "10:15"))
	req.ClientName = "Somebody Else"
	second, err := f.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	assert.True(t, first.ClientCreated)
	assert.False(t, second.ClientCreated)
	assert.Equal(t, first.Client.ID, second.Client.ID)
	assert.Equal(t, "111", second.Client.Phone)
	assert.Equal(t, "111", second.Booking.ClientPhone)
	assert.Equal(t, first.Client.Name, second.Booking.ClientName)

	clients, err := f.db.ListClients(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Len(t, clients, 1)
}

func TestCreateBookingClientsArePerProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.seedProvider(t, &models.Provider{Slug: "boris", Timezone: "Europe/Berlin"})

	a, err := f.bookings.CreateBooking(ctx, bookingRequest("anna", "ann@example.com", "", at(t, "09:00")))
	require.NoError(t, err)
	b, err := f.bookings.CreateBooking(ctx, bookingRequest(other.Slug, "ann@example.com", "", at(t, "09:00")))
	require.NoError(t, err)

	assert.NotEqual(t, a.Client.ID, b.Client.ID)
	assert.True(t, b.ClientCreated)
}

func TestCreateBookingOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	duration := 90
	price := 80.0
	req := bookingRequest("anna", "alice@example.com", "", at(t, "09:00"))
	req.DurationMinutes = &duration
	req.Price = &price

	res, err := f.bookings.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 90, res.Booking.Duration)
	assert.Equal(t, 80.0, res.Booking.Price)

	// the 90-minute session now covers 10:15
	_, err = f.bookings.CreateBooking(ctx, bookingRequest("anna", "bob@example.com", "", at(t, "10:15")))
	assert.ErrorIs(t, err, domain.ErrSlotUnavailable)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	negative := -1.0
	zero := 0

	tests := []struct {
		name   string
		mutate func(r *models.CreateBookingRequest)
		want   error
	}{
		{"missing name", func(r *models.CreateBookingRequest) { r.ClientName = "  " }, domain.ErrInvalidRequest},
		{"bad email", func(r *models.CreateBookingRequest) { r.ClientEmail = "not-an-email" }, domain.ErrInvalidRequest},
		{"missing start", func(r *models.CreateBookingRequest) { r.StartAt = time.Time{} }, domain.ErrInvalidRequest},
		{"negative price", func(r *models.CreateBookingRequest) { r.Price = &negative }, domain.ErrInvalidRequest},
		{"zero duration", func(r *models.CreateBookingRequest) { r.DurationMinutes = &zero }, domain.ErrInvalidRequest},
		{"past start", func(r *models.CreateBookingRequest) { r.StartAt = sundayNoon.Add(-time.Hour) }, domain.ErrPastStart},
		{"too far", func(r *models.CreateBookingRequest) { r.StartAt = sundayNoon.AddDate(0, 0, 366) }, domain.ErrStartTooFar},
		{"before working hours", func(r *models.CreateBookingRequest) { r.StartAt = at(t, "03:00") }, domain.ErrOutsideSchedule},
		{"at window end", func(r *models.CreateBookingRequest) { r.StartAt = at(t, "12:00") }, domain.ErrOutsideSchedule},
		{"closed weekday", func(r *models.CreateBookingRequest) { r.StartAt = at(t, "09:00").AddDate(0, 0, 1) }, domain.ErrOutsideSchedule},
		{"unknown provider", func(r *models.CreateBookingRequest) { r.ProviderSlug = "nobody" }, domain.ErrProviderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bookingRequest("anna", "alice@example.com", "", at(t, "09:00"))
			tt.mutate(req)

			res, err := f.bookings.CreateBooking(ctx, req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}

	t.Run("field name in message", func(t *testing.T) {
		req := bookingRequest("anna", "nope", "", at(t, "09:00"))
		_, err := f.bookings.CreateBooking(ctx, req)
		assert.Contains(t, domain.AsError(err).Message, "client_email")
	})

	assert.Empty(t, f.publishedEvents())
}

func TestCreateBookingOutboxRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.seedProvider(t, &models.Provider{
		Slug:           "carl",
		Timezone:       "Europe/Berlin",
		Calendar:       &models.CalendarCredentials{CalendarID: "carl@group.calendar.google.com", Subject: "carl@example.com"},
		TelegramChatID: 42,
	})

	var dispatched []*models.SyncTask
	f.dispatcher.ExpectedCalls = nil
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		dispatched = args.Get(1).([]*models.SyncTask)
	}).Return()

	res, err := f.bookings.CreateBooking(ctx, bookingRequest(p.Slug, "alice@example.com", "", at(t, "09:00")))
	require.NoError(t, err)

	tasks, err := f.db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, models.TaskCalendarCreate, tasks[0].TaskType)
	assert.Equal(t, models.TaskNotify, tasks[1].TaskType)
	assert.Equal(t, models.TaskNotify, tasks[2].TaskType)
	for _, task := range tasks {
		assert.Equal(t, res.Booking.ID, task.BookingID)
	}

	var calendar models.CalendarPayload
	require.NoError(t, json.Unmarshal([]byte(tasks[0].Payload), &calendar))
	assert.Equal(t, "carl@example.com", calendar.Calendar.Subject)
	require.NotNil(t, calendar.Event)
	assert.True(t, calendar.Event.End.Equal(res.Booking.EndAt()))
	assert.Equal(t, "Europe/Berlin", calendar.Event.Timezone)

	var providerNote models.NotifyPayload
	require.NoError(t, json.Unmarshal([]byte(tasks[2].Payload), &providerNote))
	assert.Equal(t, "telegram:42", providerNote.Recipient)
	assert.Equal(t, models.TemplateProviderBooked, providerNote.Template)

	require.Len(t, dispatched, 3)
	assert.NotZero(t, dispatched[0].ID)
}

func TestCreateBookingRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	limiter := new(mockLimiter)
	f.bookings.collab.Limiter = limiter
	f.bookings.cfg.BookingRateLimit = 3
	f.bookings.cfg.BookingRateWindow = time.Hour

	limiter.On("CheckRateLimit", mock.Anything, "booking:alice@example.com", 3, time.Hour).Return(false, nil).Once()
	_, err := f.bookings.CreateBooking(ctx, bookingRequest("anna", "alice@example.com", "", at(t, "09:00")))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	// limiter outages do not block bookings
	limiter.On("CheckRateLimit", mock.Anything, "booking:alice@example.com", 3, time.Hour).Return(false, errors.New("redis down")).Once()
	_, err = f.bookings.CreateBooking(ctx, bookingRequest("anna", "alice@example.com", "", at(t, "09:00")))
	assert.NoError(t, err)
	limiter.AssertExpectations(t)
}

func TestCreateBookingStoreFailure(t *testing.T) {
	repo := new(MockRepository)
	logger := zerolog.New(io.Discard)
	s := NewBookingService(repo, Collaborators{}, testSchedulingConfig(), &logger)
	s.now = func() time.Time { return sundayNoon }

	provider := &models.Provider{ID: 1, Slug: "anna", Timezone: "Europe/Berlin", Schedule: mondayMorning()}
	repo.On("GetProviderBySlug", mock.Anything, "anna").Return(provider, nil)
	repo.On("WithTx", mock.Anything, mock.Anything).Return(errors.New("database is locked"))

	res, err := s.CreateBooking(context.Background(), bookingRequest("anna", "alice@example.com", "", at(t, "09:00")))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	repo.AssertExpectations(t)
}

func TestCreateBookingClientCreatedConcurrently(t *testing.T) {
	repo := new(MockRepository)
	tx := new(MockTx)
	logger := zerolog.New(io.Discard)
	s := NewBookingService(repo, Collaborators{}, testSchedulingConfig(), &logger)
	s.now = func() time.Time { return sundayNoon }

	provider := &models.Provider{ID: 1, Slug: "anna", Timezone: "Europe/Berlin", SessionMinutes: 60, Schedule: mondayMorning()}
	existing := &models.Client{ID: 42, ProviderID: 1, Name: "Alice", Email: "alice@example.com", Phone: "+49 111"}

	repo.On("GetProviderBySlug", mock.Anything, "anna").Return(provider, nil)
	repo.On("WithTx", mock.Anything, mock.Anything).Return(tx)
	tx.On("ListActiveBookings", mock.Anything, int64(1), mock.Anything, mock.Anything).Return([]*models.Booking{}, nil)
	tx.On("GetClientByEmail", mock.Anything, int64(1), "alice@example.com").Return(nil, domain.ErrClientNotFound).Once()
	tx.On("CreateClient", mock.Anything, mock.Anything).Return(domain.ErrClientExists).Once()
	tx.On("GetClientByEmail", mock.Anything, int64(1), "alice@example.com").Return(existing, nil).Once()
	tx.On("CreateBooking", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Booking).ID = 7
	}).Return(nil)
	tx.On("CreateSyncTask", mock.Anything, mock.Anything).Return(nil)

	res, err := s.CreateBooking(context.Background(), bookingRequest("anna", "alice@example.com", "+49 222", at(t, "09:00")))
	require.NoError(t, err)
	assert.False(t, res.ClientCreated)
	assert.Equal(t, existing, res.Client)
	assert.Equal(t, int64(7), res.Booking.ID)
	require.NotNil(t, res.Booking.ClientID)
	assert.Equal(t, int64(42), *res.Booking.ClientID)
	// the stored profile wins over the request
	assert.Equal(t, "+49 111", res.Booking.ClientPhone)

	repo.AssertExpectations(t)
	tx.AssertExpectations(t)
	tx.AssertNumberOfCalls(t, "GetClientByEmail", 2)
}

func TestCreateBookingClientLookupFailsAfterConflict(t *testing.T) {
	repo := new(MockRepository)
	tx := new(MockTx)
	logger := zerolog.New(io.Discard)
	s := NewBookingService(repo, Collaborators{}, testSchedulingConfig(), &logger)
	s.now = func() time.Time { return sundayNoon }

	provider := &models.Provider{ID: 1, Slug: "anna", Timezone: "Europe/Berlin", SessionMinutes: 60, Schedule: mondayMorning()}
	repo.On("GetProviderBySlug", mock.Anything, "anna").Return(provider, nil)
	repo.On("WithTx", mock.Anything, mock.Anything).Return(tx)
	tx.On("ListActiveBookings", mock.Anything, int64(1), mock.Anything, mock.Anything).Return(nil, nil)
	tx.On("GetClientByEmail", mock.Anything, int64(1), "alice@example.com").Return(nil, domain.ErrClientNotFound).Once()
	tx.On("CreateClient", mock.Anything, mock.Anything).Return(domain.ErrClientExists).Once()
	tx.On("GetClientByEmail", mock.Anything, int64(1), "alice@example.com").Return(nil, errors.New("disk I/O error")).Once()

	res, err := s.CreateBooking(context.Background(), bookingRequest("anna", "alice@example.com", "", at(t, "09:00")))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrStoreFailure)
	tx.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestCreateBookingInsideWindowOffGrid(t *testing.T) {
	f := newFixture(t)

	// 09:40 is not a listed slot but lies inside the 09:00-12:00 window
	res := f.book(t, "alice@example.com", "09:40")
	assert.True(t, res.Booking.StartAt.Equal(at(t, "09:40")))
}

func TestConcurrentOverlappingBookings(t *testing.T) {
	f := newFixtureAt(t, filepath.Join(t.TempDir(), "bookings.db"))
	ctx := context.Background()

	starts := []time.Time{at(t, "10:00"), at(t, "10:30")}
	errs := make([]error, len(starts))
	var wg sync.WaitGroup
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start time.Time) {
			defer wg.Done()
			_, errs[i] = f.bookings.CreateBooking(ctx, bookingRequest("anna", "racer@example.com", "", start))
		}(i, start)
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrSlotUnavailable):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	bookings, err := f.db.ListActiveBookings(ctx, f.provider.ID, at(t, "00:00"), at(t, "23:59"))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestGetBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, "alice@example.com", "09:00")

	b, err := f.bookings.GetBooking(ctx, res.Booking.ID, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, b.ID)

	_, err = f.bookings.GetBooking(ctx, res.Booking.ID, f.provider.ID+100)
	assert.ErrorIs(t, err, domain.ErrNotBookingOwner)

	_, err = f.bookings.GetBooking(ctx, 9999, 0)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}
