package domain

import (
	"context"
	"io"
	"time"

	"sessionbook/internal/models"
)

// Repository is the transactional store shared by every scheduling component.
type Repository interface {
	GetProviderBySlug(ctx context.Context, slug string) (*models.Provider, error)
	GetProviderByID(ctx context.Context, id int64) (*models.Provider, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListActiveBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error)
	ListBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error)
	GetJobRun(ctx context.Context, name string) (time.Time, bool, error)
	SetJobRun(ctx context.Context, name string, at time.Time) error
	// WithTx runs fn in one serialized write transaction. fn's error rolls it back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the operations that must observe and mutate state atomically.
type Tx interface {
	ListActiveBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	// SetBookingStatus moves a booking from one status to another and reports
	// whether the row was still in the expected status.
	SetBookingStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error)
	ListDueBookings(ctx context.Context, providerID int64, now time.Time) ([]*models.Booking, error)

	GetClient(ctx context.Context, id int64) (*models.Client, error)
	GetClientByEmail(ctx context.Context, providerID int64, email string) (*models.Client, error)
	CreateClient(ctx context.Context, client *models.Client) error
	AddCompletedSessions(ctx context.Context, clientID int64, delta int, lastSessionAt *time.Time) error
	CompletedCounts(ctx context.Context, providerID int64) (recorded, actual map[int64]int, err error)
	SetCompletedSessions(ctx context.Context, clientID int64, n int) error

	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Dispatcher receives committed outbox rows for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, tasks ...*models.SyncTask)
}

// SlotCache is versioned per provider; Invalidate starts a new version.
type SlotCache interface {
	SlotVersion(ctx context.Context, providerID int64) (int64, error)
	GetSlots(ctx context.Context, providerID int64, date string) ([]models.Slot, bool, error)
	// SetSlots stores slots computed against version. Entries of an outdated version are never served.
	SetSlots(ctx context.Context, providerID, version int64, date string, slots []models.Slot, ttl time.Duration) error
	Invalidate(ctx context.Context, providerID int64) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type CalendarSync interface {
	CreateEvent(ctx context.Context, creds models.CalendarCredentials, event models.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, creds models.CalendarCredentials, externalID string) error
}

type Notifier interface {
	Send(ctx context.Context, template, recipient string, data map[string]string) (string, error)
}

type SlotService interface {
	ListSlots(ctx context.Context, providerSlug, date string) (*models.SlotListing, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req *models.CreateBookingRequest) (*models.BookingResult, error)
	GetBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.Booking, error)
}

type LifecycleService interface {
	CancelBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.CancelResult, error)
	CompleteBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.Booking, error)
	RunAutoCompletion(ctx context.Context, opts models.AutoCompleteOptions) (*models.AutoCompleteResult, error)
	ReconcileCounters(ctx context.Context, providerID int64) (*models.ReconcileResult, error)
}

type ExportService interface {
	ExportBookings(ctx context.Context, providerSlug string, callerProviderID int64, from, to time.Time, w io.Writer) error
}
