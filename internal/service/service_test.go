package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/database"
	"sessionbook/internal/domain"
	"sessionbook/internal/events"
	"sessionbook/internal/models"
	"sessionbook/internal/repository"
	"sessionbook/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRepository is a mock of the domain.Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetProviderBySlug(ctx context.Context, slug string) (*models.Provider, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Provider), args.Error(1)
}

func (m *MockRepository) GetProviderByID(ctx context.Context, id int64) (*models.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Provider), args.Error(1)
}

func (m *MockRepository) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockRepository) ListActiveBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, providerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *MockRepository) ListBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, providerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *MockRepository) GetJobRun(ctx context.Context, name string) (time.Time, bool, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(time.Time), args.Bool(1), args.Error(2)
}

func (m *MockRepository) SetJobRun(ctx context.Context, name string, at time.Time) error {
	args := m.Called(ctx, name, at)
	return args.Error(0)
}

// WithTx runs fn against the returned value when it is a domain.Tx, otherwise returns it as the error.
func (m *MockRepository) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	args := m.Called(ctx, fn)
	if tx, ok := args.Get(0).(domain.Tx); ok {
		return fn(tx)
	}
	return args.Error(0)
}

// MockTx is a mock of the domain.Tx interface
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ListActiveBookings(ctx context.Context, providerID int64, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, providerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *MockTx) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockTx) CreateBooking(ctx context.Context, booking *models.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockTx) SetBookingStatus(ctx context.Context, id int64, from, to string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) ListDueBookings(ctx context.Context, providerID int64, now time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, providerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *MockTx) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockTx) GetClientByEmail(ctx context.Context, providerID int64, email string) (*models.Client, error) {
	args := m.Called(ctx, providerID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockTx) CreateClient(ctx context.Context, client *models.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *MockTx) AddCompletedSessions(ctx context.Context, clientID int64, delta int, lastSessionAt *time.Time) error {
	args := m.Called(ctx, clientID, delta, lastSessionAt)
	return args.Error(0)
}

func (m *MockTx) CompletedCounts(ctx context.Context, providerID int64) (map[int64]int, map[int64]int, error) {
	args := m.Called(ctx, providerID)
	recorded, _ := args.Get(0).(map[int64]int)
	actual, _ := args.Get(1).(map[int64]int)
	return recorded, actual, args.Error(2)
}

func (m *MockTx) SetCompletedSessions(ctx context.Context, clientID int64, n int) error {
	args := m.Called(ctx, clientID, n)
	return args.Error(0)
}

func (m *MockTx) CreateSyncTask(ctx context.Context, task *models.SyncTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tasks ...*models.SyncTask) {
	m.Called(ctx, tasks)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

// monday is 2025-03-10; Berlin is on CET (UTC+1) that week.
var (
	monday     = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	sundayNoon = time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
)

func testSchedulingConfig() config.SchedulingConfig {
	hide := true
	return config.SchedulingConfig{
		DefaultSessionMinutes: 60,
		DefaultPrice:          100,
		MaxBookingDays:        365,
		HidePastSlots:         &hide,
		SlotCacheTTL:          time.Minute,
	}
}

func mondayMorning() models.WeeklySchedule {
	var ws models.WeeklySchedule
	ws.Days[time.Monday] = []models.Window{{
		Enabled: true,
		Start:   models.MustTimeOfDay("09:00"),
		End:     models.MustTimeOfDay("12:00"),
	}}
	return ws
}

type fixture struct {
	db         *database.DB
	provider   *models.Provider
	cache      *repository.MemoryStateRepository
	dispatcher *mockDispatcher
	bus        *events.EventBus
	slots      *SlotService
	bookings   *BookingService
	lifecycle  *LifecycleService

	mu        sync.Mutex
	published []string
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	return newFixtureAt(t, ":memory:")
}

func newFixtureAt(t *testing.T, path string) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:         db,
		cache:      repository.NewMemoryStateRepository(),
		dispatcher: new(mockDispatcher),
		bus:        events.NewEventBus(),
		now:        sundayNoon,
	}
	f.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return()
	f.bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e.Type)
		return nil
	})
	f.provider = f.seedProvider(t, &models.Provider{Slug: "anna", Timezone: "Europe/Berlin"})

	cfg := testSchedulingConfig()
	collab := Collaborators{Events: f.bus, Dispatcher: f.dispatcher, Cache: f.cache}
	clock := func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	}

	f.slots = NewSlotService(db, f.cache, cfg, &logger)
	f.slots.now = clock
	f.bookings = NewBookingService(db, collab, cfg, &logger)
	f.bookings.now = clock
	f.lifecycle = NewLifecycleService(db, collab, time.Minute, &logger)
	f.lifecycle.now = clock
	return f
}

func (f *fixture) setNow(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *fixture) publishedEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

// seedProvider stores p with the Monday 09:00-12:00, 60/15 schedule unless p sets its own.
func (f *fixture) seedProvider(t *testing.T, p *models.Provider) *models.Provider {
	t.Helper()
	if p.DisplayName == "" {
		p.DisplayName = "Provider " + p.Slug
	}
	if p.SessionMinutes == 0 {
		p.SessionMinutes = 60
		p.BreakMinutes = 15
	}
	if p.DefaultPrice == nil {
		price := 50.0
		p.DefaultPrice = &price
	}
	empty := true
	for _, windows := range p.Schedule.Days {
		empty = empty && len(windows) == 0
	}
	if empty {
		p.Schedule = mondayMorning()
	}
	require.NoError(t, f.db.UpsertProvider(context.Background(), p))
	return p
}

// at returns Monday's local wall-clock time hhmm in Berlin.
func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	zone, err := schedule.LoadZone("Europe/Berlin")
	require.NoError(t, err)
	instant, ok := zone.At(monday, models.MustTimeOfDay(hhmm))
	require.True(t, ok)
	return instant
}

func bookingRequest(slug, email, phone string, start time.Time) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		ProviderSlug: slug,
		ClientName:   "Client " + email,
		ClientEmail:  email,
		ClientPhone:  phone,
		StartAt:      start,
	}
}

func (f *fixture) book(t *testing.T, email, start string) *models.BookingResult {
	t.Helper()
	res, err := f.bookings.CreateBooking(context.Background(), bookingRequest(f.provider.Slug, email, "", at(t, start)))
	require.NoError(t, err)
	return res
}

func (f *fixture) client(t *testing.T, id int64) *models.Client {
	t.Helper()
	c, err := f.db.GetClient(context.Background(), id)
	require.NoError(t, err)
	return c
}
