package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/database"
	"sessionbook/internal/models"
	"sessionbook/internal/repository"
	"sessionbook/internal/schedule"
	"sessionbook/internal/service"

	"github.com/rs/zerolog"
)

type testEnv struct {
	db       *database.DB
	provider *models.Provider
	services Services
	day      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	provider := &models.Provider{
		Slug:           "anna",
		DisplayName:    "Anna",
		Timezone:       "UTC",
		Schedule:       schedule.Default(),
		SessionMinutes: 60,
	}
	if err := db.UpsertProvider(context.Background(), provider); err != nil {
		t.Fatalf("upsert provider: %v", err)
	}

	hide := true
	cfg := config.SchedulingConfig{
		DefaultSessionMinutes: 60,
		DefaultPrice:          100,
		MaxBookingDays:        365,
		HidePastSlots:         &hide,
		SlotCacheTTL:          time.Minute,
	}
	cache := repository.NewMemoryStateRepository()
	collab := service.Collaborators{Cache: cache}

	return &testEnv{
		db:       db,
		provider: provider,
		day:      nextMonday(time.Now().UTC()),
		services: Services{
			Slots:     service.NewSlotService(db, cache, cfg, &logger),
			Bookings:  service.NewBookingService(db, collab, cfg, &logger),
			Lifecycle: service.NewLifecycleService(db, collab, time.Minute, &logger),
			Export:    service.NewExportService(db, &logger),
			Ready:     func(ctx context.Context) error { return db.PingContext(ctx) },
		},
	}
}

// nextMonday returns the Monday at least two days after now, at midnight UTC.
func nextMonday(now time.Time) time.Time {
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 2)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func (e *testEnv) date() string {
	return e.day.Format(dateLayout)
}

func (e *testEnv) at(hour int) time.Time {
	return e.day.Add(time.Duration(hour) * time.Hour)
}

func newTestHTTPServer(t *testing.T, env *testEnv, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	server := NewHTTPServer(cfg, env.services, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func openAPIConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode body %q: %v", raw, err)
		}
	}
	return resp, out
}

func bookingBody(email string, start time.Time) map[string]any {
	return map[string]any{
		"client_name":  "Client " + email,
		"client_email": email,
		"start":        start.Format(time.RFC3339),
	}
}
