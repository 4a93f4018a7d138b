package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"sessionbook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// CalendarService mirrors bookings into Google Calendar through a service account.
// Providers whose calendar belongs to a Workspace user set a Subject; the account
// then acts on that user's behalf via domain-wide delegation.
type CalendarService struct {
	credentials []byte
	opts        []option.ClientOption

	mu       sync.Mutex
	services map[string]*calendar.Service
}

func NewCalendarService(credentialsFile string) (*CalendarService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}
	if _, err := google.JWTConfigFromJSON(credentialsJSON, calendar.CalendarEventsScope); err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	return &CalendarService{
		credentials: credentialsJSON,
		services:    make(map[string]*calendar.Service),
	}, nil
}

// NewCalendarServiceWithOptions builds a service from explicit client options
// and no service account, e.g. option.WithEndpoint plus option.WithoutAuthentication.
func NewCalendarServiceWithOptions(opts ...option.ClientOption) *CalendarService {
	return &CalendarService{
		opts:     opts,
		services: make(map[string]*calendar.Service),
	}
}

func (s *CalendarService) service(ctx context.Context, subject string) (*calendar.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if srv, ok := s.services[subject]; ok {
		return srv, nil
	}

	opts := append([]option.ClientOption(nil), s.opts...)
	if s.credentials != nil {
		cfg, err := google.JWTConfigFromJSON(s.credentials, calendar.CalendarEventsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %v", err)
		}
		cfg.Subject = subject
		// token source outlives the request context
		opts = append(opts, option.WithHTTPClient(cfg.Client(context.Background())))
	}

	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Calendar service: %v", err)
	}
	s.services[subject] = srv
	return srv, nil
}

// CreateEvent inserts the event and returns its Google id.
func (s *CalendarService) CreateEvent(ctx context.Context, creds models.CalendarCredentials, event models.CalendarEvent) (string, error) {
	srv, err := s.service(ctx, creds.Subject)
	if err != nil {
		return "", err
	}

	created, err := srv.Events.Insert(creds.CalendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create event: %w", err)
	}
	return created.Id, nil
}

// DeleteEvent removes the event. An event that is already gone counts as deleted.
func (s *CalendarService) DeleteEvent(ctx context.Context, creds models.CalendarCredentials, externalID string) error {
	srv, err := s.service(ctx, creds.Subject)
	if err != nil {
		return err
	}

	err = srv.Events.Delete(creds.CalendarID, externalID).Context(ctx).Do()
	if err != nil && !isGone(err) {
		return fmt.Errorf("unable to delete event: %w", err)
	}
	return nil
}

func toGoogleEvent(e models.CalendarEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Start: &calendar.EventDateTime{
			DateTime: e.Start.Format(time.RFC3339),
			TimeZone: e.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: e.End.Format(time.RFC3339),
			TimeZone: e.Timezone,
		},
	}
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone
}
