package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/conflict"
	"sessionbook/internal/domain"
	"sessionbook/internal/events"
	"sessionbook/internal/metrics"
	"sessionbook/internal/models"
	"sessionbook/internal/schedule"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.Repository
	collab   Collaborators
	cfg      config.SchedulingConfig
	validate *validator.Validate
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewBookingService(repo domain.Repository, collab Collaborators, cfg config.SchedulingConfig, logger *zerolog.Logger) *BookingService {
	if cfg.MaxBookingDays <= 0 {
		cfg.MaxBookingDays = models.DefaultMaxBookingDays
	}
	return &BookingService{
		repo:     repo,
		collab:   collab,
		cfg:      cfg,
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateRequest checks the request shape and the booking horizon.
func (s *BookingService) ValidateRequest(req *models.CreateBookingRequest) error {
	if req == nil {
		return domain.ErrInvalidRequest
	}
	req.ProviderSlug = strings.TrimSpace(req.ProviderSlug)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.ToLower(strings.TrimSpace(req.ClientEmail))
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	// the store keeps whole seconds
	req.StartAt = req.StartAt.Truncate(time.Second)

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.ErrInvalidRequest.WithMessage("field %s failed %q validation", fe.Field(), fe.Tag())
		}
		return domain.ErrInvalidRequest.Wrap(err)
	}

	now := s.now()
	if req.StartAt.Before(now) {
		return domain.ErrPastStart
	}
	if req.StartAt.After(now.AddDate(0, 0, s.cfg.MaxBookingDays)) {
		return domain.ErrStartTooFar
	}
	return nil
}

// CreateBooking checks availability and records the booking in one transaction.
// The client is looked up by e-mail and created on first booking.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.CreateBookingRequest) (*models.BookingResult, error) {
	if err := s.ValidateRequest(req); err != nil {
		metrics.IncBooking("rejected")
		return nil, err
	}

	if !s.collab.allow(ctx, s.logger, "booking:"+req.ClientEmail, s.cfg.BookingRateLimit, s.cfg.BookingRateWindow) {
		metrics.IncBooking("rate_limited")
		return nil, domain.ErrRateLimited
	}

	provider, err := s.repo.GetProviderBySlug(ctx, req.ProviderSlug)
	if err != nil {
		metrics.IncBooking("rejected")
		return nil, domain.AsError(err)
	}
	zone := providerZone(provider, s.logger)
	if !schedule.Covers(provider.Schedule, zone, req.StartAt) {
		metrics.IncBooking("rejected")
		return nil, domain.ErrOutsideSchedule
	}

	var (
		result *models.BookingResult
		tasks  []*models.SyncTask
	)
	err = s.repo.WithTx(ctx, func(tx domain.Tx) error {
		duration := ResolveTerms(req, nil, provider, s.cfg).DurationMinutes
		candidate := conflict.Interval{
			Start: req.StartAt,
			End:   req.StartAt.Add(time.Duration(duration) * time.Minute),
		}

		existing, err := tx.ListActiveBookings(ctx, provider.ID, candidate.Start, candidate.End)
		if err != nil {
			return err
		}
		if clash, ok := conflict.Conflicts(candidate, existing); ok {
			s.logger.Debug().Int64("provider_id", provider.ID).Int64("conflicting_booking", clash.ID).Msg("Slot already taken")
			return domain.ErrSlotUnavailable
		}

		client, created, err := s.resolveClient(ctx, tx, provider, req)
		if err != nil {
			return err
		}

		terms := ResolveTerms(req, client, provider, s.cfg)
		clientID := client.ID
		booking := &models.Booking{
			ProviderID:  provider.ID,
			ClientID:    &clientID,
			ClientName:  client.Name,
			ClientEmail: client.Email,
			ClientPhone: client.Phone,
			StartAt:     req.StartAt.UTC(),
			Duration:    terms.DurationMinutes,
			Status:      models.StatusBooked,
			Price:       terms.Price,
			Notes:       strings.TrimSpace(req.Notes),
		}
		if err := tx.CreateBooking(ctx, booking); err != nil {
			return err
		}

		tasks, err = bookingTasks(provider, booking, zone)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if err := tx.CreateSyncTask(ctx, task); err != nil {
				return err
			}
		}

		result = &models.BookingResult{Booking: booking, Client: client, ClientCreated: created}
		return nil
	})
	if err != nil {
		derr := domain.AsError(err)
		switch domain.KindOf(derr) {
		case domain.KindConflict:
			metrics.IncBooking("conflict")
		case domain.KindDependency:
			metrics.IncBooking("error")
			s.logger.Error().Err(err).Str("provider", provider.Slug).Msg("Booking transaction failed")
		default:
			metrics.IncBooking("rejected")
		}
		return nil, derr
	}

	metrics.IncBooking("created")
	s.logger.Info().
		Int64("booking_id", result.Booking.ID).
		Int64("provider_id", provider.ID).
		Int64("client_id", result.Client.ID).
		Time("start_at", result.Booking.StartAt).
		Bool("client_created", result.ClientCreated).
		Msg("Booking created")

	s.collab.afterCommit(ctx, s.logger, provider.ID, tasks, events.EventBookingCreated,
		events.NewBookingPayload(result.Booking, "", "request"))
	return result, nil
}

// resolveClient returns the client identified by (provider, email), creating it when absent.
// An existing client's stored profile wins over the request's name and phone.
func (s *BookingService) resolveClient(ctx context.Context, tx domain.Tx, provider *models.Provider, req *models.CreateBookingRequest) (*models.Client, bool, error) {
	client, err := tx.GetClientByEmail(ctx, provider.ID, req.ClientEmail)
	if err == nil {
		return client, false, nil
	}
	if !errors.Is(err, domain.ErrClientNotFound) {
		return nil, false, err
	}

	price := providerPrice(provider, s.cfg)
	client = &models.Client{
		ProviderID:   provider.ID,
		Name:         req.ClientName,
		Email:        req.ClientEmail,
		Phone:        req.ClientPhone,
		DefaultPrice: &price,
		JoinedAt:     s.now(),
	}
	err = tx.CreateClient(ctx, client)
	if errors.Is(err, domain.ErrClientExists) {
		client, err = tx.GetClientByEmail(ctx, provider.ID, req.ClientEmail)
		return client, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return client, true, nil
}

// GetBooking returns a booking. A non-zero callerProviderID must own it.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.AsError(err)
	}
	if callerProviderID != 0 && !booking.IsOwnedBy(callerProviderID) {
		return nil, domain.ErrNotBookingOwner
	}
	return booking, nil
}

func providerZone(provider *models.Provider, logger *zerolog.Logger) *schedule.Zone {
	zone, err := schedule.LoadZone(provider.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider.Slug).Msg("Provider timezone cannot be loaded, using UTC")
		zone, _ = schedule.LoadZone("UTC")
	}
	return zone
}
