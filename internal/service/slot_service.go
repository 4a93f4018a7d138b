package service

import (
	"context"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/conflict"
	"sessionbook/internal/domain"
	"sessionbook/internal/metrics"
	"sessionbook/internal/models"
	"sessionbook/internal/schedule"

	"github.com/rs/zerolog"
)

type SlotService struct {
	repo   domain.Repository
	cache  domain.SlotCache
	cfg    config.SchedulingConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewSlotService(repo domain.Repository, cache domain.SlotCache, cfg config.SchedulingConfig, logger *zerolog.Logger) *SlotService {
	return &SlotService{
		repo:   repo,
		cache:  cache,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// ListSlots returns the bookable slots of a provider on a local calendar date.
// The result is advisory; CreateBooking re-checks availability authoritatively.
func (s *SlotService) ListSlots(ctx context.Context, providerSlug, date string) (*models.SlotListing, error) {
	provider, err := s.repo.GetProviderBySlug(ctx, providerSlug)
	if err != nil {
		return nil, domain.AsError(err)
	}

	listing := &models.SlotListing{
		ProviderID:   provider.ID,
		ProviderSlug: provider.Slug,
		ProviderName: provider.DisplayName,
		Date:         date,
		Timezone:     provider.Timezone,
		Slots:        []models.Slot{},
	}

	zone, err := schedule.LoadZone(provider.Timezone)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", provider.Slug).Msg("Provider timezone cannot be loaded, listing no slots")
		return listing, nil
	}

	day, err := zone.ParseDate(date)
	if err != nil {
		return nil, domain.ErrInvalidRequest.WithMessage("date must be formatted as YYYY-MM-DD").Wrap(err)
	}
	listing.Date = day.Format(schedule.DateLayout)

	slots, err := s.availableSlots(ctx, provider, zone, day, listing.Date)
	if err != nil {
		return nil, err
	}

	if s.hidePast() {
		now := s.now()
		if zone.LocalDate(now) == listing.Date {
			slots = upcoming(slots, now)
		}
	}

	listing.Slots = slots
	return listing, nil
}

func (s *SlotService) availableSlots(ctx context.Context, provider *models.Provider, zone *schedule.Zone, day time.Time, date string) ([]models.Slot, error) {
	// the version is taken before bookings are read so a concurrent invalidation wins over this write
	version, cacheable := s.cacheVersion(ctx, provider.ID)
	if cacheable {
		if cached, ok := s.cached(ctx, provider.ID, date); ok {
			return cached, nil
		}
	}

	slots := schedule.Generate(provider.Schedule, zone, day,
		sessionMinutes(provider, s.cfg), breakMinutes(provider, s.cfg))

	if len(slots) > 0 {
		from, to := zone.DayBounds(day)
		bookings, err := s.repo.ListActiveBookings(ctx, provider.ID, from, to)
		if err != nil {
			return nil, domain.AsError(err)
		}
		slots = conflict.Filter(slots, bookings)
	}
	if slots == nil {
		slots = []models.Slot{}
	}

	if cacheable {
		if err := s.cache.SetSlots(ctx, provider.ID, version, date, slots, s.cfg.SlotCacheTTL); err != nil {
			s.logger.Warn().Err(err).Int64("provider_id", provider.ID).Msg("Failed to cache slots")
		}
	}
	return slots, nil
}

func (s *SlotService) cacheVersion(ctx context.Context, providerID int64) (int64, bool) {
	if s.cache == nil || s.cfg.SlotCacheTTL <= 0 {
		return 0, false
	}
	version, err := s.cache.SlotVersion(ctx, providerID)
	if err != nil {
		metrics.IncSlotCache("error")
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Msg("Slot cache version read failed")
		return 0, false
	}
	return version, true
}

func (s *SlotService) cached(ctx context.Context, providerID int64, date string) ([]models.Slot, bool) {
	slots, ok, err := s.cache.GetSlots(ctx, providerID, date)
	switch {
	case err != nil:
		metrics.IncSlotCache("error")
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Msg("Slot cache read failed")
		return nil, false
	case !ok:
		metrics.IncSlotCache("miss")
		return nil, false
	}
	metrics.IncSlotCache("hit")
	return slots, true
}

func (s *SlotService) hidePast() bool {
	return s.cfg.HidePastSlots == nil || *s.cfg.HidePastSlots
}

func upcoming(slots []models.Slot, now time.Time) []models.Slot {
	out := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		if !slot.Start.Before(now) {
			out = append(out, slot)
		}
	}
	return out
}
