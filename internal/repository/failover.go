package repository

import (
	"context"
	"sync/atomic"
	"time"

	"sessionbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository serves from primary until it errors, then from
// fallback, retrying primary once per recoveryInterval.
type FailoverStateRepository struct {
	primary   StateStore
	fallback  StateStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback StateStore, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// IsDegraded reports whether calls are currently served by the fallback.
func (r *FailoverStateRepository) IsDegraded() bool {
	return r.isDown.Load()
}

// usePrimary decides whether the next call should try the primary store.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return r.now().Sub(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverStateRepository) markDown(err error, op string) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverStateRepository) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}

func (r *FailoverStateRepository) SlotVersion(ctx context.Context, providerID int64) (int64, error) {
	if r.usePrimary() {
		v, err := r.primary.SlotVersion(ctx, providerID)
		if err == nil {
			r.markUp()
			return v, nil
		}
		r.markDown(err, "slot_version")
	}
	return r.fallback.SlotVersion(ctx, providerID)
}

func (r *FailoverStateRepository) GetSlots(ctx context.Context, providerID int64, date string) ([]models.Slot, bool, error) {
	if r.usePrimary() {
		slots, ok, err := r.primary.GetSlots(ctx, providerID, date)
		if err == nil {
			r.markUp()
			return slots, ok, nil
		}
		r.markDown(err, "get_slots")
	}
	return r.fallback.GetSlots(ctx, providerID, date)
}

// SetSlots does not retry a failed primary write on the fallback: the version
// was issued by the primary and means nothing to the fallback.
func (r *FailoverStateRepository) SetSlots(ctx context.Context, providerID, version int64, date string, slots []models.Slot, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetSlots(ctx, providerID, version, date, slots, ttl)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err, "set_slots")
		return err
	}
	return r.fallback.SetSlots(ctx, providerID, version, date, slots, ttl)
}

// Invalidate always clears the fallback too, so entries written while the
// primary was down cannot be served after it recovers and fails again.
func (r *FailoverStateRepository) Invalidate(ctx context.Context, providerID int64) error {
	fallbackErr := r.fallback.Invalidate(ctx, providerID)
	if r.usePrimary() {
		err := r.primary.Invalidate(ctx, providerID)
		if err == nil {
			r.markUp()
			return fallbackErr
		}
		r.markDown(err, "invalidate")
	}
	return fallbackErr
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err, "rate_limit")
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
