package service

import (
	"context"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/models"

	"github.com/rs/zerolog"
)

// Collaborators are the side-effect sinks shared by the scheduling services.
// Any of them may be nil; a nil collaborator is skipped.
type Collaborators struct {
	Events     domain.EventPublisher
	Dispatcher domain.Dispatcher
	Cache      domain.SlotCache
	Limiter    domain.RateLimiter
}

// afterCommit runs the non-critical follow-ups of a committed transaction.
// Nothing here can fail the operation that triggered it.
func (c Collaborators) afterCommit(ctx context.Context, logger *zerolog.Logger, providerID int64, tasks []*models.SyncTask, eventType string, payload interface{}) {
	ctx = context.WithoutCancel(ctx)

	if c.Dispatcher != nil && len(tasks) > 0 {
		c.Dispatcher.Dispatch(ctx, tasks...)
	}

	if c.Cache != nil && providerID > 0 {
		if err := c.Cache.Invalidate(ctx, providerID); err != nil {
			logger.Warn().Err(err).Int64("provider_id", providerID).Msg("Failed to invalidate slot cache")
		}
	}

	if c.Events != nil && eventType != "" {
		if err := c.Events.PublishJSON(eventType, payload); err != nil {
			logger.Error().Err(err).Str("event", eventType).Msg("Failed to publish event")
		}
	}
}

func (c Collaborators) allow(ctx context.Context, logger *zerolog.Logger, key string, limit int, window time.Duration) bool {
	if c.Limiter == nil || limit <= 0 {
		return true
	}
	allowed, err := c.Limiter.CheckRateLimit(ctx, key, limit, window)
	if err != nil {
		// limiter outages do not block bookings
		logger.Warn().Err(err).Str("key", key).Msg("Rate limit check failed")
		return true
	}
	return allowed
}
