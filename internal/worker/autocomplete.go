package worker

import (
	"context"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/models"

	"github.com/rs/zerolog"
)

// AutoCompleter periodically completes ended sessions. The run guard in
// LifecycleService keeps several replicas from repeating each other's work.
type AutoCompleter struct {
	lifecycle domain.LifecycleService
	interval  time.Duration
	logger    *zerolog.Logger
}

func NewAutoCompleter(lifecycle domain.LifecycleService, interval time.Duration, logger *zerolog.Logger) *AutoCompleter {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &AutoCompleter{lifecycle: lifecycle, interval: interval, logger: logger}
}

// Start runs once immediately and then on every tick until ctx is done.
func (a *AutoCompleter) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("Auto-completion loop started")
	a.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("Auto-completion loop stopped")
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single guarded auto-completion run across all providers.
func (a *AutoCompleter) RunOnce(ctx context.Context) {
	result, err := a.lifecycle.RunAutoCompletion(ctx, models.AutoCompleteOptions{})
	if err != nil {
		a.logger.Error().Err(err).Msg("Auto-completion run failed")
		return
	}
	if result.Skipped {
		a.logger.Debug().Msg("Auto-completion skipped by run guard")
		return
	}
	a.logger.Debug().Int("count", result.Count).Msg("Auto-completion run finished")
}
