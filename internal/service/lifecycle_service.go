package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/events"
	"sessionbook/internal/metrics"
	"sessionbook/internal/models"

	"github.com/rs/zerolog"
)

// LifecycleService moves bookings to their terminal states and keeps each
// client's completed-session counter equal to its completed bookings.
type LifecycleService struct {
	repo        domain.Repository
	collab      Collaborators
	minInterval time.Duration
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewLifecycleService(repo domain.Repository, collab Collaborators, minInterval time.Duration, logger *zerolog.Logger) *LifecycleService {
	return &LifecycleService{
		repo:        repo,
		collab:      collab,
		minInterval: minInterval,
		logger:      logger,
		now:         time.Now,
	}
}

// CancelBooking cancels a booking from any state. Cancelling a completed booking
// takes its session back from the client's counter; cancelling twice is a no-op.
func (s *LifecycleService) CancelBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.CancelResult, error) {
	current, err := s.ownedBooking(ctx, bookingID, callerProviderID)
	if err != nil {
		return nil, err
	}
	provider, err := s.repo.GetProviderByID(ctx, current.ProviderID)
	if err != nil {
		return nil, domain.AsError(err)
	}
	zone := providerZone(provider, s.logger)

	var (
		result *models.CancelResult
		tasks  []*models.SyncTask
	)
	now := s.now()
	err = s.repo.WithTx(ctx, func(tx domain.Tx) error {
		booking, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}

		previous := booking.Status
		if previous == models.StatusCancelled {
			result = &models.CancelResult{Booking: booking, PreviousStatus: previous, AlreadyCancelled: true}
			return nil
		}

		ok, err := tx.SetBookingStatus(ctx, booking.ID, previous, models.StatusCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		if previous == models.StatusCompleted && booking.ClientID != nil {
			if err := tx.AddCompletedSessions(ctx, *booking.ClientID, -1, nil); err != nil {
				return err
			}
		}
		booking.Status = models.StatusCancelled
		booking.UpdatedAt = now

		tasks, err = cancellationTasks(provider, booking, zone)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if err := tx.CreateSyncTask(ctx, task); err != nil {
				return err
			}
		}

		result = &models.CancelResult{Booking: booking, PreviousStatus: previous}
		return nil
	})
	if err != nil {
		return nil, domain.AsError(err)
	}
	if result.AlreadyCancelled {
		return result, nil
	}

	metrics.AddTransitions(models.StatusCancelled, "manual", 1)
	s.logger.Info().
		Int64("booking_id", bookingID).
		Str("previous_status", result.PreviousStatus).
		Msg("Booking cancelled")

	s.collab.afterCommit(ctx, s.logger, provider.ID, tasks, events.EventBookingCancelled,
		events.NewBookingPayload(result.Booking, result.PreviousStatus, "manual"))
	return result, nil
}

// CompleteBooking marks a booked session completed and credits the client.
func (s *LifecycleService) CompleteBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.Booking, error) {
	if _, err := s.ownedBooking(ctx, bookingID, callerProviderID); err != nil {
		return nil, err
	}

	var booking *models.Booking
	now := s.now()
	err := s.repo.WithTx(ctx, func(tx domain.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.StatusBooked {
			return domain.ErrInvalidTransition.WithMessage("booking is %s, only booked sessions can be completed", b.Status)
		}

		ok, err := tx.SetBookingStatus(ctx, b.ID, models.StatusBooked, models.StatusCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		if b.ClientID != nil {
			if err := tx.AddCompletedSessions(ctx, *b.ClientID, 1, &now); err != nil {
				return err
			}
		}
		b.Status = models.StatusCompleted
		b.UpdatedAt = now
		booking = b
		return nil
	})
	if err != nil {
		return nil, domain.AsError(err)
	}

	metrics.AddTransitions(models.StatusCompleted, "manual", 1)
	s.logger.Info().Int64("booking_id", bookingID).Msg("Booking completed")

	s.collab.afterCommit(ctx, s.logger, 0, nil, events.EventBookingCompleted,
		events.NewBookingPayload(booking, models.StatusBooked, "manual"))
	return booking, nil
}

// RunAutoCompletion completes every booked session that has ended by opts.Now.
// Each client's counter grows by the number of its sessions completed in the run.
// Repeating a run with the same clock changes nothing.
func (s *LifecycleService) RunAutoCompletion(ctx context.Context, opts models.AutoCompleteOptions) (*models.AutoCompleteResult, error) {
	started := time.Now()
	now := opts.Now
	if now.IsZero() {
		now = s.now()
	}
	result := &models.AutoCompleteResult{
		BookingIDs: []int64{},
		Increments: map[int64]int{},
		Preview:    opts.Preview,
		RanAt:      now,
	}

	job := jobName(opts.ProviderID)
	if !opts.Force && !opts.Preview && s.minInterval > 0 {
		last, ok, err := s.repo.GetJobRun(ctx, job)
		if err != nil {
			return nil, domain.AsError(err)
		}
		if ok && now.Sub(last) < s.minInterval {
			s.logger.Debug().Time("last_run", last).Msg("Auto-completion ran recently, skipping")
			result.Skipped = true
			return result, nil
		}
	}

	err := s.repo.WithTx(ctx, func(tx domain.Tx) error {
		due, err := tx.ListDueBookings(ctx, opts.ProviderID, now)
		if err != nil {
			return err
		}

		for _, b := range due {
			if !opts.Preview {
				ok, err := tx.SetBookingStatus(ctx, b.ID, models.StatusBooked, models.StatusCompleted, now)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			result.BookingIDs = append(result.BookingIDs, b.ID)
			if b.ClientID != nil {
				result.Increments[*b.ClientID]++
			}
		}
		if opts.Preview {
			return nil
		}

		clientIDs := make([]int64, 0, len(result.Increments))
		for id := range result.Increments {
			clientIDs = append(clientIDs, id)
		}
		sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] < clientIDs[j] })
		for _, id := range clientIDs {
			if err := tx.AddCompletedSessions(ctx, id, result.Increments[id], &now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.AsError(err)
	}
	result.Count = len(result.BookingIDs)

	if opts.Preview {
		return result, nil
	}

	if err := s.repo.SetJobRun(ctx, job, now); err != nil {
		s.logger.Warn().Err(err).Str("job", job).Msg("Failed to record auto-completion run")
	}
	metrics.AddTransitions(models.StatusCompleted, "auto", result.Count)
	metrics.ObserveAutoComplete(time.Since(started).Seconds())

	if result.Count > 0 {
		s.logger.Info().
			Int("count", result.Count).
			Int("clients", len(result.Increments)).
			Int64("provider_id", opts.ProviderID).
			Msg("Auto-completed bookings")
		s.collab.afterCommit(ctx, s.logger, 0, nil, events.EventAutoCompleted, events.AutoCompletedPayload{
			ProviderID: opts.ProviderID,
			BookingIDs: result.BookingIDs,
			RanAt:      now,
		})
	}
	return result, nil
}

// ReconcileCounters rewrites every client counter that disagrees with the
// client's completed bookings. providerID 0 covers all providers.
func (s *LifecycleService) ReconcileCounters(ctx context.Context, providerID int64) (*models.ReconcileResult, error) {
	result := &models.ReconcileResult{Corrected: map[int64]int{}}
	err := s.repo.WithTx(ctx, func(tx domain.Tx) error {
		recorded, actual, err := tx.CompletedCounts(ctx, providerID)
		if err != nil {
			return err
		}
		result.Checked = len(recorded)
		for clientID, stored := range recorded {
			want := actual[clientID]
			if stored == want {
				continue
			}
			if err := tx.SetCompletedSessions(ctx, clientID, want); err != nil {
				return err
			}
			result.Corrected[clientID] = want
		}
		return nil
	})
	if err != nil {
		return nil, domain.AsError(err)
	}

	if len(result.Corrected) > 0 {
		s.logger.Warn().
			Int("corrected", len(result.Corrected)).
			Int64("provider_id", providerID).
			Msg("Completed-session counters were out of sync")
	}
	return result, nil
}

// ownedBooking loads a booking outside the write transaction and checks the caller's ownership.
func (s *LifecycleService) ownedBooking(ctx context.Context, bookingID, callerProviderID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, domain.AsError(err)
	}
	if callerProviderID != 0 && !booking.IsOwnedBy(callerProviderID) {
		return nil, domain.ErrNotBookingOwner
	}
	return booking, nil
}

func jobName(providerID int64) string {
	if providerID > 0 {
		return fmt.Sprintf("%s:%d", models.JobAutoComplete, providerID)
	}
	return models.JobAutoComplete
}
