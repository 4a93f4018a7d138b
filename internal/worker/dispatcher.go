package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/domain"
	"sessionbook/internal/metrics"
	"sessionbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisQueueKey = "sessionbook:outbox:queue"
	deadLetterKey = "sessionbook:outbox:deadletter"

	redisPushTimeout = 2 * time.Second
)

// TaskStore is the outbox storage used by the dispatcher.
type TaskStore interface {
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	ClaimSyncTask(ctx context.Context, id int64) (bool, error)
	ReleaseStaleSyncTasks(ctx context.Context) (int64, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	SetBookingExternalRef(ctx context.Context, id int64, ref string) error
}

// errPermanent marks failures that retrying cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

func permanent(err error) error { return errPermanent{err: err} }

// Dispatcher executes committed outbox rows: calendar mirroring and notifications.
// Rows reach it through the in-process queue, a Redis list, or by polling sync_queue;
// a row is claimed before it runs, so whichever path sees it first wins.
type Dispatcher struct {
	store        TaskStore
	calendar     domain.CalendarSync
	notifier     domain.Notifier
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.SyncTask
	forward      chan models.SyncTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewDispatcher builds a dispatcher with sane defaults. calendar, notifier and redisClient may be nil.
func NewDispatcher(store TaskStore, calendar domain.CalendarSync, notifier domain.Notifier, redisClient *redis.Client, cfg config.WorkerConfig, logger *zerolog.Logger) *Dispatcher {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	return &Dispatcher{
		store:        store,
		calendar:     calendar,
		notifier:     notifier,
		redis:        redisClient,
		retryPolicy:  retryPolicyFromConfig(cfg),
		queue:        make(chan models.SyncTask, models.WorkerQueueSize),
		forward:      make(chan models.SyncTask, models.WorkerQueueSize),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Dispatch schedules already persisted tasks. It never blocks and does no I/O:
// tasks go to the in-process queue, overflow is handed to the Redis forwarder,
// and whatever neither accepts waits for the poller.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks ...*models.SyncTask) {
	for _, task := range tasks {
		if task == nil || task.ID == 0 {
			continue
		}

		select {
		case d.queue <- *task:
			continue
		default:
		}

		if d.redis != nil {
			select {
			case d.forward <- *task:
				continue
			default:
			}
		}
		d.logger.Warn().Int64("task_id", task.ID).Msg("Memory queue full, task left to polling")
	}
}

// forwardLoop moves overflow tasks onto the shared Redis list so any replica can pick them up.
func (d *Dispatcher) forwardLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-d.forward:
			if err := d.pushRedis(ctx, &task); err != nil {
				d.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("Redis push failed, task left to polling")
			}
		}
	}
}

// Start runs the dispatch loop until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Msg("Outbox dispatcher started")
	defer d.logger.Info().Msg("Outbox dispatcher stopped")

	if n, err := d.store.ReleaseStaleSyncTasks(ctx); err != nil {
		d.logger.Error().Err(err).Msg("Failed to release stale tasks")
	} else if n > 0 {
		d.logger.Warn().Int64("count", n).Msg("Released tasks left in processing")
	}

	if d.redis != nil {
		go d.forwardLoop(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := d.tryLocalQueue(); ok {
			d.processTask(ctx, &t)
			continue
		}

		if t, ok := d.tryRedis(ctx); ok {
			d.processTask(ctx, &t)
			continue
		}

		if n := d.poll(ctx); n == 0 {
			d.sleep(ctx)
		}
	}
}

// poll processes one batch of due rows and returns how many it saw.
func (d *Dispatcher) poll(ctx context.Context) int {
	tasks, err := d.store.GetPendingSyncTasks(ctx, d.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("Failed to fetch pending tasks")
		}
		return 0
	}
	for i := range tasks {
		d.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

func (d *Dispatcher) sleep(ctx context.Context) {
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (d *Dispatcher) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-d.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (d *Dispatcher) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if d.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := d.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		d.logger.Error().Err(err).Msg("Redis BRPOP failed")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		d.logger.Error().Err(err).Msg("Failed to decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (d *Dispatcher) processTask(ctx context.Context, task *models.SyncTask) {
	claimed, err := d.store.ClaimSyncTask(ctx, task.ID)
	if err != nil {
		d.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to claim task")
		return
	}
	if !claimed {
		return
	}

	log := d.logger.With().Int64("task_id", task.ID).Str("type", task.TaskType).Int64("booking_id", task.BookingID).Logger()

	if err := d.handle(ctx, task); err != nil {
		var perm errPermanent
		if errors.As(err, &perm) {
			d.failTask(ctx, task, err)
			return
		}
		d.retryOrFail(ctx, task, err)
		return
	}

	if err := d.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		log.Error().Err(err).Msg("Failed to mark task completed")
	}
	metrics.IncOutbox(task.TaskType, "completed")
	log.Debug().Msg("Task completed")
}

func (d *Dispatcher) handle(ctx context.Context, task *models.SyncTask) error {
	switch task.TaskType {
	case models.TaskCalendarCreate:
		return d.createEvent(ctx, task)
	case models.TaskCalendarDelete:
		return d.deleteEvent(ctx, task)
	case models.TaskNotify:
		return d.notify(ctx, task)
	default:
		return permanent(fmt.Errorf("unknown task type: %s", task.TaskType))
	}
}

func (d *Dispatcher) createEvent(ctx context.Context, task *models.SyncTask) error {
	if d.calendar == nil {
		return permanent(errors.New("calendar sync is not configured"))
	}
	var payload models.CalendarPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		return permanent(fmt.Errorf("decode payload: %w", err))
	}
	if payload.Event == nil {
		return permanent(errors.New("calendar event missing"))
	}

	booking, err := d.store.GetBooking(ctx, task.BookingID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			return permanent(err)
		}
		return err
	}
	// a cancelled booking must not reappear in the calendar; a set ref means a previous attempt succeeded
	if !booking.IsActive() || booking.ExternalRef != "" {
		return nil
	}

	externalID, err := d.calendar.CreateEvent(ctx, payload.Calendar, *payload.Event)
	if err != nil {
		return err
	}
	return d.store.SetBookingExternalRef(ctx, booking.ID, externalID)
}

func (d *Dispatcher) deleteEvent(ctx context.Context, task *models.SyncTask) error {
	if d.calendar == nil {
		return permanent(errors.New("calendar sync is not configured"))
	}
	var payload models.CalendarPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		return permanent(fmt.Errorf("decode payload: %w", err))
	}

	externalID := payload.ExternalID
	if externalID == "" {
		booking, err := d.store.GetBooking(ctx, task.BookingID)
		if err != nil && !errors.Is(err, domain.ErrBookingNotFound) {
			return err
		}
		if booking != nil {
			externalID = booking.ExternalRef
		}
	}
	if externalID == "" {
		return nil
	}
	return d.calendar.DeleteEvent(ctx, payload.Calendar, externalID)
}

func (d *Dispatcher) notify(ctx context.Context, task *models.SyncTask) error {
	if d.notifier == nil {
		return permanent(errors.New("notifier is not configured"))
	}
	var payload models.NotifyPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		return permanent(fmt.Errorf("decode payload: %w", err))
	}

	deliveryID, err := d.notifier.Send(ctx, payload.Template, payload.Recipient, payload.Data)
	if err != nil {
		return err
	}
	d.logger.Debug().
		Int64("task_id", task.ID).
		Str("template", payload.Template).
		Str("delivery_id", deliveryID).
		Msg("Notification sent")
	return nil
}

func (d *Dispatcher) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if d.retryPolicy.Exhausted(attempt) {
		d.failTask(ctx, task, cause)
		return
	}

	nextDelay := d.retryPolicy.NextDelay(attempt)
	nextTime := time.Now().Add(nextDelay)
	if err := d.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		d.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task for retry")
	}
	metrics.IncOutbox(task.TaskType, "retry")
	d.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Int("attempt", attempt).
		Dur("next_delay", nextDelay).
		Msg("Task failed, will retry")
}

func (d *Dispatcher) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := d.store.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		d.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to mark task failed")
	}
	metrics.IncOutbox(task.TaskType, "failed")
	d.logger.Error().Err(cause).Int64("task_id", task.ID).Str("type", task.TaskType).Msg("Task moved to dead letter")
	d.pushDeadLetter(ctx, task)
}

func (d *Dispatcher) pushRedis(ctx context.Context, task *models.SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, redisPushTimeout)
	defer cancel()
	return d.redis.LPush(ctx, redisQueueKey, data).Err()
}

func (d *Dispatcher) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if d.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		d.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Failed to encode dead letter")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisPushTimeout)
	defer cancel()
	if err := d.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		d.logger.Error().Err(err).Int64("task_id", task.ID).Msg("Dead letter push failed")
	}
}
