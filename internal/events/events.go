package events

import (
	"encoding/json"
	"sync"
	"time"

	"sessionbook/internal/models"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingCancelled = "booking_cancelled"
	EventBookingCompleted = "booking_completed"
	EventAutoCompleted    = "bookings_auto_completed"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID      int64     `json:"booking_id"`
	ProviderID     int64     `json:"provider_id"`
	ClientID       *int64    `json:"client_id,omitempty"`
	ClientEmail    string    `json:"client_email"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	StartAt        time.Time `json:"start_at"`
	Duration       int       `json:"duration_minutes"`
	Trigger        string    `json:"trigger,omitempty"`
}

// AutoCompletedPayload summarizes one auto-completion run.
type AutoCompletedPayload struct {
	ProviderID int64     `json:"provider_id,omitempty"`
	BookingIDs []int64   `json:"booking_ids"`
	RanAt      time.Time `json:"ran_at"`
}

// NewBookingPayload snapshots a booking for publishing.
func NewBookingPayload(b *models.Booking, previousStatus, trigger string) BookingEventPayload {
	return BookingEventPayload{
		BookingID:      b.ID,
		ProviderID:     b.ProviderID,
		ClientID:       b.ClientID,
		ClientEmail:    b.ClientEmail,
		Status:         b.Status,
		PreviousStatus: previousStatus,
		StartAt:        b.StartAt,
		Duration:       b.Duration,
		Trigger:        trigger,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a callback for handler failures. Failures never reach the publisher.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
