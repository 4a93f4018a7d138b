package models

import "time"

// SyncTask is an outbox row describing a side effect to run after commit.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// NotifyPayload is the payload of a TaskNotify row.
type NotifyPayload struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data"`
}

// CalendarPayload is the payload of TaskCalendarCreate and TaskCalendarDelete rows.
// ExternalID may be empty on delete when the create task has not finished yet;
// the worker then reads the reference from the booking.
type CalendarPayload struct {
	Calendar   CalendarCredentials `json:"calendar"`
	Event      *CalendarEvent      `json:"event,omitempty"`
	ExternalID string              `json:"external_id,omitempty"`
}
