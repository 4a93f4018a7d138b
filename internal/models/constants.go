package models

const (
	StatusBooked    = "booked"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	TaskCalendarCreate = "calendar_create"
	TaskCalendarDelete = "calendar_delete"
	TaskNotify         = "notify"
)

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusRetry      = "retry"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
	TemplateProviderBooked   = "provider_new_booking"
)

const (
	// DefaultSessionMinutes длительность сессии, если провайдер её не задал
	DefaultSessionMinutes = 60

	// DefaultMaxBookingDays горизонт бронирования в днях
	DefaultMaxBookingDays = 365

	// DefaultSlotCacheTTL время жизни кэша слотов в секундах
	DefaultSlotCacheTTL = 30

	// DefaultBookingRateLimit число попыток бронирования с одного e-mail в окне
	DefaultBookingRateLimit  = 10
	DefaultBookingRateWindow = 60 * 60 // 1 час в секундах

	// WorkerQueueSize размер локальной очереди диспетчера
	WorkerQueueSize = 128

	// JobAutoComplete имя задачи автозавершения в job_runs
	JobAutoComplete = "auto_complete"
)
