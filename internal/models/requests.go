package models

import "time"

// CreateBookingRequest carries everything a requester submits for a new booking.
type CreateBookingRequest struct {
	ProviderSlug    string    `json:"provider" validate:"required,max=64"`
	ClientName      string    `json:"client_name" validate:"required,max=200"`
	ClientEmail     string    `json:"client_email" validate:"required,email,max=254"`
	ClientPhone     string    `json:"client_phone,omitempty" validate:"omitempty,max=32"`
	StartAt         time.Time `json:"start" validate:"required"`
	DurationMinutes *int      `json:"duration_minutes,omitempty" validate:"omitempty,gt=0,lte=1440"`
	Price           *float64  `json:"price,omitempty" validate:"omitempty,gte=0"`
	Notes           string    `json:"notes,omitempty" validate:"max=2000"`
}

type BookingResult struct {
	Booking       *Booking `json:"booking"`
	Client        *Client  `json:"client"`
	ClientCreated bool     `json:"client_created"`
}

type CancelResult struct {
	Booking          *Booking `json:"booking"`
	PreviousStatus   string   `json:"previous_status"`
	AlreadyCancelled bool     `json:"already_cancelled"`
}

// AutoCompleteOptions scope one auto-completion run. ProviderID 0 means all providers.
type AutoCompleteOptions struct {
	ProviderID int64     `json:"provider_id,omitempty"`
	Force      bool      `json:"force,omitempty"`
	Preview    bool      `json:"preview,omitempty"`
	Now        time.Time `json:"-"`
}

type AutoCompleteResult struct {
	Count      int           `json:"count"`
	BookingIDs []int64       `json:"booking_ids"`
	Increments map[int64]int `json:"client_increments,omitempty"`
	Preview    bool          `json:"preview"`
	Skipped    bool          `json:"skipped"`
	RanAt      time.Time     `json:"ran_at"`
}

// ReconcileResult lists clients whose counter disagreed with their completed bookings.
type ReconcileResult struct {
	Checked   int           `json:"checked"`
	Corrected map[int64]int `json:"corrected"`
}
