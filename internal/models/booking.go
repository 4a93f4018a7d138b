package models

import "time"

type Booking struct {
	ID          int64     `json:"id"`
	ProviderID  int64     `json:"provider_id"`
	ClientID    *int64    `json:"client_id,omitempty"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email"`
	ClientPhone string    `json:"client_phone,omitempty"`
	StartAt     time.Time `json:"start_at"`
	Duration    int       `json:"duration_minutes"`
	Status      string    `json:"status"` // booked, completed, cancelled
	Price       float64   `json:"price"`
	Notes       string    `json:"notes,omitempty"`
	ExternalRef string    `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EndAt returns the exclusive end of the booked interval.
func (b *Booking) EndAt() time.Time {
	return b.StartAt.Add(time.Duration(b.Duration) * time.Minute)
}

// IsActive reports whether the booking still occupies its interval.
func (b *Booking) IsActive() bool {
	return b.Status != StatusCancelled
}

// IsOwnedBy reports whether the booking belongs to the given provider.
func (b *Booking) IsOwnedBy(providerID int64) bool {
	return b.ProviderID == providerID
}
