package models

import "time"

// Client is a requester known to a single provider, keyed by e-mail.
type Client struct {
	ID                int64      `json:"id"`
	ProviderID        int64      `json:"provider_id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone,omitempty"`
	DefaultPrice      *float64   `json:"default_price,omitempty"`
	CompletedSessions int        `json:"completed_sessions"`
	JoinedAt          time.Time  `json:"joined_at"`
	LastSessionAt     *time.Time `json:"last_session_at,omitempty"`
}
