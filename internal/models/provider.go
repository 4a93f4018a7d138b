package models

import "time"

type Provider struct {
	ID             int64                `json:"id"`
	Slug           string               `json:"slug"`
	DisplayName    string               `json:"display_name"`
	Timezone       string               `json:"timezone"`
	Schedule       WeeklySchedule       `json:"schedule"`
	SessionMinutes int                  `json:"session_minutes"`
	BreakMinutes   int                  `json:"break_minutes"`
	DefaultPrice   *float64             `json:"default_price,omitempty"`
	Calendar       *CalendarCredentials `json:"calendar,omitempty"`
	TelegramChatID int64                `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// CalendarCredentials identify the external calendar a provider syncs into.
type CalendarCredentials struct {
	CalendarID string `json:"calendar_id" yaml:"calendar_id"`
	// Subject is the account impersonated through domain-wide delegation.
	Subject string `json:"subject,omitempty" yaml:"subject"`
}

// HasCalendar reports whether bookings should be mirrored into an external calendar.
func (p *Provider) HasCalendar() bool {
	return p.Calendar != nil && p.Calendar.CalendarID != ""
}
