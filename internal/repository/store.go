package repository

import (
	"sessionbook/internal/domain"
)

// StateStore is the short-lived state shared by API replicas: the slot
// listing cache and booking attempt counters.
type StateStore interface {
	domain.SlotCache
	domain.RateLimiter
}
