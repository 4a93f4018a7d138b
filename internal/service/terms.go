package service

import (
	"sessionbook/internal/config"
	"sessionbook/internal/models"
)

// Terms are the effective duration and price of one booking.
type Terms struct {
	DurationMinutes int
	Price           float64
}

// ResolveTerms applies the configuration precedence for a booking.
// Price: request override, client default, provider default, system default.
// Duration: request override, provider default, system default.
// req and client may be nil.
func ResolveTerms(req *models.CreateBookingRequest, client *models.Client, provider *models.Provider, defaults config.SchedulingConfig) Terms {
	terms := Terms{
		DurationMinutes: sessionMinutes(provider, defaults),
		Price:           providerPrice(provider, defaults),
	}

	if client != nil && client.DefaultPrice != nil {
		terms.Price = *client.DefaultPrice
	}

	if req != nil {
		if req.DurationMinutes != nil && *req.DurationMinutes > 0 {
			terms.DurationMinutes = *req.DurationMinutes
		}
		if req.Price != nil {
			terms.Price = *req.Price
		}
	}
	return terms
}

func sessionMinutes(provider *models.Provider, defaults config.SchedulingConfig) int {
	if provider != nil && provider.SessionMinutes > 0 {
		return provider.SessionMinutes
	}
	if defaults.DefaultSessionMinutes > 0 {
		return defaults.DefaultSessionMinutes
	}
	return models.DefaultSessionMinutes
}

// breakMinutes treats a provider with its own session length as owning its break too, even a zero one.
func breakMinutes(provider *models.Provider, defaults config.SchedulingConfig) int {
	if provider != nil && provider.BreakMinutes > 0 {
		return provider.BreakMinutes
	}
	if provider != nil && provider.BreakMinutes == 0 && provider.SessionMinutes > 0 {
		return 0
	}
	return defaults.DefaultBreakMinutes
}

func providerPrice(provider *models.Provider, defaults config.SchedulingConfig) float64 {
	if provider != nil && provider.DefaultPrice != nil {
		return *provider.DefaultPrice
	}
	return defaults.DefaultPrice
}
