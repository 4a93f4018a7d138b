package models

import "time"

// Slot is a bookable interval derived from a schedule window.
type Slot struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotListing is the answer to a "which times are free on this date" query.
type SlotListing struct {
	ProviderID   int64  `json:"provider_id"`
	ProviderSlug string `json:"provider"`
	ProviderName string `json:"provider_name"`
	Date         string `json:"date"`
	Timezone     string `json:"timezone"`
	Slots        []Slot `json:"slots"`
}

// Labels returns the local start times of the listed slots.
func (l *SlotListing) Labels() []string {
	labels := make([]string, 0, len(l.Slots))
	for _, s := range l.Slots {
		labels = append(labels, s.Label)
	}
	return labels
}
