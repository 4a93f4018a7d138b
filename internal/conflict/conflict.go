// Package conflict decides whether candidate intervals collide with existing bookings.
package conflict

import (
	"time"

	"sessionbook/internal/models"
)

// Interval is a half-open range of absolute instants, [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func FromSlot(s models.Slot) Interval {
	return Interval{Start: s.Start, End: s.End}
}

func FromBooking(b *models.Booking) Interval {
	return Interval{Start: b.StartAt, End: b.EndAt()}
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals (one ends exactly when the other starts) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// Detect returns the indexes of candidates that overlap at least one active
// booking. Cancelled bookings are ignored.
func Detect(candidates []Interval, bookings []*models.Booking) []int {
	active := activeIntervals(bookings)
	var hits []int
	for i, c := range candidates {
		if overlapsAny(c, active) {
			hits = append(hits, i)
		}
	}
	return hits
}

// Conflicts reports whether a single interval collides with an active booking
// and returns the first offender.
func Conflicts(candidate Interval, bookings []*models.Booking) (*models.Booking, bool) {
	for _, b := range bookings {
		if b == nil || !b.IsActive() {
			continue
		}
		if Overlaps(candidate, FromBooking(b)) {
			return b, true
		}
	}
	return nil, false
}

// Filter drops the slots that overlap an active booking, preserving order.
func Filter(slots []models.Slot, bookings []*models.Booking) []models.Slot {
	active := activeIntervals(bookings)
	free := make([]models.Slot, 0, len(slots))
	for _, s := range slots {
		if !overlapsAny(FromSlot(s), active) {
			free = append(free, s)
		}
	}
	return free
}

func activeIntervals(bookings []*models.Booking) []Interval {
	out := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if b != nil && b.IsActive() {
			out = append(out, FromBooking(b))
		}
	}
	return out
}

func overlapsAny(c Interval, intervals []Interval) bool {
	for _, iv := range intervals {
		if Overlaps(c, iv) {
			return true
		}
	}
	return false
}
