package schedule

import (
	"sort"
	"time"

	"sessionbook/internal/models"
)

// Generate lists the candidate slots of a calendar date. The weekday is taken
// from the date as seen in zone; every enabled window is stepped through
// independently by session+break minutes and a slot is emitted while it still
// ends inside the window. The result is ordered and free of duplicates.
func Generate(ws models.WeeklySchedule, zone *Zone, date time.Time, sessionMinutes, breakMinutes int) []models.Slot {
	if sessionMinutes <= 0 {
		return nil
	}
	if breakMinutes < 0 {
		breakMinutes = 0
	}
	session := models.TimeOfDay(sessionMinutes)
	step := models.TimeOfDay(sessionMinutes + breakMinutes)

	seen := make(map[models.TimeOfDay]struct{})
	var starts []models.TimeOfDay
	for _, w := range ws.Windows(zone.Weekday(date)) {
		if !w.Enabled || !w.Valid() {
			continue
		}
		for t := w.Start; t+session <= w.End; t += step {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			starts = append(starts, t)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	slots := make([]models.Slot, 0, len(starts))
	for _, t := range starts {
		start, ok := zone.At(date, t)
		if !ok {
			continue
		}
		slots = append(slots, models.Slot{
			Label: t.String(),
			Start: start,
			End:   start.Add(time.Duration(sessionMinutes) * time.Minute),
		})
	}
	return slots
}

// Covers reports whether instant falls inside an enabled window of its local weekday.
// The window end is exclusive.
func Covers(ws models.WeeklySchedule, zone *Zone, instant time.Time) bool {
	for _, w := range ws.Windows(zone.Weekday(instant)) {
		if !w.Enabled || !w.Valid() {
			continue
		}
		start, _ := zone.At(instant, w.Start)
		end, _ := zone.At(instant, w.End)
		if !instant.Before(start) && instant.Before(end) {
			return true
		}
	}
	return false
}
