package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay bounds a TimeOfDay; 24:00 is a valid window end.
const MinutesPerDay = 24 * 60

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS" (seconds are ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	tod := TimeOfDay(h*60 + m)
	if tod > MinutesPerDay {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return tod, nil
}

func MustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}

func (t TimeOfDay) Hour() int { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Window is one availability range of a weekday, [Start, End) in local time.
type Window struct {
	Enabled bool      `json:"enabled"`
	Start   TimeOfDay `json:"start"`
	End     TimeOfDay `json:"end"`
}

// Valid reports whether the window describes a non-empty range.
func (w Window) Valid() bool {
	return w.Start >= 0 && w.End <= MinutesPerDay && w.Start < w.End
}

// WeeklySchedule holds the windows of each weekday, indexed by time.Weekday.
type WeeklySchedule struct {
	Days [7][]Window
}

// WeekdayNames are the canonical serialized day keys.
var WeekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// ParseWeekday resolves a day key case-insensitively; three-letter forms are accepted.
func ParseWeekday(name string) (time.Weekday, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, full := range WeekdayNames {
		if key == full || (len(key) == 3 && strings.HasPrefix(full, key)) {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Windows returns the windows configured for a weekday.
func (ws WeeklySchedule) Windows(day time.Weekday) []Window {
	return ws.Days[day]
}

// HasEnabled reports whether the weekday has at least one usable window.
func (ws WeeklySchedule) HasEnabled(day time.Weekday) bool {
	for _, w := range ws.Days[day] {
		if w.Enabled && w.Valid() {
			return true
		}
	}
	return false
}

// MarshalJSON writes the canonical list shape keyed by lower-case day names.
func (ws WeeklySchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Window, len(WeekdayNames))
	for i, name := range WeekdayNames {
		windows := ws.Days[i]
		if windows == nil {
			windows = []Window{}
		}
		out[name] = windows
	}
	return json.Marshal(out)
}
