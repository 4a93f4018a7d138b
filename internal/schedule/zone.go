package schedule

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // providers may run in images without a zoneinfo database

	"sessionbook/internal/models"
)

// DateLayout is the calendar date format used by slot listing queries.
const DateLayout = "2006-01-02"

var locations sync.Map // name -> *time.Location

// Zone performs every local-time conversion for one provider.
type Zone struct {
	name string
	loc  *time.Location
}

// LoadZone resolves an IANA timezone name. An empty name means UTC.
func LoadZone(name string) (*Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "UTC"
	}
	if cached, ok := locations.Load(name); ok {
		return &Zone{name: name, loc: cached.(*time.Location)}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	locations.Store(name, loc)
	return &Zone{name: name, loc: loc}, nil
}

func (z *Zone) Name() string { return z.name }
func (z *Zone) Location() *time.Location { return z.loc }

// ParseDate interprets a YYYY-MM-DD calendar date in the zone and returns its local midnight.
func (z *Zone) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// Weekday returns the weekday of the calendar date as observed in the zone.
func (z *Zone) Weekday(date time.Time) time.Weekday {
	return date.In(z.loc).Weekday()
}

// At returns the instant at which the zone's wall clock shows tod on the given date.
// ok is false when that wall-clock time does not exist, as inside a DST gap.
func (z *Zone) At(date time.Time, tod models.TimeOfDay) (instant time.Time, ok bool) {
	y, m, d := date.In(z.loc).Date()
	instant = time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, z.loc)
	if tod == models.MinutesPerDay {
		return instant, true
	}
	local := instant.In(z.loc)
	return instant, local.Hour() == tod.Hour() && local.Minute() == tod.Minute()
}

// LocalDate formats the calendar date of an instant in the zone.
func (z *Zone) LocalDate(instant time.Time) string {
	return instant.In(z.loc).Format(DateLayout)
}

// Label formats the local wall-clock time of an instant as HH:MM.
func (z *Zone) Label(instant time.Time) string {
	return instant.In(z.loc).Format("15:04")
}

// DayBounds returns the instants of local midnight and the following midnight.
func (z *Zone) DayBounds(date time.Time) (start, end time.Time) {
	y, m, d := date.In(z.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, z.loc), time.Date(y, m, d+1, 0, 0, 0, 0, z.loc)
}
