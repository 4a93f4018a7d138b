package schedule

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"sessionbook/internal/models"
)

var (
	ErrNotObject  = errors.New("schedule must be an object keyed by weekday")
	ErrUnknownDay = errors.New("unknown weekday")
)

// Default is the schedule used when none is stored or the stored one cannot be read:
// Monday through Friday 09:00-17:00, weekends closed.
func Default() models.WeeklySchedule {
	var ws models.WeeklySchedule
	for day := time.Monday; day <= time.Friday; day++ {
		ws.Days[day] = []models.Window{{
			Enabled: true,
			Start:   9 * 60,
			End:     17 * 60,
		}}
	}
	ws.Days[time.Saturday] = []models.Window{{Enabled: false, Start: 9 * 60, End: 17 * 60}}
	ws.Days[time.Sunday] = []models.Window{{Enabled: false, Start: 9 * 60, End: 17 * 60}}
	return ws
}

// Normalize decodes a stored schedule of any accepted shape. When the data is
// missing or malformed it returns Default and reports fellBack; err describes
// the malformed input and is nil when nothing was stored.
func Normalize(raw []byte) (ws models.WeeklySchedule, fellBack bool, err error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Default(), true, nil
	}
	ws, err = Parse(raw)
	if err != nil {
		return Default(), true, err
	}
	return ws, false, nil
}

// Parse decodes a JSON schedule in either the list or the single-window shape.
func Parse(raw []byte) (models.WeeklySchedule, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.WeeklySchedule{}, fmt.Errorf("decode schedule: %w", err)
	}
	return FromValue(v)
}

// FromValue converts an already decoded document (JSON or YAML) into the canonical model.
//
// Each weekday value may be a list of windows or a single window object:
//
//	{"monday": [{"enabled": true, "start": "09:00", "end": "12:00"}]}
//	{"monday": {"enabled": true, "start": "09:00", "end": "17:00"}}
func FromValue(v any) (models.WeeklySchedule, error) {
	var ws models.WeeklySchedule
	days, ok := stringMap(v)
	if !ok {
		return ws, ErrNotObject
	}
	for key, value := range days {
		day, ok := models.ParseWeekday(key)
		if !ok {
			return ws, fmt.Errorf("%w: %q", ErrUnknownDay, key)
		}
		windows, err := dayWindows(value)
		if err != nil {
			return ws, fmt.Errorf("%s: %w", models.WeekdayNames[day], err)
		}
		ws.Days[day] = append(ws.Days[day], windows...)
	}
	for day := range ws.Days {
		sort.SliceStable(ws.Days[day], func(i, j int) bool {
			return ws.Days[day][i].Start < ws.Days[day][j].Start
		})
	}
	return ws, nil
}

// Encode writes the canonical list shape.
func Encode(ws models.WeeklySchedule) ([]byte, error) {
	return json.Marshal(ws)
}

func dayWindows(v any) ([]models.Window, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case []any:
		windows := make([]models.Window, 0, len(value))
		for i, item := range value {
			w, err := window(item)
			if err != nil {
				return nil, fmt.Errorf("window %d: %w", i, err)
			}
			windows = append(windows, w)
		}
		return windows, nil
	default:
		w, err := window(value)
		if err != nil {
			return nil, err
		}
		return []models.Window{w}, nil
	}
}

func window(v any) (models.Window, error) {
	fields, ok := stringMap(v)
	if !ok {
		return models.Window{}, fmt.Errorf("window must be an object, got %T", v)
	}

	w := models.Window{Enabled: true}
	if raw, ok := fields["enabled"]; ok {
		enabled, ok := raw.(bool)
		if !ok {
			return w, fmt.Errorf("enabled must be a boolean, got %T", raw)
		}
		w.Enabled = enabled
	}

	start, hasStart, err := timeField(fields, "start", "start_time")
	if err != nil {
		return w, err
	}
	end, hasEnd, err := timeField(fields, "end", "end_time")
	if err != nil {
		return w, err
	}
	if !w.Enabled && !hasStart && !hasEnd {
		return w, nil
	}
	if !hasStart || !hasEnd {
		return w, errors.New("window requires start and end")
	}
	w.Start, w.End = start, end
	if w.Enabled && !w.Valid() {
		return w, fmt.Errorf("window start %s must be before end %s", start, end)
	}
	return w, nil
}

func timeField(fields map[string]any, keys ...string) (models.TimeOfDay, bool, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return 0, true, fmt.Errorf("%s must be a string, got %T", key, raw)
		}
		tod, err := models.ParseTimeOfDay(s)
		if err != nil {
			return 0, true, err
		}
		return tod, true, nil
	}
	return 0, false, nil
}

// stringMap accepts maps produced by encoding/json, yaml.v3 and yaml.v2.
func stringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = normalizeYAML(val)
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizeYAML(v any) any {
	if list, ok := v.([]any); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = normalizeYAML(item)
		}
		return out
	}
	if m, ok := stringMap(v); ok {
		return m
	}
	return v
}
