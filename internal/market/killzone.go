package market

import (
	"fmt"
	"time"
)

// Window is an allowed UTC wall-clock window during which an agent may
// open trades (GLOSSARY: "Killzone").
type Window struct {
	StartHour, StartMinute int
	EndHour, EndMinute     int
}

// ParseWindow parses "HH:MM" strings into a Window.
func ParseWindow(start, end string) (Window, error) {
	var w Window
	if _, err := fmt.Sscanf(start, "%d:%d", &w.StartHour, &w.StartMinute); err != nil {
		return Window{}, fmt.Errorf("parse killzone start %q: %w", start, err)
	}
	if _, err := fmt.Sscanf(end, "%d:%d", &w.EndHour, &w.EndMinute); err != nil {
		return Window{}, fmt.Errorf("parse killzone end %q: %w", end, err)
	}
	return w, nil
}

// InWindow reports whether t (in UTC) falls inside the window. A window
// whose end is numerically before its start wraps across midnight
// (GLOSSARY: "Killzone wrap-around").
func InWindow(w Window, t time.Time) bool {
	t = t.UTC()
	nowMinutes := t.Hour()*60 + t.Minute()
	startMinutes := w.StartHour*60 + w.StartMinute
	endMinutes := w.EndHour*60 + w.EndMinute

	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes < endMinutes
	}
	// wrap-around: e.g. 22:00-06:00
	return nowMinutes >= startMinutes || nowMinutes < endMinutes
}
