package live

import (
	"fmt"
	"strings"
	"time"
)

// HourWindow is a daily trading window in minutes since midnight. A window
// whose end is not after its start crosses midnight.
type HourWindow struct {
	Start int
	End   int
}

// ParseHourWindows parses a comma-separated "HH:MM-HH:MM" spec. An empty
// spec means no gating.
func ParseHourWindows(spec string) ([]HourWindow, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	windows := make([]HourWindow, 0, len(parts))
	for _, part := range parts {
		from, to, ok := strings.Cut(strings.TrimSpace(part), "-")
		if !ok {
			return nil, fmt.Errorf("hour window %q: want HH:MM-HH:MM", part)
		}
		start, err := parseClock(from)
		if err != nil {
			return nil, fmt.Errorf("hour window %q: %w", part, err)
		}
		end, err := parseClock(to)
		if err != nil {
			return nil, fmt.Errorf("hour window %q: %w", part, err)
		}
		windows = append(windows, HourWindow{Start: start, End: end})
	}
	return windows, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether the wall-clock minute of t falls inside the window.
func (w HourWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.Start < w.End {
		return m >= w.Start && m < w.End
	}
	// crosses midnight
	return m >= w.Start || m < w.End
}

// InWindows reports whether t is inside any window. No windows means no
// gating: always true.
func InWindows(windows []HourWindow, t time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}
