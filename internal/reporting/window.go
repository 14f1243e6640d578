package reporting

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidWindow is returned for an unrecognised report window.
var ErrInvalidWindow = errors.New("invalid report window")

// Window is the time range a report covers, measured back from now.
type Window string

const (
	WindowAll Window = "all"
	Window7d  Window = "7d"
	Window30d Window = "30d"
	Window90d Window = "90d"
)

var windowDays = map[Window]int{
	Window7d:  7,
	Window30d: 30,
	Window90d: 90,
}

// ParseWindow accepts all, 7d, 30d and 90d, plus the dashboard's last7d,
// last30d and last90d spellings. The empty string means all.
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "last")
	if s == "" {
		return WindowAll, nil
	}
	w := Window(s)
	if w == WindowAll {
		return w, nil
	}
	if _, ok := windowDays[w]; ok {
		return w, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
}

// Since returns the earliest creation time included in the window, or the
// zero time for WindowAll.
func (w Window) Since(now time.Time) time.Time {
	days, ok := windowDays[w]
	if !ok {
		return time.Time{}
	}
	return now.AddDate(0, 0, -days)
}

func (w Window) String() string { return string(w) }
