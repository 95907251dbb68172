package consumption

import "time"

// window is one page request [Start, End). Final is set when the walk has
// reached the present and no further page follows.
type window struct {
	Start time.Time
	End   time.Time
	Next  time.Time
	Final bool
}

// pageWindow returns the page that starts (forward) or ends (backward) at t.
// Forward windows are clamped to now; backward windows always continue into
// the past and only stop on an empty page.
func pageWindow(forward bool, t, now time.Time, spanDays int) window {
	if forward {
		end := t.AddDate(0, 0, spanDays)
		if !end.Before(now) {
			return window{Start: t, End: now, Final: true}
		}
		return window{Start: t, End: end, Next: end}
	}

	start := t.AddDate(0, 0, -spanDays)
	return window{Start: start, End: t, Next: start}
}
