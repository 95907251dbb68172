package consumption

import "time"

const (
	// WireLayout is the UTC timestamp format of the store file and the source query.
	WireLayout  = "2006-01-02T15:04:05Z"
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// FormatWire renders t in UTC with seconds resolution.
func FormatWire(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(WireLayout)
}

// ParseTimestamp accepts the wire format as well as timestamps with a numeric offset.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

// DateKey is the calendar date of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// ClockLabel is the time of day of t in loc.
func ClockLabel(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(ClockLayout)
}

// ParseClock converts an "HH:MM" time of day to minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
