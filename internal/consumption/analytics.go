package consumption

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/i474232898/energy-consumption-aggregation/internal/observability"
)

// DefaultWindows are the rolling-window sizes used when none are configured.
var DefaultWindows = []int{7, 14, 30, 60, 90}

var readingsPerDay = decimal.NewFromInt(ReadingsPerDay)

// AnalyticsOptions contains configuration for creating an Analytics engine.
type AnalyticsOptions struct {
	// DayStart is the "HH:MM" time of day at which a logical day begins.
	DayStart string
	Windows  []int
	Location *time.Location
	Metrics  *observability.Metrics
}

// Analytics folds readings into days and rolling averages. The last snapshot
// is cached and reused while the reading range is unchanged.
type Analytics struct {
	dayStart int
	windows  []int
	loc      *time.Location
	metrics  *observability.Metrics

	mu   sync.Mutex
	snap *Snapshot
}

// NewAnalytics validates the options and creates the engine.
func NewAnalytics(opts AnalyticsOptions) (*Analytics, error) {
	dayStart := 0
	if opts.DayStart != "" {
		m, err := ParseClock(opts.DayStart)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid day start %q", ErrConfiguration, opts.DayStart)
		}
		dayStart = m
	}

	windows := opts.Windows
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	seen := make(map[int]bool, len(windows))
	for _, n := range windows {
		if n < 1 || seen[n] {
			return nil, fmt.Errorf("%w: invalid rolling windows %v", ErrConfiguration, windows)
		}
		seen[n] = true
	}

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &Analytics{
		dayStart: dayStart,
		windows:  append([]int(nil), windows...),
		loc:      loc,
		metrics:  opts.Metrics,
	}, nil
}

// Location is the timezone calendar dates are derived in.
func (a *Analytics) Location() *time.Location {
	return a.loc
}

// Snapshot returns the cached snapshot for ds, rebuilding it when the reading
// range differs from the one it was built from.
func (a *Analytics) Snapshot(ds Dataset) *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.snap != nil && a.snap.FirstTime.Equal(ds.FirstTime) && a.snap.LastTime.Equal(ds.LastTime) {
		return a.snap
	}

	started := time.Now()
	a.snap = a.Build(ds)
	a.metrics.ObserveBuild(len(a.snap.FullDays), time.Since(started))
	return a.snap
}

// dayStats are the exact per-day figures fed to the rolling windows.
type dayStats struct {
	total decimal.Decimal
	base  decimal.Decimal
	max   decimal.Decimal
}

type rollingWindow struct {
	size  int
	total decimal.Decimal
	base  decimal.Decimal
	max   decimal.Decimal
	avgs  map[string]Average
}

// push adds the i-th full day (1-based) and, once the window is filled, emits
// the average for date and drops the oldest day from the trailing sums.
func (w *rollingWindow) push(i int, date string, stats []dayStats) {
	cur := stats[i-1]
	w.total = w.total.Add(cur.total)
	w.base = w.base.Add(cur.base)
	w.max = w.max.Add(cur.max)

	if i < w.size {
		return
	}

	n := decimal.NewFromInt(int64(w.size))
	w.avgs[date] = Average{
		Total: w.total.Div(n).InexactFloat64(),
		Base:  w.base.Div(n).InexactFloat64(),
		Max:   w.max.Div(n).InexactFloat64(),
	}

	old := stats[i-w.size]
	w.total = w.total.Sub(old.total)
	w.base = w.base.Sub(old.base)
	w.max = w.max.Sub(old.max)
}

// Build computes a snapshot from sorted readings. It has no side effects.
func (a *Analytics) Build(ds Dataset) *Snapshot {
	snap := &Snapshot{
		FirstTime:      ds.FirstTime,
		LastTime:       ds.LastTime,
		Days:           make(map[string]*Day),
		Windows:        append([]int(nil), a.windows...),
		WindowAverages: make(map[int]map[string]Average, len(a.windows)),
	}
	if !ds.FirstTime.IsZero() {
		snap.FirstDay = DateKey(ds.FirstTime, a.loc)
	}
	if !ds.LastTime.IsZero() {
		snap.LastDay = DateKey(ds.LastTime, a.loc)
	}

	windows := make([]*rollingWindow, len(a.windows))
	for i, n := range a.windows {
		windows[i] = &rollingWindow{size: n, avgs: make(map[string]Average)}
		snap.WindowAverages[n] = windows[i].avgs
	}

	var (
		stats    []dayStats
		cur      *Day
		curStart time.Time
	)

	closeDay := func() {
		st := summarise(cur)
		snap.Days[cur.Date] = cur
		if !cur.Full() {
			return
		}
		snap.FullDays = append(snap.FullDays, cur.Date)
		stats = append(stats, st)
		for _, w := range windows {
			w.push(len(stats), cur.Date, stats)
		}
	}

	for i, r := range ds.Readings {
		if i == 0 || r.Consumption < snap.Min {
			snap.Min = r.Consumption
		}
		if i == 0 || r.Consumption > snap.Max {
			snap.Max = r.Consumption
		}

		if a.isNewDay(cur != nil, curStart, r.Start) {
			if cur != nil {
				closeDay()
			}
			cur = &Day{Date: DateKey(r.Start, a.loc)}
			curStart = r.Start
		}
		cur.Consumption = append(cur.Consumption, r.Consumption)
		cur.Times = append(cur.Times, ClockLabel(r.Start, a.loc))
	}
	if cur != nil {
		closeDay()
	}

	if len(snap.FullDays) > 0 {
		snap.FirstFullDay = snap.FullDays[0]
		snap.LastFullDay = snap.FullDays[len(snap.FullDays)-1]
	}

	snap.Dates = make([]string, 0, len(snap.Days))
	for d := range snap.Days {
		snap.Dates = append(snap.Dates, d)
	}
	sort.Strings(snap.Dates)

	return snap
}

// isNewDay reports whether a reading at t opens a new logical day, given the
// start time of the ongoing day. A day opens on a date change when days were
// skipped, or when t is at or after the day-start cutoff.
func (a *Analytics) isNewDay(ongoing bool, dayStart, t time.Time) bool {
	if !ongoing {
		return true
	}

	last := dayStart.In(a.loc)
	local := t.In(a.loc)
	if sameDate(last, local) {
		return false
	}
	if !sameDate(last.AddDate(0, 0, 1), local) {
		return true
	}
	return local.Hour()*60+local.Minute() >= a.dayStart
}

// summarise fills in the day totals and returns their exact values.
func summarise(d *Day) dayStats {
	var st dayStats
	for i, c := range d.Consumption {
		v := decimal.NewFromFloat(c)
		st.total = st.total.Add(v)
		if i == 0 || v.LessThan(st.base) {
			st.base = v
		}
		if i == 0 || v.GreaterThan(st.max) {
			st.max = v
		}
	}
	st.base = st.base.Mul(readingsPerDay)

	d.Total = st.total.InexactFloat64()
	d.Base = st.base.InexactFloat64()
	d.Max = st.max.InexactFloat64()
	return st
}
