package consumption

import (
	"fmt"
	"sort"
	"time"
)

// Snapshot is the analytics result for one reading range.
type Snapshot struct {
	FirstTime time.Time
	LastTime  time.Time

	Days     map[string]*Day
	Dates    []string // every date key, ascending
	FullDays []string // dates of full days, ascending

	Windows        []int
	WindowAverages map[int]map[string]Average // window size -> date -> average

	Min float64
	Max float64

	FirstDay     string
	LastDay      string
	FirstFullDay string
	LastFullDay  string
}

// RangeMeta describes the data range behind a query result.
type RangeMeta struct {
	FirstDay     string `json:"first_day"`
	LastDay      string `json:"last_day"`
	FirstFullDay string `json:"first_full_day"`
	LastFullDay  string `json:"last_full_day"`
}

// DayView is the result of a day query.
type DayView struct {
	Day  *Day
	Prev *string
	Next *string
	Meta RangeMeta
}

// AverageSeries is one rolling window aligned with the full-day dates.
// Values are nil where the window had insufficient history.
type AverageSeries struct {
	Window int
	Label  string
	Values []*float64
}

// AveragesView is the result of an averages query.
type AveragesView struct {
	Kind   Kind
	Days   []string
	Daily  []float64
	Series []AverageSeries
	Meta   RangeMeta
}

func (s *Snapshot) meta() RangeMeta {
	return RangeMeta{
		FirstDay:     s.FirstDay,
		LastDay:      s.LastDay,
		FirstFullDay: s.FirstFullDay,
		LastFullDay:  s.LastFullDay,
	}
}

// Day resolves ref, either "last" or a YYYY-MM-DD date. "last" is the most
// recent full day, or the earliest day when none is full.
func (s *Snapshot) Day(ref string) (DayView, error) {
	var idx int
	switch {
	case ref == "last":
		if len(s.Dates) == 0 {
			return DayView{}, ErrDayNotFound
		}
		idx = len(s.Dates) - 1
		for idx > 0 && !s.Days[s.Dates[idx]].Full() {
			idx--
		}
	default:
		if _, err := time.Parse(DateLayout, ref); err != nil {
			return DayView{}, fmt.Errorf("%w: %s", ErrInvalidDate, ref)
		}
		idx = sort.SearchStrings(s.Dates, ref)
		if idx >= len(s.Dates) || s.Dates[idx] != ref {
			return DayView{}, fmt.Errorf("%w: %s", ErrDayNotFound, ref)
		}
	}

	view := DayView{
		Day:  s.Days[s.Dates[idx]],
		Meta: s.meta(),
	}
	if idx > 0 {
		prev := s.Dates[idx-1]
		view.Prev = &prev
	}
	if idx < len(s.Dates)-1 {
		next := s.Dates[idx+1]
		view.Next = &next
	}
	return view, nil
}

// Averages returns the per-full-day series of kind and one series per window.
func (s *Snapshot) Averages(kind Kind) (AveragesView, error) {
	var pick func(Average) float64
	var daily func(*Day) float64
	switch kind {
	case KindTotal:
		pick = func(a Average) float64 { return a.Total }
		daily = func(d *Day) float64 { return d.Total }
	case KindBase:
		pick = func(a Average) float64 { return a.Base }
		daily = func(d *Day) float64 { return d.Base }
	case KindMax:
		pick = func(a Average) float64 { return a.Max }
		daily = func(d *Day) float64 { return d.Max }
	default:
		return AveragesView{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	view := AveragesView{
		Kind:  kind,
		Days:  s.FullDays,
		Daily: make([]float64, len(s.FullDays)),
		Meta:  s.meta(),
	}
	for i, d := range s.FullDays {
		view.Daily[i] = daily(s.Days[d])
	}

	for _, n := range s.Windows {
		series := AverageSeries{
			Window: n,
			Label:  fmt.Sprintf("%d-day average", n),
			Values: make([]*float64, len(s.FullDays)),
		}
		for i, d := range s.FullDays {
			if avg, ok := s.WindowAverages[n][d]; ok {
				v := pick(avg)
				series.Values[i] = &v
			}
		}
		view.Series = append(view.Series, series)
	}
	return view, nil
}
