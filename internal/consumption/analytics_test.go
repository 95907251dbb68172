package consumption

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dataset(readings []Reading) Dataset {
	SortReadings(readings)
	ds := Dataset{Readings: readings}
	if len(readings) > 0 {
		ds.FirstTime = readings[0].Start
		ds.LastTime = readings[len(readings)-1].End
	}
	return ds
}

func newTestAnalytics(t *testing.T, dayStart string, windows ...int) *Analytics {
	t.Helper()
	a, err := NewAnalytics(AnalyticsOptions{DayStart: dayStart, Windows: windows, Location: time.UTC})
	require.NoError(t, err)
	return a
}

func TestNewAnalyticsValidation(t *testing.T) {
	for name, opts := range map[string]AnalyticsOptions{
		"bad day start":    {DayStart: "6am"},
		"zero window":      {Windows: []int{0, 7}},
		"duplicate window": {Windows: []int{7, 7}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewAnalytics(opts)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	a, err := NewAnalytics(AnalyticsOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWindows, a.windows)
	assert.Equal(t, time.Local, a.Location())
}

func TestBuildDayAggregates(t *testing.T) {
	readings := series(jan1, ReadingsPerDay, func(i int) float64 { return 0.1 + float64(i)/100 })
	snap := newTestAnalytics(t, "00:00", 1).Build(dataset(readings))

	require.Equal(t, []string{"2024-01-01"}, snap.Dates)
	day := snap.Days["2024-01-01"]
	require.True(t, day.Full())

	assert.Equal(t, "00:00", day.Times[0])
	assert.Equal(t, "23:30", day.Times[47])
	// 48*0.1 + (0+...+47)/100
	assert.InDelta(t, 4.8+11.28, day.Total, 1e-9)
	assert.InDelta(t, 0.1*48, day.Base, 1e-9)
	assert.InDelta(t, 0.57, day.Max, 1e-9)

	assert.InDelta(t, 0.1, snap.Min, 1e-12)
	assert.InDelta(t, 0.57, snap.Max, 1e-12)
	assert.Equal(t, "2024-01-01", snap.FirstFullDay)
	assert.Equal(t, "2024-01-01", snap.LastFullDay)
}

func TestBuildMinSeededFromData(t *testing.T) {
	readings := series(jan1, 4, func(i int) float64 { return 2 + float64(i) })
	snap := newTestAnalytics(t, "").Build(dataset(readings))

	assert.Equal(t, 2.0, snap.Min)
	assert.Equal(t, 5.0, snap.Max)
}

func TestFullDayNeedsExactly48Readings(t *testing.T) {
	d47 := series(jan1, 47, constant(1))
	d48 := series(jan1.AddDate(0, 0, 1), 48, constant(1))
	d49 := series(jan1.AddDate(0, 0, 2), 48, constant(1))
	extra := jan1.AddDate(0, 0, 2).Add(12*time.Hour + 15*time.Minute)
	d49 = append(d49, Reading{Start: extra, End: extra.Add(15 * time.Minute), Consumption: 1})

	var readings []Reading
	readings = append(readings, d47...)
	readings = append(readings, d48...)
	readings = append(readings, d49...)
	snap := newTestAnalytics(t, "00:00", 1).Build(dataset(readings))

	require.Len(t, snap.Days, 3)
	assert.Len(t, snap.Days["2024-01-01"].Consumption, 47)
	assert.Len(t, snap.Days["2024-01-03"].Consumption, 49)
	assert.Equal(t, []string{"2024-01-02"}, snap.FullDays)
	assert.Contains(t, snap.WindowAverages[1], "2024-01-02")
	assert.NotContains(t, snap.WindowAverages[1], "2024-01-01")
	assert.NotContains(t, snap.WindowAverages[1], "2024-01-03")
}

func TestRollingAveragesMatchDirectRecompute(t *testing.T) {
	const days = 40
	var readings []Reading
	for d := 0; d < days; d++ {
		day := jan1.AddDate(0, 0, d)
		if d == 17 {
			// a partial day must not enter any window
			readings = append(readings, series(day, 30, constant(9))...)
			continue
		}
		readings = append(readings, series(day, ReadingsPerDay, func(i int) float64 {
			return 0.013*float64(d%11) + 0.007*float64(i%5) + 0.05
		})...)
	}

	windows := []int{3, 7, 30}
	snap := newTestAnalytics(t, "00:00", windows...).Build(dataset(readings))
	require.Len(t, snap.FullDays, days-1)

	for _, n := range windows {
		avgs := snap.WindowAverages[n]
		assert.Len(t, avgs, len(snap.FullDays)-n+1)

		for i, date := range snap.FullDays {
			got, ok := avgs[date]
			if i+1 < n {
				assert.False(t, ok, "window %d emitted before %d full days", n, n)
				continue
			}
			require.True(t, ok)

			var total, base, max float64
			for _, d := range snap.FullDays[i+1-n : i+1] {
				total += snap.Days[d].Total
				base += snap.Days[d].Base
				max += snap.Days[d].Max
			}
			assert.InDelta(t, total/float64(n), got.Total, 1e-9)
			assert.InDelta(t, base/float64(n), got.Base, 1e-9)
			assert.InDelta(t, max/float64(n), got.Max, 1e-9)
		}
	}
}

func TestDayStartCutoff(t *testing.T) {
	// 48 readings from 06:00 on Jan 1 to 05:30 on Jan 2 form one logical day.
	first := series(jan1.Add(6*time.Hour), ReadingsPerDay, constant(1))
	second := series(jan1.AddDate(0, 0, 1).Add(6*time.Hour), ReadingsPerDay, constant(2))
	snap := newTestAnalytics(t, "06:00", 1).Build(dataset(append(first, second...)))

	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, snap.Dates)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02"}, snap.FullDays)
	day := snap.Days["2024-01-01"]
	assert.Equal(t, "06:00", day.Times[0])
	assert.Equal(t, "05:30", day.Times[47])
	assert.InDelta(t, 48.0, day.Total, 1e-9)
}

func TestDayStartAfterSkippedDay(t *testing.T) {
	// A gap of more than one calendar day starts a new day before the cutoff.
	first := series(jan1.Add(10*time.Hour), 4, constant(1))
	second := series(jan1.AddDate(0, 0, 2).Add(2*time.Hour), 4, constant(1))
	snap := newTestAnalytics(t, "06:00", 1).Build(dataset(append(first, second...)))

	assert.Equal(t, []string{"2024-01-01", "2024-01-03"}, snap.Dates)
	assert.Empty(t, snap.FullDays)
}

func TestDayBoundaryInLocalTimezone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	a, err := NewAnalytics(AnalyticsOptions{Location: loc, Windows: []int{1}})
	require.NoError(t, err)

	// local midnight of Jan 1 is 05:00 UTC
	readings := series(jan1.Add(5*time.Hour), ReadingsPerDay, constant(1))
	snap := a.Build(dataset(readings))

	assert.Equal(t, []string{"2024-01-01"}, snap.FullDays)
	assert.Equal(t, "00:00", snap.Days["2024-01-01"].Times[0])
}

func TestSnapshotIsCachedPerRange(t *testing.T) {
	a := newTestAnalytics(t, "", 1)
	readings := series(jan1, ReadingsPerDay*2, constant(1))

	ds := dataset(readings[:ReadingsPerDay])
	first := a.Snapshot(ds)
	assert.Same(t, first, a.Snapshot(ds))

	grown := a.Snapshot(dataset(readings))
	assert.NotSame(t, first, grown)
	assert.Len(t, grown.FullDays, 2)
}

func TestBuildEmpty(t *testing.T) {
	snap := newTestAnalytics(t, "").Build(Dataset{})
	assert.Empty(t, snap.Dates)
	assert.Empty(t, snap.FullDays)
	assert.Equal(t, "", snap.FirstDay)
}
