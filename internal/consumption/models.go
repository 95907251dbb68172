package consumption

import (
	"sort"
	"time"
)

// ReadingsPerDay is the number of half-hour intervals in a complete day.
const ReadingsPerDay = 48

// Reading is one half-hour consumption measurement.
// Start and End carry an offset; Start is always before End.
type Reading struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Consumption float64   `json:"consumption"`
}

// SortReadings orders readings by interval start, keeping the relative order of equal starts.
func SortReadings(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Start.Before(readings[j].Start)
	})
}

// IncompleteDay is a calendar date whose run of readings in the store is not a full day.
type IncompleteDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Inventory is the result of a full store scan.
type Inventory struct {
	Readings       []Reading
	IncompleteDays []IncompleteDay
	MissingDays    []string

	// FirstTime is the start of the earliest reading, LastTime the end of the latest.
	// Both are zero for an empty store.
	FirstTime time.Time
	LastTime  time.Time
}

// Empty reports whether the inventory holds no readings.
func (inv Inventory) Empty() bool {
	return len(inv.Readings) == 0
}

// Day aggregates the readings of one logical day.
type Day struct {
	Date        string    `json:"date"`
	Times       []string  `json:"times"`
	Consumption []float64 `json:"consumption"`

	Total float64 `json:"total"`
	Base  float64 `json:"base"` // lowest half-hour value projected over 24h
	Max   float64 `json:"max"`
}

// Full reports whether the day has exactly one reading per half hour.
func (d *Day) Full() bool {
	return len(d.Consumption) == ReadingsPerDay
}

// Average is a trailing mean over the last N full days.
type Average struct {
	Total float64 `json:"total"`
	Base  float64 `json:"base"`
	Max   float64 `json:"max"`
}

// Kind selects which per-day metric an averages query returns.
type Kind string

const (
	KindTotal Kind = "total"
	KindBase  Kind = "base"
	KindMax   Kind = "max"
)

// State names of the sync engine.
const (
	StateIdle        = "Idle"
	StateLoading     = "Loading"
	StateDownloading = "Downloading"
	StateSaving      = "Saving"
	StateError       = "Error"
)

// StateEntry is one entry of the observable state trail.
type StateEntry struct {
	RunID   string    `json:"runId"`
	Time    time.Time `json:"time"`
	State   string    `json:"state"`
	Message string    `json:"message"`
	OK      bool      `json:"ok"`
}

// Availability summarises the committed store contents.
type Availability struct {
	Records        int             `json:"records"`
	IncompleteDays []IncompleteDay `json:"incompleteDays"`
	MissingDays    []string        `json:"missingDays"`
	FirstTime      time.Time       `json:"firstTime"`
	LastTime       time.Time       `json:"lastTime"`
}

// HaveData reports whether any reading is stored.
func (a Availability) HaveData() bool {
	return a.Records > 0
}

// Status is the sync engine view handed to the serving layer.
// Available is nil while a sync run is in flight.
type Status struct {
	Running   bool          `json:"running"`
	State     string        `json:"state"`
	Log       []StateEntry  `json:"log"`
	Available *Availability `json:"available,omitempty"`
}

// Dataset is the read-only input of the analytics engine.
type Dataset struct {
	Readings  []Reading
	FirstTime time.Time
	LastTime  time.Time
}
