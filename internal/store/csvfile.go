package store

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/energy-consumption-aggregation/internal/consumption"
)

// Header is the first line of every store file.
const Header = "Start,End,Consumption"

// FileStore is the append-only record file of one meter. Each row holds a
// quoted UTC start and end timestamp followed by the unquoted consumption.
type FileStore struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
}

// NewFileStore creates a store at path. Calendar dates are derived in loc.
func NewFileStore(path string, loc *time.Location) *FileStore {
	if loc == nil {
		loc = time.Local
	}
	return &FileStore{path: path, loc: loc}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load scans the file once. Rows may appear in any order; readings come back
// sorted by start. A missing file is an empty store.
func (s *FileStore) Load() (consumption.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inv consumption.Inventory

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return inv, nil
	}
	if err != nil {
		return inv, fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	var (
		present  = make(map[string]bool)
		runDate  string
		runCount int
	)
	// a run is a stretch of consecutive rows in file order sharing a date
	closeRun := func() {
		if runDate != "" && runCount != consumption.ReadingsPerDay {
			inv.IncompleteDays = append(inv.IncompleteDays, consumption.IncompleteDay{Date: runDate, Count: runCount})
		}
	}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return consumption.Inventory{}, &consumption.ParseError{Source: s.path, Line: perr.Line, Err: perr.Err}
			}
			return consumption.Inventory{}, fmt.Errorf("read store: %w", err)
		}
		line, _ := r.FieldPos(0)

		if rec[0] == "Start" {
			continue
		}

		reading, err := parseRow(rec)
		if err != nil {
			return consumption.Inventory{}, &consumption.ParseError{Source: s.path, Line: line, Err: err}
		}
		inv.Readings = append(inv.Readings, reading)

		date := consumption.DateKey(reading.Start, s.loc)
		present[date] = true
		if date != runDate {
			closeRun()
			runDate = date
			runCount = 0
		}
		runCount++
	}
	closeRun()

	if len(inv.Readings) == 0 {
		return inv, nil
	}

	consumption.SortReadings(inv.Readings)
	inv.Readings = uniqueStarts(inv.Readings)

	first := inv.Readings[0]
	last := inv.Readings[len(inv.Readings)-1]
	inv.FirstTime = first.Start
	for _, rd := range inv.Readings {
		if rd.End.After(inv.LastTime) {
			inv.LastTime = rd.End
		}
	}
	// the walk stops at the last reading's start date; an end at midnight adds no day
	inv.MissingDays = missingDays(first.Start, last.Start, present, s.loc)

	return inv, nil
}

// Replace writes a fresh file holding the header and readings. The new file
// is renamed over the old one, so a failed replace leaves the store untouched.
func (s *FileStore) Replace(readings []consumption.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(Header + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeRows(w, readings); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}

// Append adds rows to the end of the file, creating it with a header first
// when it does not exist.
func (s *FileStore) Append(readings []consumption.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat store: %w", err)
	}

	w := bufio.NewWriter(f)
	if info.Size() == 0 {
		if _, err := w.WriteString(Header + "\n"); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := writeRows(w, readings); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush store: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync store: %w", err)
	}
	return nil
}

func writeRows(w *bufio.Writer, readings []consumption.Reading) error {
	for _, r := range readings {
		_, err := fmt.Fprintf(w, "\"%s\",\"%s\",%s\n",
			consumption.FormatWire(r.Start),
			consumption.FormatWire(r.End),
			strconv.FormatFloat(r.Consumption, 'f', -1, 64),
		)
		if err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return nil
}

func parseRow(rec []string) (consumption.Reading, error) {
	start, err := consumption.ParseTimestamp(strings.TrimSpace(rec[0]))
	if err != nil {
		return consumption.Reading{}, fmt.Errorf("start: %w", err)
	}
	end, err := consumption.ParseTimestamp(strings.TrimSpace(rec[1]))
	if err != nil {
		return consumption.Reading{}, fmt.Errorf("end: %w", err)
	}
	if !start.Before(end) {
		return consumption.Reading{}, fmt.Errorf("start %s is not before end %s", rec[0], rec[1])
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return consumption.Reading{}, fmt.Errorf("consumption: %w", err)
	}
	return consumption.Reading{Start: start, End: end, Consumption: value}, nil
}

// uniqueStarts keeps the first reading of every start time; readings are sorted.
func uniqueStarts(readings []consumption.Reading) []consumption.Reading {
	out := readings[:1]
	for _, r := range readings[1:] {
		if r.Start.Equal(out[len(out)-1].Start) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// missingDays lists the calendar dates between from and to (inclusive) that
// carry no reading at all.
func missingDays(from, to time.Time, present map[string]bool, loc *time.Location) []string {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	// noon keeps AddDate clear of DST transitions
	day := time.Date(fy, fm, fd, 12, 0, 0, 0, loc)
	last := time.Date(ty, tm, td, 12, 0, 0, 0, loc)

	var missing []string
	for !day.After(last) {
		key := day.Format(consumption.DateLayout)
		if !present[key] {
			missing = append(missing, key)
		}
		day = day.AddDate(0, 0, 1)
	}
	return missing
}
