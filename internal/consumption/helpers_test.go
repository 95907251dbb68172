package consumption

import (
	"context"
	"sync"
	"time"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// series returns n consecutive half-hour readings starting at from, with the
// value of reading i given by value(i).
func series(from time.Time, n int, value func(i int) float64) []Reading {
	out := make([]Reading, n)
	for i := range out {
		start := from.Add(time.Duration(i) * 30 * time.Minute)
		out[i] = Reading{Start: start, End: start.Add(30 * time.Minute), Consumption: value(i)}
	}
	return out
}

func constant(v float64) func(int) float64 {
	return func(int) float64 { return v }
}

type fetchCall struct {
	from     time.Time
	to       time.Time
	pageSize int
}

// fakeSource serves readings from an in-memory remote history.
type fakeSource struct {
	mu     sync.Mutex
	remote []Reading
	calls  []fetchCall

	// failAt is the 1-based call that returns err; zero never fails.
	failAt int
	err    error

	started chan struct{}
	block   chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, from, to time.Time, pageSize int) ([]Reading, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{from: from, to: to, pageSize: pageSize})
	n := len(f.calls)
	f.mu.Unlock()

	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failAt > 0 && n == f.failAt {
		return nil, f.err
	}

	var out []Reading
	for _, r := range f.remote {
		if !r.Start.Before(from) && r.Start.Before(to) {
			out = append(out, r)
			if len(out) == pageSize {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeSource) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

// memStore keeps rows in memory in write order.
type memStore struct {
	mu       sync.Mutex
	rows     []Reading
	replaces int
	appends  int
	loadErr  error
	writeErr error
}

func (m *memStore) Load() (Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return Inventory{}, m.loadErr
	}

	rows := append([]Reading(nil), m.rows...)
	SortReadings(rows)
	inv := Inventory{Readings: rows}
	if len(rows) > 0 {
		inv.FirstTime = rows[0].Start
		inv.LastTime = rows[len(rows)-1].End
	}
	return inv, nil
}

func (m *memStore) Replace(readings []Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.replaces++
	m.rows = append([]Reading(nil), readings...)
	return nil
}

func (m *memStore) Append(readings []Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.appends++
	m.rows = append(m.rows, readings...)
	return nil
}
