package consumption

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/i474232898/energy-consumption-aggregation/internal/common"
	"github.com/i474232898/energy-consumption-aggregation/internal/observability"
)

const (
	// MaxPageSpanDays is the largest period the remote source accepts in one call.
	MaxPageSpanDays = 365

	defaultPageSpanDays = 90
	defaultTrailSize    = 100
	statusTrailSize     = 5
)

// SyncerOptions contains configuration for creating a Syncer.
type SyncerOptions struct {
	Source       Source
	Store        Store
	PageSpanDays int
	// PageTimeout bounds every single page request; zero disables the bound.
	PageTimeout time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	TrailSize   int
}

// Syncer keeps the durable store in step with the remote source and owns the
// derived availability state. At most one sync run is in flight at a time.
type Syncer struct {
	source      Source
	store       Store
	spanDays    int
	pageSize    int
	pageTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *observability.Metrics

	running  *atomic.Bool
	triggers chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// workerMu orders trigger sends against worker shutdown.
	workerMu sync.Mutex
	stopped  bool

	// storeMu is held across a store write and the reload that follows it.
	storeMu sync.Mutex

	mu        sync.RWMutex
	inv       Inventory
	starts    map[int64]struct{}
	valid     bool
	state     string
	trail     []StateEntry
	trailSize int
}

// NewSyncer creates a sync engine. The store is not read until Init.
func NewSyncer(opts SyncerOptions) (*Syncer, error) {
	if opts.Source == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: syncer needs a source and a store", ErrConfiguration)
	}

	spanDays := opts.PageSpanDays
	if spanDays == 0 {
		spanDays = defaultPageSpanDays
	}
	if spanDays < 0 || spanDays > MaxPageSpanDays {
		return nil, fmt.Errorf("%w: page span must be between 1 and %d days, got %d",
			ErrConfiguration, MaxPageSpanDays, spanDays)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	trailSize := opts.TrailSize
	if trailSize <= 0 {
		trailSize = defaultTrailSize
	}

	return &Syncer{
		source:      opts.Source,
		store:       opts.Store,
		spanDays:    spanDays,
		pageSize:    spanDays * ReadingsPerDay,
		pageTimeout: opts.PageTimeout,
		now:         now,
		logger:      logger,
		metrics:     opts.Metrics,
		running:     atomic.NewBool(false),
		triggers:    make(chan struct{}, 1),
		starts:      make(map[int64]struct{}),
		state:       StateIdle,
		trailSize:   trailSize,
	}, nil
}

// Init performs the initial load of the store. Until it succeeds the engine is
// invalid and analytics queries report ErrNoAnalytics.
func (s *Syncer) Init() error {
	runID := uuid.NewString()
	s.setState(runID, StateLoading, "Checking existing data", true)

	s.storeMu.Lock()
	err := s.reload()
	s.storeMu.Unlock()
	if err != nil {
		s.setState(runID, StateError, fmt.Sprintf("Error loading store: %v", err), false)
		return err
	}

	s.setState(runID, StateIdle, "Store loaded", true)
	return nil
}

// Start launches the worker goroutine that executes triggered runs.
func (s *Syncer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.workerMu.Lock()
	s.stopped = false
	s.workerMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				s.shutdownWorker()
				return
			case <-s.triggers:
				s.run(ctx)
			}
		}
	}()
}

// Stop cancels an in-flight run and waits for the worker to exit.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// shutdownWorker refuses further triggers and releases one that arrived
// after the worker stopped reading.
func (s *Syncer) shutdownWorker() {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	s.stopped = true
	select {
	case <-s.triggers:
		s.running.Store(false)
	default:
	}
}

// Trigger asks the worker for a sync run and returns immediately with the
// current running flag. A trigger while a run is in flight is dropped, and
// once the worker has stopped Trigger does nothing and returns false.
func (s *Syncer) Trigger() bool {
	s.workerMu.Lock()
	defer s.workerMu.Unlock()

	if s.stopped {
		s.logger.Warn("sync: worker stopped; trigger ignored")
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("sync: already running; trigger dropped")
		s.metrics.DropTrigger()
		return true
	}
	// the flag was clear, so the buffered channel is empty
	s.triggers <- struct{}{}
	return s.running.Load()
}

// Sync runs a sync on the calling goroutine. It returns false without doing
// anything when another run is in flight.
func (s *Syncer) Sync(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("sync: already running; request ignored")
		s.metrics.DropTrigger()
		return false
	}
	s.run(ctx)
	return true
}

// Running reports whether a sync run is in flight.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// run executes one sync. The caller must have set the running flag.
func (s *Syncer) run(ctx context.Context) {
	defer s.running.Store(false)

	runID := uuid.NewString()
	started := time.Now()

	mode, err := s.runOnce(ctx, runID)
	if err != nil {
		s.setState(runID, StateError, fmt.Sprintf("Error: %v", err), false)
		s.metrics.ObserveSync(mode, "error", time.Since(started))
		return
	}

	s.setState(runID, StateIdle, "Done", true)
	s.metrics.ObserveSync(mode, "success", time.Since(started))
}

func (s *Syncer) runOnce(ctx context.Context, runID string) (string, error) {
	s.mu.RLock()
	valid := s.valid
	s.mu.RUnlock()

	// an unreadable store must never be replaced by a backfill
	if !valid {
		s.setState(runID, StateLoading, "Checking existing data", true)
		s.storeMu.Lock()
		err := s.reload()
		s.storeMu.Unlock()
		if err != nil {
			return "reload", err
		}
	}

	s.mu.RLock()
	lastTime := s.inv.LastTime
	s.mu.RUnlock()

	now := s.now().Truncate(time.Second)

	if lastTime.IsZero() {
		return "backfill", s.backfill(ctx, runID, now)
	}
	return "incremental", s.catchUp(ctx, runID, lastTime, now)
}

func (s *Syncer) backfill(ctx context.Context, runID string, now time.Time) error {
	s.setState(runID, StateDownloading, "Downloading historic data", true)
	readings, err := s.collect(ctx, false, now, now)
	if err != nil {
		return err
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if len(readings) == 0 {
		s.setState(runID, StateLoading, "No historic data", true)
		return s.reload()
	}

	s.setState(runID, StateSaving, fmt.Sprintf("Saving %d historic records", len(readings)), true)
	if err := s.store.Replace(readings); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}

	s.setState(runID, StateLoading, "Reloading store", true)
	return s.reload()
}

func (s *Syncer) catchUp(ctx context.Context, runID string, lastTime, now time.Time) error {
	s.setState(runID, StateDownloading, fmt.Sprintf("Downloading new data since %s", FormatWire(lastTime)), true)

	var readings []Reading
	if lastTime.Before(now) {
		var err error
		readings, err = s.collect(ctx, true, lastTime, now)
		if err != nil {
			return err
		}
	}

	fresh := s.dedupe(readings)
	if dropped := len(readings) - len(fresh); dropped > 0 {
		s.logger.Warn("sync: dropped readings already in store",
			slog.String("runId", runID), slog.Int("duplicates", dropped))
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	if len(fresh) == 0 {
		s.setState(runID, StateLoading, "No new data", true)
		return s.reload()
	}

	s.setState(runID, StateSaving, fmt.Sprintf("Saving %d new records", len(fresh)), true)
	if err := s.store.Append(fresh); err != nil {
		return fmt.Errorf("append to store: %w", err)
	}

	s.setState(runID, StateLoading, "Reloading store", true)
	return s.reload()
}

// collect walks pages from cursor until the present (forward) or until the
// source runs out of history (backward). Nothing is returned unless every page
// succeeded.
func (s *Syncer) collect(ctx context.Context, forward bool, cursor, now time.Time) ([]Reading, error) {
	direction := "backward"
	if forward {
		direction = "forward"
	}

	var all []Reading
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		w := pageWindow(forward, cursor, now, s.spanDays)
		s.logger.Debug("sync: requesting page",
			slog.String("direction", direction),
			slog.String("from", FormatWire(w.Start)),
			slog.String("to", FormatWire(w.End)))

		page, err := s.fetchPage(ctx, w.Start, w.End)
		s.metrics.ObservePage(direction, len(page), err)
		if err != nil {
			return nil, fmt.Errorf("fetch %s to %s: %w", FormatWire(w.Start), FormatWire(w.End), err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)

		if w.Final {
			break
		}
		cursor = w.Next
	}

	SortReadings(all)
	return all, nil
}

func (s *Syncer) fetchPage(ctx context.Context, from, to time.Time) ([]Reading, error) {
	if s.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.pageTimeout)
		defer cancel()
	}
	return s.source.Fetch(ctx, from, to, s.pageSize)
}

// dedupe drops readings whose start is already stored or repeated in the batch.
func (s *Syncer) dedupe(readings []Reading) []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{}, len(readings))
	fresh := make([]Reading, 0, len(readings))
	for _, r := range readings {
		key := r.Start.Unix()
		if _, ok := s.starts[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, r)
	}
	return fresh
}

// reload rebuilds derived state from the store. The caller holds storeMu.
func (s *Syncer) reload() error {
	inv, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	starts := make(map[int64]struct{}, len(inv.Readings))
	for _, r := range inv.Readings {
		starts[r.Start.Unix()] = struct{}{}
	}

	s.mu.Lock()
	s.inv = inv
	s.starts = starts
	s.valid = true
	s.mu.Unlock()

	s.metrics.SetStored(len(inv.Readings))
	s.logger.Info("sync: store loaded",
		slog.Int("records", len(inv.Readings)),
		slog.Int("incompleteDays", len(inv.IncompleteDays)),
		slog.Int("missingDays", len(inv.MissingDays)))
	return nil
}

func (s *Syncer) setState(runID, state, message string, ok bool) {
	entry := StateEntry{
		RunID:   runID,
		Time:    time.Now().UTC(),
		State:   state,
		Message: message,
		OK:      ok,
	}

	s.mu.Lock()
	s.state = state
	s.trail = append(s.trail, entry)
	if len(s.trail) > s.trailSize {
		s.trail = s.trail[len(s.trail)-s.trailSize:]
	}
	s.mu.Unlock()

	attrs := []any{slog.String("runId", runID), slog.String("state", state)}
	if ok {
		s.logger.Info("sync: "+message, attrs...)
	} else {
		s.logger.Warn("sync: "+message, attrs...)
	}
}

// Status reports the running flag, the recent state trail and, when idle, the
// committed store summary.
func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Running: s.running.Load(),
		State:   s.state,
		Log:     common.LastN(s.trail, statusTrailSize),
	}
	if st.Running {
		return st
	}

	st.Available = &Availability{
		Records:        len(s.inv.Readings),
		IncompleteDays: s.inv.IncompleteDays,
		MissingDays:    s.inv.MissingDays,
		FirstTime:      s.inv.FirstTime,
		LastTime:       s.inv.LastTime,
	}
	return st
}

// Dataset returns the committed readings for analytics. The slice is shared
// and must not be modified.
func (s *Syncer) Dataset() (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.valid || s.inv.Empty() {
		return Dataset{}, ErrNoAnalytics
	}
	return Dataset{
		Readings:  s.inv.Readings,
		FirstTime: s.inv.FirstTime,
		LastTime:  s.inv.LastTime,
	}, nil
}
