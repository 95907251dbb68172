package consumption

// Service owns the sync and analytics engines for one meter. It is created
// once at startup and shared by the HTTP layer and the scheduler.
type Service struct {
	syncer    *Syncer
	analytics *Analytics
}

// NewService creates a new Service.
func NewService(syncer *Syncer, analytics *Analytics) *Service {
	return &Service{
		syncer:    syncer,
		analytics: analytics,
	}
}

// Syncer exposes the sync engine for lifecycle management.
func (s *Service) Syncer() *Syncer {
	return s.syncer
}

// Analytics exposes the analytics engine.
func (s *Service) Analytics() *Analytics {
	return s.analytics
}

// Trigger starts a background sync run unless one is in flight.
func (s *Service) Trigger() bool {
	return s.syncer.Trigger()
}

// Status delegates to the sync engine.
func (s *Service) Status() Status {
	return s.syncer.Status()
}

// Snapshot returns the analytics snapshot for the committed readings.
func (s *Service) Snapshot() (*Snapshot, error) {
	ds, err := s.syncer.Dataset()
	if err != nil {
		return nil, err
	}
	return s.analytics.Snapshot(ds), nil
}

// Day answers a day query; ref is "last" or a YYYY-MM-DD date.
func (s *Service) Day(ref string) (DayView, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return DayView{}, err
	}
	return snap.Day(ref)
}

// Averages answers an averages query for kind total, base or max.
func (s *Service) Averages(kind Kind) (AveragesView, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return AveragesView{}, err
	}
	return snap.Averages(kind)
}
