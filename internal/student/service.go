package student

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"roster/internal/metrics"
	"roster/internal/queue"
	"roster/internal/roster"
	"roster/internal/tabular"
)

// Entity is the name used in change events, metrics and snapshot files.
const Entity = "student"

// DashboardCacheKey is where the cached dashboard lives.
const DashboardCacheKey = "roster:dashboard:student"

// Cache stores computed dashboards between mutations.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Service validates input and coordinates the repository with change events.
type Service struct {
	repo     *Repository
	log      *zap.Logger
	events   queue.Publisher
	cache    Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithEvents publishes a change event after every committed mutation.
func WithEvents(p queue.Publisher) Option { return func(s *Service) { s.events = p } }

// WithCache caches the dashboard for ttl. A ttl of zero or less disables caching.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache, s.cacheTTL = c, ttl
	}
}

// WithMetrics counts operations.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService creates a service backed by a repository.
func NewService(repo *Repository, log *zap.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, log: log, cacheTTL: time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add validates f and inserts a new ACTIVE student.
func (s *Service) Add(ctx context.Context, f Fields) (id int64, err error) {
	defer func() { s.metrics.Observe(Entity, "add", err) }()
	if err := f.normalize(); err != nil {
		return 0, err
	}
	id, err = s.repo.Insert(ctx, f)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, "add", id)
	return id, nil
}

// ListActive returns ACTIVE students matching f.
func (s *Service) ListActive(ctx context.Context, f roster.Filter) ([]Student, error) {
	out, err := s.repo.ListActive(ctx, f)
	s.metrics.Observe(Entity, "list", err)
	return out, err
}

// ListAll returns every student regardless of status.
func (s *Service) ListAll(ctx context.Context) ([]Student, error) {
	out, err := s.repo.ListAll(ctx)
	s.metrics.Observe(Entity, "list_all", err)
	return out, err
}

// Get returns one student regardless of status.
func (s *Service) Get(ctx context.Context, id int64) (Student, error) {
	st, err := s.repo.Get(ctx, id)
	s.metrics.Observe(Entity, "get", err)
	return st, err
}

// Update overwrites the editable fields of id and returns the stored row.
// Email uniqueness is enforced by the table constraint on update as well.
func (s *Service) Update(ctx context.Context, id int64, f Fields) (st Student, err error) {
	defer func() { s.metrics.Observe(Entity, "update", err) }()
	if err := f.normalize(); err != nil {
		return Student{}, err
	}
	if err := s.repo.Update(ctx, id, f); err != nil {
		return Student{}, err
	}
	s.publish(ctx, "update", id)
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes id. Deactivating an inactive student succeeds.
func (s *Service) Deactivate(ctx context.Context, id int64) (err error) {
	defer func() { s.metrics.Observe(Entity, "deactivate", err) }()
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, "deactivate", id)
	return nil
}

// RecordAttendance appends an attendance entry for an existing student.
// date must be YYYY-MM-DD.
func (s *Service) RecordAttendance(ctx context.Context, studentID int64, date string, status AttendanceStatus) (a Attendance, err error) {
	defer func() { s.metrics.Observe(Entity, "record_attendance", err) }()
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return Attendance{}, roster.Invalid("date", "must be YYYY-MM-DD")
	}
	if status != Present && status != Absent {
		return Attendance{}, roster.Invalid("status", "must be one of [PRESENT ABSENT]")
	}
	if _, err := s.repo.Get(ctx, studentID); err != nil {
		return Attendance{}, err
	}
	a, err = s.repo.InsertAttendance(ctx, Attendance{
		StudentID: studentID,
		Date:      day.Format(time.DateOnly),
		Status:    status,
	})
	if err != nil {
		return Attendance{}, err
	}
	s.publish(ctx, "record_attendance", studentID)
	return a, nil
}

// RecordMarks appends a score in [0,100] for an existing student.
func (s *Service) RecordMarks(ctx context.Context, studentID int64, subject string, score int) (m Mark, err error) {
	defer func() { s.metrics.Observe(Entity, "record_marks", err) }()
	in := markInput{Subject: subject, Score: score}
	roster.Trim(&in.Subject)
	if err := roster.Validate(in); err != nil {
		return Mark{}, err
	}
	if _, err := s.repo.Get(ctx, studentID); err != nil {
		return Mark{}, err
	}
	m, err = s.repo.InsertMark(ctx, Mark{StudentID: studentID, Subject: in.Subject, Score: in.Score})
	if err != nil {
		return Mark{}, err
	}
	s.publish(ctx, "record_marks", studentID)
	return m, nil
}

// Attendance lists the attendance entries of an existing student.
func (s *Service) Attendance(ctx context.Context, studentID int64) ([]Attendance, error) {
	if _, err := s.repo.Get(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.ListAttendance(ctx, studentID)
}

// Marks lists the marks of an existing student.
func (s *Service) Marks(ctx context.Context, studentID int64) ([]Mark, error) {
	if _, err := s.repo.Get(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.ListMarks(ctx, studentID)
}

// Dashboard returns aggregates, served from the cache when one is configured.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	if s.cache != nil {
		var cached Dashboard
		if err := s.cache.GetJSON(ctx, DashboardCacheKey, &cached); err == nil {
			return cached, nil
		}
	}
	d, err := s.repo.Dashboard(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, DashboardCacheKey, d, s.cacheTTL); err != nil {
			s.log.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return d, nil
}

// ExportCSV writes the ACTIVE students matching f as CSV.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f roster.Filter) error {
	list, err := s.ListActive(ctx, f)
	if err != nil {
		return err
	}
	return tabular.WriteCSV(w, Columns, tabular.Rows(list))
}

// ExportXLSX writes the ACTIVE students matching f as a workbook.
func (s *Service) ExportXLSX(ctx context.Context, w io.Writer, f roster.Filter) error {
	list, err := s.ListActive(ctx, f)
	if err != nil {
		return err
	}
	return tabular.WriteXLSX(w, "students", Columns, tabular.Rows(list))
}

// publish drops the cached dashboard and announces the change. The cache is
// cleared here as well as by the event consumer so a reader never waits on
// the queue to see its own write.
func (s *Service) publish(ctx context.Context, op string, id int64) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, DashboardCacheKey); err != nil {
			s.log.Warn("dashboard cache invalidation failed", zap.String("op", op), zap.Error(err))
		}
	}
	if s.events == nil {
		return
	}
	evt := queue.Event{Entity: Entity, Op: op, ID: id, At: time.Now().UTC()}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("queue publish failed", zap.String("op", op), zap.Int64("id", id), zap.Error(err))
	}
}
