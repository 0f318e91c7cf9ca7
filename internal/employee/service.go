package employee

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
const Entity = "employee"

// DashboardCacheKey is where the cached dashboard lives.
const DashboardCacheKey = "roster:dashboard:employee"

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

// Add validates f and inserts a new employee.
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

// List returns the employees matching f in ascending id order.
func (s *Service) List(ctx context.Context, f roster.Filter) ([]Employee, error) {
	out, err := s.repo.List(ctx, f)
	s.metrics.Observe(Entity, "list", err)
	return out, err
}

// Get returns one employee.
func (s *Service) Get(ctx context.Context, id int64) (Employee, error) {
	e, err := s.repo.Get(ctx, id)
	s.metrics.Observe(Entity, "get", err)
	return e, err
}

// Update overwrites the editable fields of id and returns the stored row.
func (s *Service) Update(ctx context.Context, id int64, f Fields) (e Employee, err error) {
	defer func() { s.metrics.Observe(Entity, "update", err) }()
	if err := f.normalize(); err != nil {
		return Employee{}, err
	}
	if err := s.repo.Update(ctx, id, f); err != nil {
		return Employee{}, err
	}
	s.publish(ctx, "update", id)
	return s.repo.Get(ctx, id)
}

// Remove deletes id permanently. Callers are expected to have obtained an
// explicit confirmation; nothing here can undo it.
func (s *Service) Remove(ctx context.Context, id int64) (err error) {
	defer func() { s.metrics.Observe(Entity, "remove", err) }()
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("employee removed", zap.Int64("id", id))
	s.publish(ctx, "remove", id)
	return nil
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

// ExportCSV writes the employees matching f as CSV.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f roster.Filter) error {
	list, err := s.List(ctx, f)
	if err != nil {
		return err
	}
	return tabular.WriteCSV(w, Columns, tabular.Rows(list))
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
