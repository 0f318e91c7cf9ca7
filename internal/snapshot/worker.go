package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"roster/internal/queue"
	"roster/internal/roster"
)

// Source renders one entity's current roster.
type Source struct {
	Entity   string
	CacheKey string
	Write    func(ctx context.Context, w io.Writer) error
}

// Invalidator drops cached values. *store.Redis satisfies it.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// Worker reacts to change events: it drops the entity's cached dashboard and
// pushes a fresh snapshot to every sink.
type Worker struct {
	sources map[string]Source
	sinks   []Sink
	cache   Invalidator
	log     *zap.Logger
	now     func() time.Time
}

// NewWorker builds a worker. cache may be nil.
func NewWorker(log *zap.Logger, sources []Source, sinks []Sink, cache Invalidator) *Worker {
	byEntity := make(map[string]Source, len(sources))
	for _, s := range sources {
		byEntity[s.Entity] = s
	}
	return &Worker{
		sources: byEntity,
		sinks:   sinks,
		cache:   cache,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run handles events until the channel closes.
func (w *Worker) Run(ctx context.Context, events <-chan queue.Event) {
	w.log.Info("worker started, waiting for events")
	for evt := range events {
		if err := w.Handle(ctx, evt); err != nil {
			w.log.Error("event handling failed",
				zap.String("entity", evt.Entity),
				zap.String("op", evt.Op),
				zap.Int64("id", evt.ID),
				zap.Error(err))
		}
	}
	w.log.Info("worker stopped")
}

// Handle processes one event. Events for unknown entities are ignored.
func (w *Worker) Handle(ctx context.Context, evt queue.Event) error {
	src, ok := w.sources[evt.Entity]
	if !ok {
		w.log.Debug("ignoring event for unknown entity", zap.String("entity", evt.Entity))
		return nil
	}
	w.log.Debug("processing event",
		zap.String("entity", evt.Entity), zap.String("op", evt.Op), zap.Int64("id", evt.ID))

	var errs []error
	if w.cache != nil && src.CacheKey != "" {
		if err := w.cache.Delete(ctx, src.CacheKey); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", src.CacheKey, err))
		}
	}
	if err := w.snapshot(ctx, src); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SnapshotAll writes a snapshot of every source.
func (w *Worker) SnapshotAll(ctx context.Context) error {
	var errs []error
	for _, src := range w.sources {
		if err := w.snapshot(ctx, src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) snapshot(ctx context.Context, src Source) error {
	if len(w.sinks) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := src.Write(ctx, &buf); err != nil {
		return fmt.Errorf("render %s snapshot: %w", src.Entity, err)
	}
	at := w.now()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Put(ctx, src.Entity, at, buf.Bytes()); err != nil {
			errs = append(errs, fmt.Errorf("store %s snapshot: %w", src.Entity, err))
		}
	}
	return errors.Join(errs...)
}

// Exporter renders a roster as CSV. Both entity services implement it.
type Exporter interface {
	ExportCSV(ctx context.Context, w io.Writer, f roster.Filter) error
}

// ExportSource snapshots the unfiltered export of e.
func ExportSource(entity, cacheKey string, e Exporter) Source {
	return Source{
		Entity:   entity,
		CacheKey: cacheKey,
		Write: func(ctx context.Context, w io.Writer) error {
			return e.ExportCSV(ctx, w, nil)
		},
	}
}
