package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/willie68/go_tilefeed/internal/event"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/metrics"
	"github.com/willie68/go_tilefeed/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/willie68/go_tilefeed/internal/provider"

// Result an event that can report a failed fetch
type Result interface {
	Failure() error
}

// Loader loads the data of one tile, it runs on a worker
type Loader[E Result] func(ctx context.Context, id mercantile.TileID) E

// Fetcher is the common part of all providers. It keeps at most one fetch per
// tile in flight, runs the loader on the provider's worker pool and posts the
// result to the event channel.
type Fetcher[E Result] struct {
	name   string
	log    *slog.Logger
	events *event.Channel[E]
	pool   *worker.Pool
	load   Loader[E]
	failed func(id mercantile.TileID, err error) E
	tracer trace.Tracer

	lock     sync.Mutex
	inflight map[mercantile.TileID]struct{}
}

func newFetcher[E Result](name string, cfg Config, load Loader[E], failed func(mercantile.TileID, error) E) *Fetcher[E] {
	return &Fetcher[E]{
		name:     name,
		log:      logging.New("provider: " + name),
		events:   event.NewChannel[E](name),
		pool:     worker.New(name, cfg.Workers, cfg.Queue),
		load:     load,
		failed:   failed,
		tracer:   otel.Tracer(tracerName),
		inflight: make(map[mercantile.TileID]struct{}),
	}
}

func (f *Fetcher[E]) Name() string {
	return f.name
}

// Fetch starts loading the tile. A fetch for a tile already in flight is absorbed.
func (f *Fetcher[E]) Fetch(id mercantile.TileID) {
	f.lock.Lock()
	if _, ok := f.inflight[id]; ok {
		f.lock.Unlock()
		metrics.DuplicateFetches.WithLabelValues(f.name).Inc()
		f.log.Debug("duplicate fetch suppressed", "tile", id.String())
		return
	}
	f.inflight[id] = struct{}{}
	f.lock.Unlock()

	err := f.pool.Submit(func(ctx context.Context) {
		f.run(ctx, id)
	})
	if err != nil {
		f.log.Warn("can't schedule fetch", "tile", id.String(), "error", err)
		f.done(id)
		f.events.Post(f.failed(id, errors.Wrapf(ErrProviderFetch, "%s: %v", id, err)))
	}
}

// InFlight true if a fetch of the tile is running or queued
func (f *Fetcher[E]) InFlight(id mercantile.TileID) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	_, ok := f.inflight[id]
	return ok
}

func (f *Fetcher[E]) Register(l event.Listener[E]) event.Subscription {
	return f.events.Register(l)
}

func (f *Fetcher[E]) Unregister(s event.Subscription) {
	f.events.Unregister(s)
}

// Close stops the worker pool, queued fetches end with a failure event
func (f *Fetcher[E]) Close() error {
	f.pool.Stop()
	return nil
}

func (f *Fetcher[E]) run(ctx context.Context, id mercantile.TileID) {
	var ev E
	if err := ctx.Err(); err != nil {
		ev = f.failed(id, errors.Wrapf(ErrProviderFetch, "%s: %v", id, err))
	} else {
		ev = f.traced(ctx, id)
	}
	f.done(id)
	f.events.Post(ev)
}

func (f *Fetcher[E]) traced(ctx context.Context, id mercantile.TileID) E {
	ctx, span := f.tracer.Start(ctx, "fetch",
		trace.WithAttributes(
			attribute.String("provider", f.name),
			attribute.String("tile", id.String()),
		),
	)
	defer span.End()

	start := time.Now()
	ev := f.load(ctx, id)
	metrics.ProviderLatency.WithLabelValues(f.name).Observe(time.Since(start).Seconds())
	if err := ev.Failure(); err != nil {
		metrics.ProviderFetches.WithLabelValues(f.name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.log.Debug("fetch failed", "tile", id.String(), "error", err)
	} else {
		metrics.ProviderFetches.WithLabelValues(f.name, "ok").Inc()
		span.SetStatus(codes.Ok, "")
	}
	return ev
}

func (f *Fetcher[E]) done(id mercantile.TileID) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.inflight, id)
}

func tileFailed(id mercantile.TileID, err error) TileEvent {
	return TileEvent{ID: id, Err: err}
}

func poiFailed(id mercantile.TileID, err error) PoiEvent {
	return PoiEvent{ID: id, Err: err}
}
