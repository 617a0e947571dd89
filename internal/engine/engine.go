package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/metrics"
	"github.com/roach88/cleanbook/internal/store"
	"github.com/roach88/cleanbook/internal/view"
)

// Listener receives the engine's notifications.
//
// Callbacks run while the engine holds its recompute lock: they must not
// call back into the engine, except Projection.
type Listener interface {
	// OnProjectionChanged receives every newly published projection.
	OnProjectionChanged(p view.Projection)

	// OnCollectionsChanged is called when the customer or staff collection
	// changed, so pickers listing them can refresh.
	OnCollectionsChanged(kind ir.Kind)
}

// Sources are the three collections the projection is computed from.
type Sources struct {
	Customers store.RecordStore[ir.Customer]
	Staff     store.RecordStore[ir.Staff]
	Bookings  store.RecordStore[ir.Booking]
}

// Strategy decides how collection changes reach the engine.
type Strategy interface {
	Name() string

	// Attach starts delivering changes to notify. release stops delivery
	// and waits for it to finish.
	Attach(ctx context.Context, notify func(Change)) (release func(), err error)

	// AfterWrite is called by the pipeline once a write to kind persisted.
	AfterWrite(ctx context.Context, kind ir.Kind)
}

// Engine keeps the joined booking projection current and hands it to
// listeners.
//
// Every change, whatever its source, ends in onCollectionChanged, which
// recomputes the projection under one lock. Local changes are processed on
// the caller's goroutine before AfterWrite returns. Remote changes go
// through a FIFO queue drained by Run.
//
// Thread-safety model:
//   - AfterWrite, AddListener, Projection: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - Start and Close: once each
type Engine struct {
	sources  Sources
	strategy Strategy
	clock    *Clock
	queue    *changeQueue
	logger   *slog.Logger
	metrics  *metrics.Recorder

	mu        sync.Mutex
	listeners []Listener
	lastHash  string
	failure   error

	currentMu sync.RWMutex
	current   view.Projection

	releases  []func()
	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithClock sets the clock that stamps projections. Default: NewClock().
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// New creates an engine over sources using strategy. Call Start to attach
// the strategy and publish the first projection.
func New(sources Sources, strategy Strategy, opts ...Option) *Engine {
	e := &Engine{
		sources:  sources,
		strategy: strategy,
		clock:    NewClock(),
		queue:    newChangeQueue(),
		logger:   slog.Default(),
		current:  view.Projection{State: view.StateEmpty, Bookings: []ir.JoinedBooking{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("strategy", strategy.Name())
	return e
}

// AddListener registers l for all future notifications.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Start attaches the strategy and publishes the projection of the current
// collection contents.
func (e *Engine) Start(ctx context.Context) error {
	release, err := e.strategy.Attach(ctx, e.deliver)
	if err != nil {
		return err
	}
	e.releases = append(e.releases, release)

	e.logger.Info("engine started")
	e.onCollectionChanged(Change{Kind: ir.KindBooking, Source: SourceLocal})
	return nil
}

// AfterWrite tells the strategy that a write to kind persisted.
func (e *Engine) AfterWrite(ctx context.Context, kind ir.Kind) {
	e.strategy.AfterWrite(ctx, kind)
}

// Projection returns the most recently published projection.
func (e *Engine) Projection() view.Projection {
	e.currentMu.RLock()
	defer e.currentMu.RUnlock()
	return e.current
}

// Run processes queued remote changes until ctx is cancelled or the engine
// is closed.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if c, ok := e.queue.TryDequeue(); ok {
			e.onCollectionChanged(c)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: closed")
				return nil
			}
		}
	}
}

// Close releases every subscription and stops Run. Safe to call more than
// once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		for i := len(e.releases) - 1; i >= 0; i-- {
			e.releases[i]()
		}
		e.releases = nil
		e.queue.Close()
	})
}

// deliver routes a strategy change: local changes are handled inline,
// remote ones are queued for Run.
func (e *Engine) deliver(c Change) {
	if c.Source != SourceRemote {
		e.onCollectionChanged(c)
		return
	}
	if !e.queue.Enqueue(c) {
		e.logger.Debug("change dropped after close", "kind", c.Kind)
	}
}

// onCollectionChanged is the single entry point for every change.
func (e *Engine) onCollectionChanged(c Change) {
	e.mu.Lock()
	defer e.mu.Unlock()

	seq := e.clock.Next()

	if c.Err != nil {
		e.logger.Error("collection sync failed",
			"kind", c.Kind,
			"source", c.Source,
			"error", c.Err,
		)
		// The first failure is the one listeners see.
		if e.failure != nil {
			return
		}
		e.failure = c.Err
		p := view.Failed(c.Err)
		p.Seq = seq
		e.lastHash = ""
		e.publishLocked(p)
		return
	}

	if c.Kind == ir.KindCustomer || c.Kind == ir.KindStaff {
		for _, l := range e.listeners {
			l.OnCollectionsChanged(c.Kind)
		}
	}

	// A terminal failure leaves one collection stale; the error
	// projection stays until the engine is rebuilt.
	if e.failure != nil {
		return
	}

	timer := e.metrics.RecomputeTimer()
	p := view.Project(e.sources.Bookings.All(), e.sources.Customers.All(), e.sources.Staff.All())
	timer.ObserveDuration()
	p.Seq = seq

	hash, err := ir.ProjectionHash(p.Bookings)
	if err != nil {
		e.logger.Warn("projection hash failed", "error", err)
		hash = ""
	}
	if hash != "" && hash == e.lastHash {
		e.logger.Debug("projection unchanged",
			"kind", c.Kind,
			"source", c.Source,
			"seq", seq,
		)
		return
	}
	e.lastHash = hash

	e.logger.Debug("projection recomputed",
		"kind", c.Kind,
		"source", c.Source,
		"seq", seq,
		"state", p.State,
		"bookings", len(p.Bookings),
	)
	e.publishLocked(p)
}

// publishLocked stores p as current and notifies listeners. Caller must
// hold mu.
func (e *Engine) publishLocked(p view.Projection) {
	e.currentMu.Lock()
	e.current = p
	e.currentMu.Unlock()

	e.metrics.Projection(string(p.State))
	for _, l := range e.listeners {
		l.OnProjectionChanged(p)
	}
}
