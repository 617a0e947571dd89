// Package app wires the stores, the engine and the mutation pipeline for
// one configured backend. It is the only place that knows which medium is
// in use.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/cleanbook/internal/config"
	"github.com/roach88/cleanbook/internal/engine"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/metrics"
	"github.com/roach88/cleanbook/internal/mutation"
	"github.com/roach88/cleanbook/internal/remote"
	"github.com/roach88/cleanbook/internal/schema"
	"github.com/roach88/cleanbook/internal/store"
)

// Options override parts of the wiring. The zero value uses cfg as is.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder

	// IDs replaces the allocator chosen by cfg.IDScheme (local backend).
	IDs engine.IDAllocator

	// Medium replaces the SQLite database (local backend).
	Medium store.Medium

	// Redis replaces dialing cfg.RedisURL (remote backend). The caller
	// keeps ownership of the client.
	Redis *redis.Client
}

// App owns everything a session needs.
type App struct {
	Config    config.Config
	Customers store.RecordStore[ir.Customer]
	Staff     store.RecordStore[ir.Staff]
	Bookings  store.RecordStore[ir.Booking]
	Engine    *engine.Engine
	Pipeline  *mutation.Pipeline

	logger  *slog.Logger
	closers []func() error
}

// Open loads the collections for cfg.Backend and wires the engine and the
// pipeline. Call Start once listeners are registered.
func Open(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, logger: logger}

	validator, err := schema.New(cfg.Services)
	if err != nil {
		return nil, err
	}

	var strategy engine.Strategy
	var ids engine.IDAllocator
	switch cfg.Backend {
	case config.BackendLocal:
		ids, err = a.openLocal(ctx, opts)
		strategy = engine.NewMutationTriggered()
	case config.BackendRemote:
		strategy, err = a.openRemote(ctx, opts)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine = engine.New(engine.Sources{
		Customers: a.Customers,
		Staff:     a.Staff,
		Bookings:  a.Bookings,
	}, strategy, engine.WithLogger(logger), engine.WithMetrics(opts.Metrics))

	a.Pipeline = mutation.New(mutation.Config{
		Customers: a.Customers,
		Staff:     a.Staff,
		Bookings:  a.Bookings,
		Validator: validator,
		IDs:       ids,
		Notifier:  a.Engine,
		Metrics:   opts.Metrics,
		Logger:    logger,
	})

	return a, nil
}

// Start attaches the engine's strategy and publishes the first projection.
// Register listeners before calling it.
func (a *App) Start(ctx context.Context) error {
	return a.Engine.Start(ctx)
}

func (a *App) openLocal(ctx context.Context, opts Options) (engine.IDAllocator, error) {
	medium := opts.Medium
	if medium == nil {
		db, err := store.OpenSQLite(a.Config.DB)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", a.Config.DB, err)
		}
		a.closers = append(a.closers, db.Close)
		medium = db
	}

	customers := store.NewCollection[ir.Customer](ir.KindCustomer, medium, a.logger)
	staff := store.NewCollection[ir.Staff](ir.KindStaff, medium, a.logger)
	bookings := store.NewCollection[ir.Booking](ir.KindBooking, medium, a.logger)
	a.Customers, a.Staff, a.Bookings = customers, staff, bookings

	if err := a.loadAll(ctx); err != nil {
		return nil, err
	}

	ids := opts.IDs
	if ids == nil {
		ids = engine.NewAllocator(a.Config.IDScheme)
	}
	if ts, ok := ids.(*engine.TimestampAllocator); ok {
		for _, c := range customers.All() {
			ts.Observe(c.ID)
		}
		for _, s := range staff.All() {
			ts.Observe(s.ID)
		}
		for _, b := range bookings.All() {
			ts.Observe(b.ID)
		}
	}
	return ids, nil
}

func (a *App) openRemote(ctx context.Context, opts Options) (engine.Strategy, error) {
	client := opts.Redis
	if client == nil {
		var err error
		client, err = remote.Dial(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
	}

	ropts := remote.Options{
		Prefix:      a.Config.RedisPrefix,
		MaxAttempts: a.Config.ResubscribeAttempts,
		Backoff:     a.Config.ResubscribeBackoff,
		Logger:      a.logger,
	}
	if opts.Metrics != nil {
		ropts.Observer = opts.Metrics
	}

	customers := remote.New[ir.Customer](client, ir.KindCustomer, ropts)
	staff := remote.New[ir.Staff](client, ir.KindStaff, ropts)
	bookings := remote.New[ir.Booking](client, ir.KindBooking, ropts)
	a.Customers, a.Staff, a.Bookings = customers, staff, bookings

	if err := a.loadAll(ctx); err != nil {
		return nil, err
	}
	return engine.NewSubscription(customers, staff, bookings), nil
}

func (a *App) loadAll(ctx context.Context) error {
	if _, err := a.Customers.Load(ctx); err != nil {
		return err
	}
	if _, err := a.Staff.Load(ctx); err != nil {
		return err
	}
	if _, err := a.Bookings.Load(ctx); err != nil {
		return err
	}
	return nil
}

// Run processes pushed changes until ctx ends. Only the remote backend
// produces any.
func (a *App) Run(ctx context.Context) error {
	err := a.Engine.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops the engine and releases the backing medium.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
