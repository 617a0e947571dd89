// Package mutation applies create, update and delete requests to the record
// stores and tells the engine once a write persisted.
//
// All three kinds share one validation policy (internal/schema), whatever
// the backing medium.
package mutation

import (
	"context"
	"log/slog"

	"github.com/roach88/cleanbook/internal/engine"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/metrics"
	"github.com/roach88/cleanbook/internal/schema"
	"github.com/roach88/cleanbook/internal/store"
)

// Notifier is told about every persisted write. *engine.Engine implements
// it.
type Notifier interface {
	AfterWrite(ctx context.Context, kind ir.Kind)
}

// Config wires a Pipeline.
type Config struct {
	Customers store.RecordStore[ir.Customer]
	Staff     store.RecordStore[ir.Staff]
	Bookings  store.RecordStore[ir.Booking]
	Validator *schema.Validator

	// IDs allocates ids for new records. Leave nil when the medium assigns
	// ids itself.
	IDs engine.IDAllocator

	Notifier Notifier
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// Pipeline validates and applies mutations.
//
// A write that fails to persist is returned as a PERSIST error. For local
// media the in-memory change is not undone, and the engine is not notified,
// so the published projection keeps showing the last persisted state.
type Pipeline struct {
	customers store.RecordStore[ir.Customer]
	staff     store.RecordStore[ir.Staff]
	bookings  store.RecordStore[ir.Booking]
	validator *schema.Validator
	ids       engine.IDAllocator
	notifier  Notifier
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		customers: cfg.Customers,
		staff:     cfg.Staff,
		bookings:  cfg.Bookings,
		validator: cfg.Validator,
		ids:       cfg.IDs,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Create validates fields, builds a record of kind and inserts it.
// Returns the new record's id.
func (p *Pipeline) Create(ctx context.Context, kind ir.Kind, fields ir.Fields) (ir.ID, error) {
	var id ir.ID
	var err error
	switch kind {
	case ir.KindCustomer:
		id, err = create(ctx, p, p.customers, applyCustomer(ir.Customer{}, fields))
	case ir.KindStaff:
		id, err = create(ctx, p, p.staff, applyStaff(ir.Staff{}, fields))
	case ir.KindBooking:
		id, err = create(ctx, p, p.bookings, applyBooking(ir.Booking{}, fields))
	default:
		err = unknownKind(kind)
	}
	p.metrics.Mutation(kind, "create", err)
	return id, err
}

// Update applies fields to the existing record id. Fields not present keep
// their current value. A missing id is a NOT_FOUND error.
func (p *Pipeline) Update(ctx context.Context, kind ir.Kind, id ir.ID, fields ir.Fields) error {
	var err error
	switch kind {
	case ir.KindCustomer:
		err = update(ctx, p, p.customers, id, func(c ir.Customer) ir.Customer { return applyCustomer(c, fields) })
	case ir.KindStaff:
		err = update(ctx, p, p.staff, id, func(s ir.Staff) ir.Staff { return applyStaff(s, fields) })
	case ir.KindBooking:
		err = update(ctx, p, p.bookings, id, func(b ir.Booking) ir.Booking { return applyBooking(b, fields) })
	default:
		err = unknownKind(kind)
	}
	p.metrics.Mutation(kind, "update", err)
	return err
}

// Fetch returns the record to edit. A missing id is a NOT_FOUND error and
// changes nothing.
func (p *Pipeline) Fetch(_ context.Context, kind ir.Kind, id ir.ID) (ir.Record, error) {
	var r ir.Record
	var ok bool
	switch kind {
	case ir.KindCustomer:
		r, ok = p.customers.Get(id)
	case ir.KindStaff:
		r, ok = p.staff.Get(id)
	case ir.KindBooking:
		r, ok = p.bookings.Get(id)
	default:
		return nil, unknownKind(kind)
	}
	if !ok {
		return nil, ir.NewNotFoundError("fetch", kind, id)
	}
	return r, nil
}

// Delete removes id from kind. The caller has already confirmed. Deleting
// a missing id is a no-op, and deleting a customer or staff member leaves
// their bookings in place.
func (p *Pipeline) Delete(ctx context.Context, kind ir.Kind, id ir.ID) error {
	var err error
	switch kind {
	case ir.KindCustomer:
		err = p.customers.Remove(ctx, id)
	case ir.KindStaff:
		err = p.staff.Remove(ctx, id)
	case ir.KindBooking:
		err = p.bookings.Remove(ctx, id)
	default:
		err = unknownKind(kind)
	}
	p.metrics.Mutation(kind, "delete", err)
	if err != nil {
		return err
	}

	p.logger.Info("record deleted", "kind", kind, "id", id)
	p.notify(ctx, kind)
	return nil
}

// Services returns the bookable services.
func (p *Pipeline) Services() []string {
	return p.validator.Services()
}

func (p *Pipeline) notify(ctx context.Context, kind ir.Kind) {
	if p.notifier != nil {
		p.notifier.AfterWrite(ctx, kind)
	}
}

// record is a stored type that can take an allocated id.
type record[T any] interface {
	ir.Record
	WithID(ir.ID) T
}

func create[T record[T]](ctx context.Context, p *Pipeline, s store.RecordStore[T], r T) (ir.ID, error) {
	kind := s.Kind()
	if err := p.validator.Validate(kind, r); err != nil {
		return "", err
	}
	if p.ids != nil {
		r = r.WithID(p.ids.Allocate())
	}

	inserted, err := s.Insert(ctx, r)
	if err != nil {
		return "", err
	}

	p.logger.Info("record created", "kind", kind, "id", inserted.RecordID())
	p.notify(ctx, kind)
	return inserted.RecordID(), nil
}

func update[T record[T]](ctx context.Context, p *Pipeline, s store.RecordStore[T], id ir.ID, apply func(T) T) error {
	kind := s.Kind()
	existing, ok := s.Get(id)
	if !ok {
		return ir.NewNotFoundError("update", kind, id)
	}

	r := apply(existing).WithID(id)
	if err := p.validator.Validate(kind, r); err != nil {
		return err
	}
	if err := s.Update(ctx, r); err != nil {
		return err
	}

	p.logger.Info("record updated", "kind", kind, "id", id)
	p.notify(ctx, kind)
	return nil
}

func unknownKind(kind ir.Kind) error {
	return ir.NewValidationError(kind, "", "unknown record kind")
}
