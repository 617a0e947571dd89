package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/cleanbook/internal/ir"
)

// RecordStore is the contract shared by the local and the remote collection.
type RecordStore[T ir.Record] interface {
	Kind() ir.Kind
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, records []T) error
	All() []T
	Get(id ir.ID) (T, bool)
	Insert(ctx context.Context, record T) (T, error)
	Update(ctx context.Context, record T) error
	Remove(ctx context.Context, id ir.ID) error
}

// Collection is a RecordStore kept in memory and written through to a Medium
// as one payload per collection.
//
// Every mutation updates memory first and then saves the whole collection.
// When the save fails the in-memory change stays in place and the caller
// receives an ir.Error with code PERSIST.
type Collection[T ir.Record] struct {
	mu      sync.RWMutex
	kind    ir.Kind
	medium  Medium
	logger  *slog.Logger
	records []T
}

// NewCollection creates an empty collection of kind backed by medium.
// Call Load to populate it from the medium.
func NewCollection[T ir.Record](kind ir.Kind, medium Medium, logger *slog.Logger) *Collection[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{
		kind:    kind,
		medium:  medium,
		logger:  logger.With("collection", kind.Collection()),
		records: []T{},
	}
}

func (c *Collection[T]) Kind() ir.Kind { return c.kind }

// Load reads the persisted payload into memory and returns a copy of it.
// A missing or malformed payload yields an empty collection; only a failing
// medium is reported as an error.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	payload, found, err := c.medium.Read(ctx, c.kind.Collection())
	if err != nil {
		return nil, ir.NewPersistError("load", c.kind, err)
	}

	records := []T{}
	if found {
		decoded, err := decodeCollection[T](payload)
		if err != nil {
			c.logger.Warn("malformed collection payload, starting empty", "error", err)
		} else {
			records = decoded
		}
	}

	c.mu.Lock()
	c.records = records
	c.mu.Unlock()

	return slices.Clone(records), nil
}

// Save replaces the collection with records and writes it in one payload.
func (c *Collection[T]) Save(ctx context.Context, records []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = slices.Clone(records)
	if c.records == nil {
		c.records = []T{}
	}
	return c.persistLocked(ctx, "save")
}

// All returns a copy of the records in insertion order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records)
}

// Get returns the first record with id.
func (c *Collection[T]) Get(id ir.ID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexLocked(id); i >= 0 {
		return c.records[i], true
	}
	var zero T
	return zero, false
}

// Insert appends record. The id must already be allocated.
func (c *Collection[T]) Insert(ctx context.Context, record T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = append(c.records, record)
	return record, c.persistLocked(ctx, "insert")
}

// Update replaces the record with the same id in place.
func (c *Collection[T]) Update(ctx context.Context, record T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(record.RecordID())
	if i < 0 {
		return ir.NewNotFoundError("update", c.kind, record.RecordID())
	}
	c.records[i] = record
	return c.persistLocked(ctx, "update")
}

// Remove drops every record with id, keeping the order of the rest.
// Removing a missing id still rewrites the collection.
func (c *Collection[T]) Remove(ctx context.Context, id ir.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records = slices.DeleteFunc(c.records, func(r T) bool {
		return r.RecordID() == id
	})
	return c.persistLocked(ctx, "remove")
}

func (c *Collection[T]) indexLocked(id ir.ID) int {
	return slices.IndexFunc(c.records, func(r T) bool {
		return r.RecordID() == id
	})
}

// persistLocked writes the current records. Caller must hold mu.
func (c *Collection[T]) persistLocked(ctx context.Context, op string) error {
	payload, err := encodeCollection(c.records)
	if err != nil {
		c.logger.Error("encode collection failed", "op", op, "error", err)
		return ir.NewPersistError(op, c.kind, err)
	}
	if err := c.medium.Write(ctx, c.kind.Collection(), payload); err != nil {
		c.logger.Error("persist collection failed", "op", op, "error", err)
		return ir.NewPersistError(op, c.kind, err)
	}
	return nil
}

var (
	_ RecordStore[ir.Customer] = (*Collection[ir.Customer])(nil)
	_ RecordStore[ir.Booking]  = (*Collection[ir.Booking])(nil)
)
