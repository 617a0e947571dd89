package remote

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/store"
)

// Record is a stored type whose id the server can assign.
type Record[T any] interface {
	ir.Record
	WithID(ir.ID) T
}

// Observer is told about snapshot and resubscribe activity.
// *metrics.Recorder implements it.
type Observer interface {
	Snapshot(kind ir.Kind)
	Resubscribe(kind ir.Kind)
}

// Options configures a Collection.
type Options struct {
	// Prefix namespaces every key. Defaults to DefaultPrefix.
	Prefix string

	// MaxAttempts is how many consecutive failed resubscriptions are
	// tolerated before the subscription gives up. Defaults to 5.
	MaxAttempts int

	// Backoff is the delay before the first resubscription; it doubles on
	// each further failure up to 16x. Defaults to 500ms.
	Backoff time.Duration

	Observer Observer
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Collection is a RecordStore whose records live in Redis.
//
// Writes go straight to the server and are applied to the local view only
// once the server accepted them. The local view is otherwise replaced
// wholesale by snapshots, either from Load or from a running subscription.
type Collection[T Record[T]] struct {
	client *redis.Client
	kind   ir.Kind
	keys   keys
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	records []T
}

// New creates a collection of kind on client. Call Load or Subscribe to
// populate the local view.
func New[T Record[T]](client *redis.Client, kind ir.Kind, opts Options) *Collection[T] {
	opts = opts.withDefaults()
	return &Collection[T]{
		client:  client,
		kind:    kind,
		keys:    newKeys(opts.Prefix, kind.Collection()),
		opts:    opts,
		logger:  opts.Logger.With("collection", kind.Collection(), "medium", "redis"),
		records: []T{},
	}
}

func (c *Collection[T]) Kind() ir.Kind { return c.kind }

// Load fetches a snapshot from the server and makes it the local view.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	records, err := c.fetch(ctx)
	if err != nil {
		return nil, ir.NewPersistError("load", c.kind, err)
	}
	c.Replace(records)
	return slices.Clone(records), nil
}

// Replace swaps the local view for records, kept in server order.
func (c *Collection[T]) Replace(records []T) {
	records = slices.Clone(records)
	if records == nil {
		records = []T{}
	}
	sortServerOrder(records)
	c.mu.Lock()
	c.records = records
	c.mu.Unlock()
}

// Save overwrites the server-side collection with records. The id counter
// is moved past the largest numeric id saved, so later inserts never reuse
// one.
func (c *Collection[T]) Save(ctx context.Context, records []T) error {
	payloads := make([]string, len(records))
	var maxID int64
	for i, r := range records {
		data, err := ir.MarshalCanonical(r)
		if err != nil {
			return ir.NewPersistError("save", c.kind, err)
		}
		payloads[i] = string(data)
		if n, err := strconv.ParseInt(string(r.RecordID()), 10, 64); err == nil {
			maxID = max(maxID, n)
		}
	}

	seq, err := c.client.Get(ctx, c.keys.seq).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return c.persistFailed("save", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.keys.items, c.keys.order)
		for i, r := range records {
			id := string(r.RecordID())
			pipe.HSet(ctx, c.keys.items, id, payloads[i])
			pipe.ZAdd(ctx, c.keys.order, redis.Z{Score: score(r), Member: id})
		}
		if maxID > seq {
			pipe.Set(ctx, c.keys.seq, maxID, 0)
		}
		return nil
	})
	if err != nil {
		return c.persistFailed("save", err)
	}

	c.Replace(records)
	c.publish(ctx, "reset", "")
	return nil
}

func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.records)
}

func (c *Collection[T]) Get(id ir.ID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.records {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Insert writes record. A record without an id gets the next free value of
// the collection's server-side counter. Inserting an id that is already
// stored fails and leaves the stored record alone.
func (c *Collection[T]) Insert(ctx context.Context, record T) (T, error) {
	assign := record.RecordID() == ""
	for {
		if assign {
			n, err := c.client.Incr(ctx, c.keys.seq).Result()
			if err != nil {
				return record, c.persistFailed("insert", err)
			}
			record = record.WithID(ir.ID(strconv.FormatInt(n, 10)))
		}

		claimed, err := c.claim(ctx, record)
		if err != nil {
			return record, err
		}
		if claimed {
			break
		}
		if !assign {
			return record, &ir.Error{Code: ir.ErrCodePersist, Op: "insert", Kind: c.kind, ID: record.RecordID(), Message: "id already taken"}
		}
		c.logger.Warn("server id already taken, skipping", "id", record.RecordID())
	}
	c.publish(ctx, "insert", record.RecordID())

	c.mu.Lock()
	c.upsertLocked(record)
	c.mu.Unlock()
	return record, nil
}

// Update overwrites an existing record. The server copy decides existence.
func (c *Collection[T]) Update(ctx context.Context, record T) error {
	id := record.RecordID()
	exists, err := c.client.HExists(ctx, c.keys.items, string(id)).Result()
	if err != nil {
		return c.persistFailed("update", err)
	}
	if !exists {
		return ir.NewNotFoundError("update", c.kind, id)
	}

	if err := c.write(ctx, "update", record); err != nil {
		return err
	}

	c.mu.Lock()
	c.upsertLocked(record)
	c.mu.Unlock()
	return nil
}

// Remove deletes id. Removing a missing id is a no-op.
func (c *Collection[T]) Remove(ctx context.Context, id ir.ID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, c.keys.items, string(id))
		pipe.ZRem(ctx, c.keys.order, string(id))
		return nil
	})
	if err != nil {
		return c.persistFailed("remove", err)
	}

	c.mu.Lock()
	c.records = slices.DeleteFunc(c.records, func(r T) bool { return r.RecordID() == id })
	c.mu.Unlock()

	c.publish(ctx, "remove", id)
	return nil
}

// claim stores record under its id only if that id is free, then indexes it.
func (c *Collection[T]) claim(ctx context.Context, record T) (bool, error) {
	data, err := ir.MarshalCanonical(record)
	if err != nil {
		return false, ir.NewPersistError("insert", c.kind, err)
	}
	id := string(record.RecordID())

	ok, err := c.client.HSetNX(ctx, c.keys.items, id, string(data)).Result()
	if err != nil {
		return false, c.persistFailed("insert", err)
	}
	if !ok {
		return false, nil
	}
	if err := c.client.ZAdd(ctx, c.keys.order, redis.Z{Score: score(record), Member: id}).Err(); err != nil {
		c.client.HDel(ctx, c.keys.items, id)
		return false, c.persistFailed("insert", err)
	}
	return true, nil
}

func (c *Collection[T]) write(ctx context.Context, op string, record T) error {
	data, err := ir.MarshalCanonical(record)
	if err != nil {
		return ir.NewPersistError(op, c.kind, err)
	}
	id := string(record.RecordID())

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.keys.items, id, string(data))
		pipe.ZAdd(ctx, c.keys.order, redis.Z{Score: score(record), Member: id})
		return nil
	})
	if err != nil {
		return c.persistFailed(op, err)
	}

	c.publish(ctx, op, record.RecordID())
	return nil
}

// publish announces a change. The write already succeeded, so a failed
// publish is logged and not returned: subscribers catch up on their next
// snapshot.
func (c *Collection[T]) publish(ctx context.Context, op string, id ir.ID) {
	if err := c.client.Publish(ctx, c.keys.changes, op+":"+string(id)).Err(); err != nil {
		c.logger.Warn("publish change failed", "op", op, "id", id, "error", err)
	}
}

func (c *Collection[T]) persistFailed(op string, err error) error {
	c.logger.Error("remote write failed", "op", op, "error", err)
	return ir.NewPersistError(op, c.kind, err)
}

// upsertLocked applies record to the local view at the position a fresh
// snapshot would give it.
func (c *Collection[T]) upsertLocked(record T) {
	c.records = slices.DeleteFunc(c.records, func(r T) bool { return r.RecordID() == record.RecordID() })
	i, _ := slices.BinarySearchFunc(c.records, record, compareServerOrder[T])
	c.records = slices.Insert(c.records, i, record)
}

// fetch reads the collection in server order. Items that do not decode are
// skipped with a warning.
func (c *Collection[T]) fetch(ctx context.Context) ([]T, error) {
	ids, err := c.client.ZRange(ctx, c.keys.order, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records := make([]T, 0, len(ids))
	if len(ids) == 0 {
		return records, nil
	}

	values, err := c.client.HMGet(ctx, c.keys.items, ids...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var r T
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			c.logger.Warn("malformed remote record skipped", "id", ids[i], "error", err)
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// score orders bookings by date and everything else by numeric id.
// Unparseable dates sort last.
func score(record ir.Record) float64 {
	if b, ok := record.(ir.Booking); ok {
		t, ok := b.When()
		if !ok {
			return math.Inf(1)
		}
		return float64(t.UnixMilli())
	}
	n, err := strconv.ParseFloat(string(record.RecordID()), 64)
	if err != nil {
		return 0
	}
	return n
}

// compareServerOrder orders records the way ZRANGE returns them: by score,
// then by id bytes.
func compareServerOrder[T ir.Record](a, b T) int {
	if c := cmp.Compare(score(a), score(b)); c != 0 {
		return c
	}
	return cmp.Compare(a.RecordID(), b.RecordID())
}

func sortServerOrder[T ir.Record](records []T) {
	slices.SortStableFunc(records, compareServerOrder[T])
}

var (
	_ store.RecordStore[ir.Customer] = (*Collection[ir.Customer])(nil)
	_ store.RecordStore[ir.Staff]    = (*Collection[ir.Staff])(nil)
	_ store.RecordStore[ir.Booking]  = (*Collection[ir.Booking])(nil)
)
