package engine

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/cleanbook/internal/ir"
)

// IDAllocator produces record identifiers for media that do not assign their
// own. Implemented by TimestampAllocator (default), UUIDAllocator and, in
// tests, testutil.FixedIDs.
type IDAllocator interface {
	Allocate() ir.ID
}

// WallClock supplies the current time to TimestampAllocator.
type WallClock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TimestampAllocator derives ids from the wall clock at millisecond
// resolution, rendered as a decimal string.
//
// Two allocations inside the same millisecond do not collide: the allocator
// remembers the last id it issued and hands out last+1 whenever the clock has
// not advanced past it. Ids therefore stay timestamp-shaped and sortable, and
// are unique within one allocator.
//
// Thread-safety: safe for concurrent use via internal mutex.
type TimestampAllocator struct {
	mu    sync.Mutex
	clock WallClock
	last  int64
}

// NewTimestampAllocator creates an allocator reading from clock. A nil clock
// uses the system clock.
func NewTimestampAllocator(clock WallClock) *TimestampAllocator {
	if clock == nil {
		clock = systemClock{}
	}
	return &TimestampAllocator{clock: clock}
}

// Allocate returns the next id.
func (a *TimestampAllocator) Allocate() ir.ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	ms := a.clock.Now().UnixMilli()
	if ms <= a.last {
		ms = a.last + 1
	}
	a.last = ms
	return ir.ID(strconv.FormatInt(ms, 10))
}

// Observe records an id that already exists in a collection, so later
// allocations stay above it even if the wall clock has gone backwards since
// it was issued. Non-numeric ids are ignored.
func (a *TimestampAllocator) Observe(id ir.ID) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > a.last {
		a.last = n
	}
}

// UUIDAllocator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDAllocator struct{}

// Allocate returns a new hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDAllocator) Allocate() ir.ID {
	return ir.ID(uuid.Must(uuid.NewV7()).String())
}

// NewAllocator returns the allocator for a configured id scheme
// ("timestamp" or "uuid"). Unknown schemes fall back to timestamp.
func NewAllocator(scheme string) IDAllocator {
	if scheme == "uuid" {
		return UUIDAllocator{}
	}
	return NewTimestampAllocator(nil)
}
