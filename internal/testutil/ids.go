package testutil

import (
	"strconv"
	"sync"

	"github.com/roach88/cleanbook/internal/ir"
)

// FixedIDs hands out predetermined ids, then falls back to a numbered
// sequence "<prefix>-N".
//
// The same scenario run twice with a fresh FixedIDs produces identical
// records, which is what golden projection files rely on.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDs struct {
	mu     sync.Mutex
	ids    []ir.ID
	idx    int
	prefix string
	n      int
}

// NewFixedIDs returns ids in order, then "id-1", "id-2", ...
func NewFixedIDs(ids ...ir.ID) *FixedIDs {
	return &FixedIDs{ids: ids, prefix: "id"}
}

// NewSequentialIDs returns "<prefix>-1", "<prefix>-2", ...
func NewSequentialIDs(prefix string) *FixedIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &FixedIDs{prefix: prefix}
}

// Allocate implements engine.IDAllocator.
func (g *FixedIDs) Allocate() ir.ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx < len(g.ids) {
		id := g.ids[g.idx]
		g.idx++
		return id
	}
	g.n++
	return ir.ID(g.prefix + "-" + strconv.Itoa(g.n))
}
