package testutil

import (
	"slices"
	"sync"

	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/view"
)

// ProjectionRecorder is an engine listener that remembers every
// notification it receives.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ProjectionRecorder struct {
	mu          sync.Mutex
	projections []view.Projection
	kinds       []ir.Kind
}

func NewProjectionRecorder() *ProjectionRecorder {
	return &ProjectionRecorder{}
}

func (r *ProjectionRecorder) OnProjectionChanged(p view.Projection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projections = append(r.projections, p)
}

func (r *ProjectionRecorder) OnCollectionsChanged(kind ir.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

// Projections returns every projection received, oldest first.
func (r *ProjectionRecorder) Projections() []view.Projection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.projections)
}

// Last returns the newest projection, or false if none arrived yet.
func (r *ProjectionRecorder) Last() (view.Projection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.projections) == 0 {
		return view.Projection{}, false
	}
	return r.projections[len(r.projections)-1], true
}

// Count returns the number of projections received.
func (r *ProjectionRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.projections)
}

// Kinds returns the collection kinds reported through OnCollectionsChanged.
func (r *ProjectionRecorder) Kinds() []ir.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.kinds)
}
