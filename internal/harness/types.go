package harness

import (
	"strings"

	"github.com/roach88/cleanbook/internal/view"
)

// Trace event types besides the mutation ops.
const (
	EventProjection = "projection"
	EventChanged    = "changed"
)

// TraceEvent is one entry of a scenario trace: either a mutation step or an
// engine notification observed while the step ran.
type TraceEvent struct {
	Type   string            `json:"type"` // create, update, delete, fetch, projection, changed
	Kind   string            `json:"kind,omitempty"`
	ID     string            `json:"id,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Result map[string]string `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`

	// State and Bookings describe a published projection.
	State    string   `json:"state,omitempty"`
	Bookings []string `json:"bookings,omitempty"`

	Seq int64 `json:"seq"`
}

// Label is the name trace assertions match on: "create booking",
// "changed customer", "projection".
func (e TraceEvent) Label() string {
	if e.Kind == "" {
		return e.Type
	}
	return e.Type + " " + e.Kind
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every step and notification in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation.
	Errors []string `json:"errors,omitempty"`

	// Projection is the engine's projection after the last step.
	Projection view.Projection `json:"projection"`

	// Aliases maps each step's "as" name to the id it produced.
	Aliases map[string]string `json:"aliases,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Aliases: map[string]string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent stamps e with the next sequence number and appends it.
func (r *Result) addEvent(e TraceEvent) {
	r.seq++
	e.Seq = r.seq
	r.Trace = append(r.Trace, e)
}

// Events returns the trace events whose label is label.
func (r *Result) Events(label string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Label() == label {
			out = append(out, e)
		}
	}
	return out
}

// resolve replaces a "$alias" reference with the id it names. Other values
// are returned unchanged.
func (r *Result) resolve(v string) string {
	name, ok := strings.CutPrefix(v, "$")
	if !ok {
		return v
	}
	if id, found := r.Aliases[name]; found {
		return id
	}
	return v
}

func (r *Result) resolveFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = r.resolve(v)
	}
	return out
}
