package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/cleanbook/internal/app"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/view"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Label())
			if event.ID != "" {
				fmt.Fprintf(&buf, " %s", event.ID)
			}
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			if event.Type == EventProjection {
				fmt.Fprintf(&buf, " %s %v", event.State, event.Bookings)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the final state.
type AssertionContext struct {
	App        *app.App
	Projection view.Projection

	// Resolve maps "$alias" references to ids.
	Resolve func(string) string
}

func (c *AssertionContext) resolve(v string) string {
	if c == nil || c.Resolve == nil {
		return v
	}
	return c.Resolve(v)
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a, actx.resolve)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		case AssertProjection:
			err = assertProjection(actx, a)
		case AssertBooking:
			err = assertBooking(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

// assertTraceContains checks that an event with the assertion's label
// exists whose fields include Expect (subset match). The event's id, error
// and state are matchable as "id", "error" and "state".
func assertTraceContains(trace []TraceEvent, assertion Assertion, resolve func(string) string) error {
	for _, event := range trace {
		if event.Label() != assertion.Event {
			continue
		}
		if len(subsetMismatches(assertion.Expect, eventFields(event), resolve)) == 0 {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %q with %v", assertion.Event, assertion.Expect),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func eventFields(e TraceEvent) map[string]string {
	out := make(map[string]string, len(e.Fields)+len(e.Result)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	for k, v := range e.Result {
		out[k] = v
	}
	if e.ID != "" {
		out["id"] = e.ID
	}
	if e.Error != "" {
		out["error"] = e.Error
	}
	if e.State != "" {
		out["state"] = e.State
	}
	return out
}

// assertTraceOrder checks that events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected label, 1-indexed.
	positions := make(map[string]int)
	for i, event := range trace {
		label := event.Label()
		if slices.Contains(assertion.Events, label) && positions[label] == 0 {
			positions[label] = i + 1
		}
	}

	for _, label := range assertion.Events {
		if positions[label] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", label),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks that the label appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Label() == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a stored collection. With an id it subset-matches
// that record's fields; without one it checks the record count.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	kind, err := ir.ParseKind(assertion.Kind)
	if err != nil {
		return err
	}
	records, err := storedRecords(actx.App, kind)
	if err != nil {
		return err
	}

	if assertion.ID == "" {
		if len(records) != assertion.Count {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%d %s records", assertion.Count, kind),
				Actual:   fmt.Sprintf("%d records", len(records)),
			}
		}
		return nil
	}

	id := actx.resolve(assertion.ID)
	idx := slices.IndexFunc(records, func(r map[string]string) bool { return r["id"] == id })
	if idx < 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to exist", kind, id),
			Actual:   "record not found",
		}
	}
	if mismatches := subsetMismatches(assertion.Expect, records[idx], actx.resolve); len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s with %v", kind, id, assertion.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

func storedRecords(a *app.App, kind ir.Kind) ([]map[string]string, error) {
	var all []any
	switch kind {
	case ir.KindCustomer:
		for _, r := range a.Customers.All() {
			all = append(all, r)
		}
	case ir.KindStaff:
		for _, r := range a.Staff.All() {
			all = append(all, r)
		}
	case ir.KindBooking:
		for _, r := range a.Bookings.All() {
			all = append(all, r)
		}
	}

	out := make([]map[string]string, 0, len(all))
	for _, r := range all {
		fields, err := fieldsOf(r)
		if err != nil {
			return nil, err
		}
		out = append(out, fields)
	}
	return out, nil
}

// assertProjection checks the final projection's state and booking order.
func assertProjection(actx *AssertionContext, assertion Assertion) error {
	p := actx.Projection
	if assertion.State != "" && string(p.State) != assertion.State {
		return &AssertionError{
			Type:     AssertProjection,
			Expected: fmt.Sprintf("state %s", assertion.State),
			Actual:   fmt.Sprintf("state %s", p.State),
		}
	}

	if assertion.Order == nil {
		return nil
	}
	want := make([]string, len(assertion.Order))
	for i, id := range assertion.Order {
		want[i] = actx.resolve(id)
	}
	got := make([]string, len(p.Bookings))
	for i, b := range p.Bookings {
		got[i] = string(b.ID)
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertProjection,
			Expected: fmt.Sprintf("booking order %v", want),
			Actual:   fmt.Sprintf("booking order %v", got),
		}
	}
	return nil
}

// assertBooking subset-matches one joined booking of the final projection.
func assertBooking(actx *AssertionContext, assertion Assertion) error {
	id := ir.ID(actx.resolve(assertion.ID))
	idx := slices.IndexFunc(actx.Projection.Bookings, func(b ir.JoinedBooking) bool { return b.ID == id })
	if idx < 0 {
		return &AssertionError{
			Type:     AssertBooking,
			Expected: fmt.Sprintf("booking %s in projection", id),
			Actual:   "not found",
		}
	}

	fields, err := fieldsOf(actx.Projection.Bookings[idx])
	if err != nil {
		return err
	}
	if mismatches := subsetMismatches(assertion.Expect, fields, actx.resolve); len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertBooking,
			Expected: fmt.Sprintf("booking %s with %v", id, assertion.Expect),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

// subsetMismatches returns one message per expected key whose actual value
// differs. Expected values may be "$alias" references. Keys are sorted for
// deterministic output.
func subsetMismatches(expected, actual map[string]string, resolve func(string) string) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []string
	for _, k := range keys {
		want := resolve(expected[k])
		got, ok := actual[k]
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("field %q missing (want %q)", k, want))
		case got != want:
			out = append(out, fmt.Sprintf("field %q = %q, want %q", k, got, want))
		}
	}
	return out
}
