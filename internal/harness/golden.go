package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cleanbook/internal/ir"
)

// Snapshot captures a scenario run for golden comparison: the trace and
// the final projection.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Projection   []ir.JoinedBooking
	State        string
}

// NewSnapshot builds the golden snapshot of result.
func NewSnapshot(name string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Projection:   result.Projection.Bookings,
		State:        string(result.Projection.State),
	}
}

// toCanonicalMap converts the snapshot into the generic tree canonical
// JSON is written from. Empty event fields are omitted.
func (s Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"type": event.Type,
			"seq":  event.Seq,
		}
		if event.Kind != "" {
			m["kind"] = event.Kind
		}
		if event.ID != "" {
			m["id"] = event.ID
		}
		if len(event.Fields) > 0 {
			m["fields"] = stringMap(event.Fields)
		}
		if len(event.Result) > 0 {
			m["result"] = stringMap(event.Result)
		}
		if event.Error != "" {
			m["error"] = event.Error
		}
		if event.State != "" {
			m["state"] = event.State
		}
		if event.Type == EventProjection {
			ids := make([]any, len(event.Bookings))
			for j, id := range event.Bookings {
				ids[j] = id
			}
			m["bookings"] = ids
		}
		trace[i] = m
	}

	bookings := make([]any, len(s.Projection))
	for i, b := range s.Projection {
		bookings[i] = b
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"projection": map[string]any{
			"state":    s.State,
			"bookings": bookings,
		},
	}
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Bytes returns the snapshot as canonical JSON.
func (s Snapshot) Bytes() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file without
// re-running the scenario. opts are applied after the defaults, so
// goldie.WithFixtureDir can point at another directory.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Bytes()
	if err != nil {
		return err
	}

	g := goldie.New(t, append([]goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}, opts...)...)
	g.Assert(t, scenarioName, data)
	return nil
}
