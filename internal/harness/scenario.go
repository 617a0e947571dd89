package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cleanbook/internal/ir"
)

// Scenario describes a sequence of mutations and what the resulting trace,
// stores and projection must look like.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Services overrides the bookable service catalogue.
	Services []string `yaml:"services,omitempty"`

	// Setup steps run before the main steps and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Steps is the main flow. Each step may carry an expect clause.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace, stores and projection.
	Assertions []Assertion `yaml:"assertions"`
}

// Step operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpFetch  = "fetch"
)

var ops = []string{OpCreate, OpUpdate, OpDelete, OpFetch}

// Step is one mutation request.
//
// ID and field values may reference an earlier step's result as "$alias".
type Step struct {
	Op     string            `yaml:"op"`
	Kind   string            `yaml:"kind"`
	ID     string            `yaml:"id,omitempty"`
	Fields map[string]string `yaml:"fields,omitempty"`

	// As names the id this step produced or targeted.
	As string `yaml:"as,omitempty"`

	// Expect is checked against the step outcome. Without it the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected step outcome.
type ExpectClause struct {
	// Error is the expected error code (VALIDATION, NOT_FOUND, PERSIST).
	// Empty means success.
	Error string `yaml:"error,omitempty"`

	// Field is the expected offending field of a validation error.
	Field string `yaml:"field,omitempty"`

	// Result is a subset match on a fetched record's fields.
	Result map[string]string `yaml:"result,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is a trace label (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Events is the expected label order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of events (trace_count) or records
	// (final_state without id).
	Count int `yaml:"count,omitempty"`

	// Kind and ID select a stored record (final_state) or a joined booking
	// (booking, kind ignored).
	Kind string `yaml:"kind,omitempty"`
	ID   string `yaml:"id,omitempty"`

	// Expect is a subset match on the selected record's fields, or on the
	// matching event's fields for trace_contains.
	Expect map[string]string `yaml:"expect,omitempty"`

	// State and Order check the final projection (projection).
	State string   `yaml:"state,omitempty"`
	Order []string `yaml:"order,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertProjection    = "projection"
	AssertBooking       = "booking"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML held in memory.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if !slices.Contains(ops, step.Op) {
		return fmt.Errorf("unknown op %q (want one of %v)", step.Op, ops)
	}
	if _, err := ir.ParseKind(step.Kind); err != nil {
		return err
	}
	if step.Op != OpCreate && step.ID == "" {
		return fmt.Errorf("id is required for %s", step.Op)
	}
	if step.Op == OpCreate && step.ID != "" {
		return fmt.Errorf("id is assigned on create and must be omitted")
	}
	if step.Expect != nil && step.Expect.Error != "" {
		switch ir.ErrorCode(step.Expect.Error) {
		case ir.ErrCodeValidation, ir.ErrCodeNotFound, ir.ErrCodePersist:
		default:
			return fmt.Errorf("expect: unknown error code %q", step.Expect.Error)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if _, err := ir.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.ID != "" && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state with id", index)
		}
	case AssertProjection:
		if a.State == "" && a.Order == nil {
			return fmt.Errorf("assertions[%d]: state or order is required for projection", index)
		}
	case AssertBooking:
		if a.ID == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: id and expect are required for booking", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
