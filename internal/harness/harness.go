package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cleanbook/internal/app"
	"github.com/roach88/cleanbook/internal/config"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/store"
	"github.com/roach88/cleanbook/internal/testutil"
	"github.com/roach88/cleanbook/internal/view"
)

// Harness executes one scenario against a fresh in-memory app and records
// every step and engine notification into a Result.
type Harness struct {
	app    *app.App
	result *Result
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory medium with sequential ids
// ("id-1", "id-2", ...), so two runs of the same scenario produce the same
// trace.
//
// Execution flow:
// 1. Open the app over an in-memory medium and start the engine
// 2. Execute setup steps, which must all succeed
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions against the trace, the stores and the projection
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	cfg := config.Default()
	cfg.Backend = config.BackendLocal
	if len(scenario.Services) > 0 {
		cfg.Services = scenario.Services
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Open(ctx, cfg, app.Options{
		Logger: logger,
		Medium: store.NewMemoryMedium(),
		IDs:    testutil.NewSequentialIDs("id"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open app: %w", err)
	}
	defer a.Close()

	h := &Harness{app: a, result: NewResult(), logger: logger}
	a.Engine.AddListener(h)
	if err := a.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	for i, step := range scenario.Setup {
		if err := h.executeStep(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s %s): %w", i, step.Op, step.Kind, err)
		}
	}

	for i, step := range scenario.Steps {
		err := h.executeStep(ctx, step)
		for _, msg := range h.checkExpect(step, err) {
			h.result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, step.Op, step.Kind, msg))
		}
	}

	h.result.Projection = a.Engine.Projection()

	actx := &AssertionContext{App: a, Projection: h.result.Projection, Resolve: h.result.resolve}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// OnProjectionChanged implements engine.Listener.
func (h *Harness) OnProjectionChanged(p view.Projection) {
	ids := make([]string, len(p.Bookings))
	for i, b := range p.Bookings {
		ids[i] = string(b.ID)
	}
	h.result.addEvent(TraceEvent{Type: EventProjection, State: string(p.State), Bookings: ids})
}

// OnCollectionsChanged implements engine.Listener.
func (h *Harness) OnCollectionsChanged(kind ir.Kind) {
	h.result.addEvent(TraceEvent{Type: EventChanged, Kind: string(kind)})
}

// executeStep runs step through the mutation pipeline. The step's trace
// event is appended before the call, so notifications it triggers follow
// it in the trace.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	kind, err := ir.ParseKind(step.Kind)
	if err != nil {
		return err
	}
	id := ir.ID(h.result.resolve(step.ID))
	fields := h.result.resolveFields(step.Fields)

	idx := len(h.result.Trace)
	h.result.addEvent(TraceEvent{Type: step.Op, Kind: string(kind), ID: string(id), Fields: fields})

	pipeline := h.app.Pipeline
	var result map[string]string
	switch step.Op {
	case OpCreate:
		id, err = pipeline.Create(ctx, kind, ir.Fields(fields))
	case OpUpdate:
		err = pipeline.Update(ctx, kind, id, ir.Fields(fields))
	case OpDelete:
		err = pipeline.Delete(ctx, kind, id)
	case OpFetch:
		var rec ir.Record
		rec, err = pipeline.Fetch(ctx, kind, id)
		if err == nil {
			result, err = fieldsOf(rec)
		}
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}

	event := &h.result.Trace[idx]
	event.ID = string(id)
	event.Result = result
	if err != nil {
		event.Error = string(ir.CodeOf(err))
		if event.Error == "" {
			event.Error = "ERROR"
		}
	}

	if err == nil && step.As != "" {
		h.result.Aliases[step.As] = string(id)
	}

	h.logger.Info("step completed",
		"op", step.Op,
		"kind", kind,
		"id", id,
		"error", event.Error,
	)
	return err
}

// checkExpect compares a step outcome with its expect clause. The step's
// event is the last one of its type in the trace.
func (h *Harness) checkExpect(step Step, err error) []string {
	expect := step.Expect
	if expect == nil || expect.Error == "" {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
	} else {
		if err == nil {
			return []string{fmt.Sprintf("expected %s error, got success", expect.Error)}
		}
		if code := string(ir.CodeOf(err)); code != expect.Error {
			return []string{fmt.Sprintf("expected %s error, got %v", expect.Error, err)}
		}
		if expect.Field != "" {
			var e *ir.Error
			if !errors.As(err, &e) || e.Field != expect.Field {
				return []string{fmt.Sprintf("expected error on field %q, got %v", expect.Field, err)}
			}
		}
		return nil
	}

	if expect == nil || len(expect.Result) == 0 {
		return nil
	}

	trace := h.result.Trace
	var event TraceEvent
	for i := len(trace) - 1; i >= 0; i-- {
		if trace[i].Type == step.Op {
			event = trace[i]
			break
		}
	}
	return subsetMismatches(expect.Result, event.Result, h.result.resolve)
}

// fieldsOf flattens a record into its JSON field values.
func fieldsOf(v any) (map[string]string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return out, nil
}
