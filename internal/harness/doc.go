// Package harness runs YAML scenarios against a fresh in-memory cleanbook
// app and checks the resulting trace, stores and projection.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	services: [Deep Clean]        # optional catalogue override
//	setup:                        # must succeed
//	  - op: create
//	    kind: customer
//	    as: ann
//	    fields: { name: Ann, phone: "555" }
//	steps:
//	  - op: create
//	    kind: booking
//	    as: b1
//	    fields: { customerId: $ann, service: Deep Clean, date: "2024-06-01T10:00" }
//	  - op: fetch
//	    kind: customer
//	    id: missing
//	    expect: { error: NOT_FOUND }
//	assertions:
//	  - type: booking
//	    id: $b1
//	    expect: { customerName: Ann, staffName: Unassigned }
//
// Values written as "$name" refer to the id produced by the step with
// "as: name".
//
// # Trace
//
// Every step becomes one trace event labelled "<op> <kind>". Engine
// notifications raised by the step follow it: "projection" for a newly
// published projection and "changed <kind>" when the customer or staff
// collection changed.
//
// # Assertion Types
//
//   - trace_contains: an event with the label and matching fields exists
//   - trace_order: labels first appear in the given order
//   - trace_count: a label appears exactly N times
//   - final_state: a stored record matches, or a collection holds N records
//   - projection: the final projection's state and booking order
//   - booking: one joined booking of the final projection matches
//
// # Deterministic Testing
//
// Ids come from testutil.NewSequentialIDs ("id-1", "id-2", ...) and the
// medium is a fresh store.MemoryMedium, so a scenario always produces the
// same trace. Snapshot.Bytes renders it as canonical JSON for golden
// comparison.
package harness
