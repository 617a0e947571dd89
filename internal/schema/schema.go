// Package schema validates records before they reach a store.
//
// Required fields are declared as closed CUE definitions in records.cue.
// Checks CUE cannot express over plain strings (date parsing, the service
// catalogue) run in Go after the CUE pass.
package schema

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/cleanbook/internal/ir"
)

//go:embed records.cue
var recordsCUE []byte

// DefaultServices is the catalogue offered when none is configured.
var DefaultServices = []string{
	"Deep Clean",
	"Standard Clean",
	"Move-Out Clean",
	"Office Clean",
}

// Validator checks records against the CUE definitions.
//
// Thread-safety: safe for concurrent use. CUE values are not, so
// evaluation is serialised.
type Validator struct {
	mu       sync.Mutex
	ctx      *cue.Context
	defs     map[ir.Kind]cue.Value
	services []string
}

// New compiles the record definitions. services restricts Booking.service;
// an empty list accepts any non-blank service.
func New(services []string) (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(recordsCUE, cue.Filename("records.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile record schema: %w", err)
	}

	defs := make(map[ir.Kind]cue.Value, len(ir.Kinds))
	for kind, name := range map[ir.Kind]string{
		ir.KindCustomer: "#Customer",
		ir.KindStaff:    "#Staff",
		ir.KindBooking:  "#Booking",
	} {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("record schema: definition %s missing", name)
		}
		defs[kind] = def
	}

	return &Validator{
		ctx:      ctx,
		defs:     defs,
		services: slices.Clone(services),
	}, nil
}

// Services returns the configured service catalogue.
func (v *Validator) Services() []string {
	return slices.Clone(v.services)
}

// Validate returns an ir.Error with code VALIDATION naming the first
// offending field, or nil.
func (v *Validator) Validate(kind ir.Kind, record ir.Record) error {
	if err := v.validateCUE(kind, record); err != nil {
		return err
	}

	b, ok := record.(ir.Booking)
	if !ok {
		return nil
	}
	if _, ok := ir.ParseDate(b.Date); !ok {
		return ir.NewValidationError(kind, "date", fmt.Sprintf("%q is not an ISO-8601 date", b.Date))
	}
	if len(v.services) > 0 && !slices.Contains(v.services, b.Service) {
		return ir.NewValidationError(kind, "service",
			fmt.Sprintf("%q is not offered (have: %s)", b.Service, strings.Join(v.services, ", ")))
	}
	return nil
}

func (v *Validator) validateCUE(kind ir.Kind, record ir.Record) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	def, ok := v.defs[kind]
	if !ok {
		return ir.NewValidationError(kind, "", "unknown record kind")
	}
	val := v.ctx.Encode(record)
	if err := val.Err(); err != nil {
		return ir.NewValidationError(kind, "", err.Error())
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fieldError(kind, err)
	}
	return nil
}

// fieldError converts the first CUE error into a validation error on the
// field it points at.
func fieldError(kind ir.Kind, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return ir.NewValidationError(kind, "", err.Error())
	}

	first := errs[0]
	field := ""
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	if strings.Contains(first.Error(), "=~") {
		return ir.NewValidationError(kind, field, "is required")
	}
	return &ir.Error{
		Code:    ir.ErrCodeValidation,
		Op:      "validate",
		Kind:    kind,
		Field:   field,
		Message: first.Error(),
	}
}
