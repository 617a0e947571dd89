package mutation

import "github.com/roach88/cleanbook/internal/ir"

// Field names accepted in ir.Fields, per kind.
var fieldNames = map[ir.Kind][]string{
	ir.KindCustomer: {"name", "phone", "address"},
	ir.KindStaff:    {"name"},
	ir.KindBooking:  {"customerId", "staffId", "service", "date", "notes"},
}

// FieldNames returns the settable fields of kind.
func FieldNames(kind ir.Kind) []string {
	return fieldNames[kind]
}

func applyCustomer(c ir.Customer, f ir.Fields) ir.Customer {
	set(&c.Name, f, "name")
	set(&c.Phone, f, "phone")
	set(&c.Address, f, "address")
	return c
}

func applyStaff(s ir.Staff, f ir.Fields) ir.Staff {
	set(&s.Name, f, "name")
	return s
}

func applyBooking(b ir.Booking, f ir.Fields) ir.Booking {
	if f.Has("customerId") {
		b.CustomerID = ir.ID(f.Get("customerId"))
	}
	if f.Has("staffId") {
		b.StaffID = ir.ID(f.Get("staffId"))
	}
	set(&b.Service, f, "service")
	set(&b.Date, f, "date")
	set(&b.Notes, f, "notes")
	return b
}

func set(dst *string, f ir.Fields, key string) {
	if f.Has(key) {
		*dst = f.Get(key)
	}
}
