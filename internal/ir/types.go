package ir

import "fmt"

// ID is an opaque record identifier. Local media allocate it client side,
// remote media assign it server side.
type ID string

// Kind names one of the three record collections.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindStaff    Kind = "staff"
	KindBooking  Kind = "booking"
)

// Kinds lists every collection kind in a fixed order.
var Kinds = []Kind{KindCustomer, KindStaff, KindBooking}

// Collection returns the persisted collection name for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindCustomer:
		return "customers"
	case KindStaff:
		return "staff"
	case KindBooking:
		return "bookings"
	default:
		return string(k)
	}
}

// ParseKind accepts both the singular kind and the collection name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "customer", "customers":
		return KindCustomer, nil
	case "staff":
		return KindStaff, nil
	case "booking", "bookings":
		return KindBooking, nil
	}
	return "", fmt.Errorf("unknown record kind %q", s)
}

// Record is implemented by every stored type.
type Record interface {
	RecordID() ID
}

// Customer is a client of the business.
type Customer struct {
	ID      ID     `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Phone   string `json:"phone" yaml:"phone"`
	Address string `json:"address" yaml:"address"`
}

func (c Customer) RecordID() ID { return c.ID }

// WithID returns a copy of c carrying id.
func (c Customer) WithID(id ID) Customer { c.ID = id; return c }

// Staff is a member of staff a booking can be assigned to.
type Staff struct {
	ID   ID     `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func (s Staff) RecordID() ID { return s.ID }

func (s Staff) WithID(id ID) Staff { s.ID = id; return s }

// Booking is a scheduled service.
//
// Date holds the ISO-8601 string exactly as entered; see ParseDate.
type Booking struct {
	ID         ID     `json:"id" yaml:"id"`
	CustomerID ID     `json:"customerId" yaml:"customerId"`
	StaffID    ID     `json:"staffId" yaml:"staffId"`
	Service    string `json:"service" yaml:"service"`
	Date       string `json:"date" yaml:"date"`
	Notes      string `json:"notes" yaml:"notes"`
}

func (b Booking) RecordID() ID { return b.ID }

func (b Booking) WithID(id ID) Booking { b.ID = id; return b }

// JoinedBooking is a booking with its customer and staff references resolved
// into display values.
type JoinedBooking struct {
	Booking
	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	CustomerAddress string `json:"customerAddress"`
	StaffName       string `json:"staffName"`
}

// Fields carries the raw field values of a create or update request, keyed by
// the JSON field name.
type Fields map[string]string

// Get returns the value for key, or "" when absent.
func (f Fields) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}

// Has reports whether key was supplied at all.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}
