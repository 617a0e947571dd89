// Package view joins bookings with the customers and staff they reference
// and orders the result by booking date.
//
// References are weak. A booking whose customer or staff member no longer
// exists still appears, with placeholder labels instead of the missing
// values. Projection never fails.
package view

import (
	"slices"

	"github.com/roach88/cleanbook/internal/ir"
)

// Placeholder labels for dangling references.
const (
	UnknownCustomer = "Unknown Customer"
	NotAvailable    = "N/A"
	Unassigned      = "Unassigned"
)

// State describes what a projection holds.
type State string

const (
	StateEmpty State = "empty"
	StateReady State = "ready"
	StateError State = "error"
)

// Projection is the joined, date-ordered booking list handed to listeners.
type Projection struct {
	State    State              `json:"state"`
	Bookings []ir.JoinedBooking `json:"bookings"`

	// Err is set when State is StateError.
	Err error `json:"-"`

	// Seq is the engine's recompute sequence number.
	Seq int64 `json:"seq"`
}

// Empty reports whether there is nothing to show.
func (p Projection) Empty() bool { return len(p.Bookings) == 0 }

// Failed returns a projection reporting a terminal synchronisation error.
func Failed(err error) Projection {
	return Projection{State: StateError, Bookings: []ir.JoinedBooking{}, Err: err}
}

// Project joins bookings with customers and staff and sorts the result by
// date. When a collection holds duplicate ids the first record wins.
func Project(bookings []ir.Booking, customers []ir.Customer, staff []ir.Staff) Projection {
	if len(bookings) == 0 {
		return Projection{State: StateEmpty, Bookings: []ir.JoinedBooking{}}
	}

	customerByID := make(map[ir.ID]ir.Customer, len(customers))
	for _, c := range customers {
		if _, dup := customerByID[c.ID]; !dup {
			customerByID[c.ID] = c
		}
	}
	staffByID := make(map[ir.ID]ir.Staff, len(staff))
	for _, s := range staff {
		if _, dup := staffByID[s.ID]; !dup {
			staffByID[s.ID] = s
		}
	}

	joined := make([]ir.JoinedBooking, 0, len(bookings))
	for _, b := range bookings {
		jb := ir.JoinedBooking{
			Booking:         b,
			CustomerName:    UnknownCustomer,
			CustomerPhone:   NotAvailable,
			CustomerAddress: NotAvailable,
			StaffName:       Unassigned,
		}
		if c, ok := customerByID[b.CustomerID]; ok {
			jb.CustomerName = c.Name
			jb.CustomerPhone = c.Phone
			jb.CustomerAddress = c.Address
		}
		if s, ok := staffByID[b.StaffID]; ok {
			jb.StaffName = s.Name
		}
		joined = append(joined, jb)
	}

	SortByDate(joined, func(jb ir.JoinedBooking) string { return jb.Date })
	return Projection{State: StateReady, Bookings: joined}
}

// ProjectSingle orders bookings without resolving references. Display
// fields are left empty.
func ProjectSingle(bookings []ir.Booking) Projection {
	if len(bookings) == 0 {
		return Projection{State: StateEmpty, Bookings: []ir.JoinedBooking{}}
	}
	joined := make([]ir.JoinedBooking, len(bookings))
	for i, b := range bookings {
		joined[i] = ir.JoinedBooking{Booking: b}
	}
	SortByDate(joined, func(jb ir.JoinedBooking) string { return jb.Date })
	return Projection{State: StateReady, Bookings: joined}
}

// SortByDate stable-sorts items ascending by the parsed date. Items whose
// date does not parse go after every parseable one, in their input order.
func SortByDate[T any](items []T, date func(T) string) {
	slices.SortStableFunc(items, func(a, b T) int {
		ta, okA := ir.ParseDate(date(a))
		tb, okB := ir.ParseDate(date(b))
		switch {
		case okA && okB:
			return ta.Compare(tb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
}
