package view

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cleanbook/internal/ir"
)

func ids(p Projection) []ir.ID {
	out := make([]ir.ID, len(p.Bookings))
	for i, jb := range p.Bookings {
		out[i] = jb.ID
	}
	return out
}

func TestProject_AnnAndBo(t *testing.T) {
	customers := []ir.Customer{{ID: "1", Name: "Ann", Phone: "555", Address: "1 Elm"}}
	staff := []ir.Staff{{ID: "9", Name: "Bo"}}
	bookings := []ir.Booking{
		{ID: "100", CustomerID: "1", StaffID: "9", Service: "Deep Clean", Date: "2024-06-01T10:00"},
	}

	p := Project(bookings, customers, staff)

	require.Equal(t, StateReady, p.State)
	require.Len(t, p.Bookings, 1)
	assert.Equal(t, ir.JoinedBooking{
		Booking:         bookings[0],
		CustomerName:    "Ann",
		CustomerPhone:   "555",
		CustomerAddress: "1 Elm",
		StaffName:       "Bo",
	}, p.Bookings[0])
}

func TestProject_EmptyStaffIsUnassigned(t *testing.T) {
	customers := []ir.Customer{{ID: "1", Name: "Ann", Phone: "555", Address: "1 Elm"}}
	bookings := []ir.Booking{
		{ID: "100", CustomerID: "1", StaffID: "", Service: "Deep Clean", Date: "2024-06-01T10:00"},
	}

	p := Project(bookings, customers, nil)

	require.Len(t, p.Bookings, 1)
	assert.Equal(t, "Ann", p.Bookings[0].CustomerName)
	assert.Equal(t, Unassigned, p.Bookings[0].StaffName)
}

func TestProject_DanglingCustomer(t *testing.T) {
	bookings := []ir.Booking{{ID: "100", CustomerID: "gone", StaffID: "gone", Date: "2024-06-01T10:00"}}

	p := Project(bookings, []ir.Customer{{ID: "1", Name: "Ann"}}, []ir.Staff{{ID: "9", Name: "Bo"}})

	require.Len(t, p.Bookings, 1)
	jb := p.Bookings[0]
	assert.Equal(t, UnknownCustomer, jb.CustomerName)
	assert.Equal(t, NotAvailable, jb.CustomerPhone)
	assert.Equal(t, NotAvailable, jb.CustomerAddress)
	assert.Equal(t, Unassigned, jb.StaffName)
}

func TestProject_EmptyBookings(t *testing.T) {
	p := Project(nil, []ir.Customer{{ID: "1", Name: "Ann"}}, []ir.Staff{{ID: "9", Name: "Bo"}})

	assert.Equal(t, StateEmpty, p.State)
	assert.True(t, p.Empty())
	assert.NotNil(t, p.Bookings)
}

func TestProject_SortsByDate(t *testing.T) {
	bookings := []ir.Booking{
		{ID: "c", Date: "2024-06-03T09:00"},
		{ID: "a", Date: "2024-06-01T09:00"},
		{ID: "b", Date: "2024-06-02T09:00:00Z"},
		{ID: "early-offset", Date: "2024-06-01T10:00:00+02:00"},
	}

	p := Project(bookings, nil, nil)

	// 10:00+02:00 is 08:00 UTC, before a
	assert.Equal(t, []ir.ID{"early-offset", "a", "b", "c"}, ids(p))
}

func TestProject_StableForEqualDates(t *testing.T) {
	bookings := []ir.Booking{
		{ID: "first", Date: "2024-06-01T09:00"},
		{ID: "second", Date: "2024-06-01T09:00"},
		{ID: "third", Date: "2024-06-01T09:00"},
	}

	assert.Equal(t, []ir.ID{"first", "second", "third"}, ids(Project(bookings, nil, nil)))
}

func TestProject_UnparseableDatesLast(t *testing.T) {
	bookings := []ir.Booking{
		{ID: "bad1", Date: "next tuesday"},
		{ID: "late", Date: "2024-07-01"},
		{ID: "bad2", Date: ""},
		{ID: "early", Date: "2024-06-01"},
	}

	assert.Equal(t, []ir.ID{"early", "late", "bad1", "bad2"}, ids(Project(bookings, nil, nil)))
}

func TestProject_DuplicateIDsFirstWins(t *testing.T) {
	customers := []ir.Customer{{ID: "1", Name: "First"}, {ID: "1", Name: "Second"}}
	bookings := []ir.Booking{{ID: "100", CustomerID: "1", Date: "2024-06-01"}}

	p := Project(bookings, customers, nil)
	assert.Equal(t, "First", p.Bookings[0].CustomerName)
}

func TestProject_DoesNotReorderInput(t *testing.T) {
	bookings := []ir.Booking{{ID: "b", Date: "2024-06-02"}, {ID: "a", Date: "2024-06-01"}}

	Project(bookings, nil, nil)
	assert.Equal(t, ir.ID("b"), bookings[0].ID)
}

func TestProjectSingle(t *testing.T) {
	bookings := []ir.Booking{
		{ID: "b", CustomerID: "1", Date: "2024-06-02"},
		{ID: "a", CustomerID: "missing", Date: "2024-06-01"},
	}

	p := ProjectSingle(bookings)

	require.Equal(t, StateReady, p.State)
	assert.Equal(t, []ir.ID{"a", "b"}, ids(p))
	assert.Empty(t, p.Bookings[0].CustomerName)
	assert.Empty(t, p.Bookings[0].StaffName)

	assert.Equal(t, StateEmpty, ProjectSingle(nil).State)
}

func TestFailed(t *testing.T) {
	cause := errors.New("WRONGPASS")
	p := Failed(cause)

	assert.Equal(t, StateError, p.State)
	assert.ErrorIs(t, p.Err, cause)
	assert.True(t, p.Empty())
}
