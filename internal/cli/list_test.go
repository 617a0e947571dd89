package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/view"
)

func TestListEmpty(t *testing.T) {
	db := newDB(t)

	res := runCLI(t, db, "", "list")
	require.Equal(t, ExitSuccess, res.Code, res.Stderr)
	assert.Equal(t, "No bookings scheduled.\n", res.Stdout)

	var p view.Projection
	res = runCLI(t, db, "", "--format", "json", "list")
	require.Equal(t, ExitSuccess, res.Code, res.Stderr)
	decodeData(t, res.Stdout, &p)
	assert.Equal(t, view.StateEmpty, p.State)
	assert.Empty(t, p.Bookings)
}

func TestListJoinsAndSorts(t *testing.T) {
	db := newDB(t)
	ann := addRecord(t, db, ir.KindCustomer, "--name", "Ann", "--phone", "555", "--address", "Main St")
	bo := addRecord(t, db, ir.KindStaff, "--name", "Bo")
	late := addRecord(t, db, ir.KindBooking, "--customer", ann, "--staff", bo, "--service", "Deep Clean", "--date", "2024-06-01T10:00")
	early := addRecord(t, db, ir.KindBooking, "--customer", ann, "--service", "Office Clean", "--date", "2024-05-20T09:00", "--notes", "Key under mat")

	res := runCLI(t, db, "", "list")
	require.Equal(t, ExitSuccess, res.Code, res.Stderr)
	out := res.Stdout
	require.Contains(t, out, "Monday, May 20, 2024 9:00 AM")
	require.Contains(t, out, "Saturday, June 1, 2024 10:00 AM")
	assert.Less(t, strings.Index(out, "Monday, May 20, 2024 9:00 AM"), strings.Index(out, "Saturday, June 1, 2024 10:00 AM"))
	assert.Contains(t, out, "Customer:  Ann")
	assert.Contains(t, out, "Staff:     Bo")
	assert.Contains(t, out, "Staff:     Unassigned")
	assert.Contains(t, out, "Notes:     Key under mat")
	assert.Equal(t, 1, strings.Count(out, "Notes:"))

	var p view.Projection
	res = runCLI(t, db, "", "--format", "json", "list")
	require.Equal(t, ExitSuccess, res.Code, res.Stderr)
	decodeData(t, res.Stdout, &p)
	assert.Equal(t, view.StateReady, p.State)
	require.Len(t, p.Bookings, 2)
	assert.Equal(t, ir.ID(early), p.Bookings[0].ID)
	assert.Equal(t, ir.ID(late), p.Bookings[1].ID)
}

func TestListDanglingReferences(t *testing.T) {
	db := newDB(t)
	ann := addRecord(t, db, ir.KindCustomer, "--name", "Ann", "--phone", "555", "--address", "Main St")
	bo := addRecord(t, db, ir.KindStaff, "--name", "Bo")
	addRecord(t, db, ir.KindBooking, "--customer", ann, "--staff", bo, "--service", "Deep Clean", "--date", "2024-06-01T10:00")

	require.Equal(t, ExitSuccess, runCLI(t, db, "", "customer", "rm", "-y", ann).Code)
	require.Equal(t, ExitSuccess, runCLI(t, db, "", "staff", "rm", "-y", bo).Code)

	res := runCLI(t, db, "", "list")
	require.Equal(t, ExitSuccess, res.Code, res.Stderr)
	assert.Contains(t, res.Stdout, "Customer:  Unknown Customer")
	assert.Contains(t, res.Stdout, "Phone:     N/A")
	assert.Contains(t, res.Stdout, "Address:   N/A")
	assert.Contains(t, res.Stdout, "Staff:     Unassigned")
}

func TestWriteProjectionError(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out, ErrWriter: &errOut}

	err := writeProjection(f, view.Failed(ir.NewPersistError("subscribe", ir.KindBooking, errors.New("connection refused"))))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error [PERSIST]")
	assert.Contains(t, errOut.String(), "connection refused")
}

func TestProjectionPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &projectionPrinter{f: &OutputFormatter{Format: "text", Writer: &out}}

	p.OnProjectionChanged(view.Project([]ir.Booking{
		{ID: "b1", CustomerID: "c1", Service: "Deep Clean", Date: "2024-06-01T10:00"},
	}, []ir.Customer{{ID: "c1", Name: "Ann", Phone: "555", Address: "Main St"}}, nil))

	assert.Contains(t, out.String(), "== 1 booking(s)")
	assert.Contains(t, out.String(), "Customer:  Ann")
	assert.Contains(t, out.String(), "ID:        b1")
}
