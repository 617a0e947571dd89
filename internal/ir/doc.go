// Package ir defines the record types shared by every other package:
// customers, staff, bookings and the joined booking produced for display.
//
// ir imports nothing internal. Stores, the relational view, the sync engine
// and the mutation pipeline all speak in these types.
//
// Key constraints:
//   - Booking.CustomerID and Booking.StaffID are weak references; nothing in
//     this package or above it enforces that the target exists
//   - JSON tags match the persisted shape (id, name, phone, address,
//     customerId, staffId, service, date, notes)
//   - Persisted payloads are produced by MarshalCanonical so that a
//     load/save round trip is byte-identical
package ir
