// Package store holds one record collection in memory and persists it to a
// durable local medium.
//
// RecordStore is the contract shared with the remote variant in
// internal/remote. Collection implements it over a Medium, which only knows
// how to read and write one opaque payload per collection name:
//
//   - SQLiteMedium: a `collections(name, payload)` table, one row per
//     collection, written with a single upsert so a save is atomic
//   - MemoryMedium: a map, used by tests and the scenario harness
//
// # Persistence rules
//
//   - A collection is always written whole; no partial writes are exposed
//   - Collections are written independently; there is no cross-collection
//     transaction
//   - Payloads are canonical JSON, so Save(Load()) is byte-identical
//   - A missing or malformed payload loads as an empty collection
//   - A failed write leaves the in-memory mutation in place and returns a
//     PERSIST error; callers decide how to report it
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
