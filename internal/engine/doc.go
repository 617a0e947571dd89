// Package engine keeps the joined booking projection consistent with the
// customer, staff and booking collections.
//
// ARCHITECTURE:
//
// Every collection change, local or remote, is funnelled into one
// onCollectionChanged entry point that recomputes the projection under a
// single lock and publishes it to listeners. Two strategies feed it:
//
//   - MutationTriggered: the pipeline calls AfterWrite once a local write
//     persisted; the projection is recomputed before AfterWrite returns
//   - Subscription: remote collections push snapshots; each snapshot has
//     already replaced that collection's view, and a Change is queued for
//     the Run loop
//
// Both strategies produce identical projections for identical data.
//
// Projections are stamped with a monotonic seq from Clock. A projection
// whose content hash equals the last published one is not republished.
//
// A terminal subscription error is published once as an error projection
// and stays in effect until the engine is rebuilt.
//
// IDs for new local records come from an IDAllocator; see ids.go.
package engine
