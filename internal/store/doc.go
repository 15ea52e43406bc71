// Package store provides the state store for bulk transactions.
//
// Storage is split in two layers:
//
//   - HashStore: a key/value store with per-key hash semantics. Each key holds
//     named fields that are either opaque blobs or native integer counters
//     with atomic increment. Backends: SQLite (Open) and in-memory
//     (NewMemoryHash).
//   - Repository: the bulk transaction contract on top of a HashStore.
//
// # Layout
//
// Every bulk transaction lives under one key:
//
//	<prefix>outboundBulkTransaction_<bulkId>
//
// with fields:
//
//	bulkTransaction           JSON blob of model.BulkTransaction
//	individualItem_<id>       JSON blob of model.IndividualTransfer
//	bulkBatch_<id>            JSON blob of model.BulkBatch
//	partyLookupTotalCount     integer counter (and the other eight counters)
//
// # Conditional Transitions
//
// Repository.Transition* run inside HashStore.Atomic. The entity is read,
// its current state checked against the allowed source states, mutated,
// written back and the paired counter increments applied as one unit. A
// transition whose source state no longer matches is reported as not
// applied and leaves the store untouched, which makes every command safe
// to reprocess.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
