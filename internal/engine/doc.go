// Package engine implements the bulk transaction orchestration core.
//
// The core consumes commands from the bus, advances the bulk, its
// individual transfers and its per-destination batches through the
// discovery, agreement and transfers phases, and emits domain events.
//
// ARCHITECTURE:
//
// Concurrent handlers, no event loop:
// Every command is handled on its own goroutine. Handlers never hold
// state between calls; everything lives in the hash store.
//
// Idempotency by state:
// Every mutation is a conditional transition (TransitionBulkState and
// friends) that applies only if the entity is still in the expected
// state. A redelivered command finds the entity already moved on and
// becomes a replay: it re-emits what it would have emitted and changes
// nothing.
//
// Join:
// A phase closes when its success and failed counters add up to its
// total. The global transition out of the phase is conditional, so of
// several handlers that observe the closed phase at once exactly one
// wins and emits the aggregate event.
//
// Counters:
// Counters are separate hash fields incremented atomically with the
// entity transition they count, so a crash can never count a transition
// twice or lose one.
//
// Error handling:
// Business failures (party not found, quote refused, transfer aborted)
// are data: *_FAILED states and lastError. Only malformed input, ordering
// violations and storage failures are errors; see ProcessingError.
package engine
