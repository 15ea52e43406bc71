// Package model defines the bulk transaction aggregate: the bulk itself, its
// individual transfers and the per-destination batches, together with the
// state enums that drive orchestration and the request/result payloads
// exchanged with the provider side.
//
// All JSON field names are camelCase. Money amounts are decimal.Decimal and
// serialize as JSON strings.
//
// # Counters
//
// Counters are not part of the stored bulk blob. They live in separately
// addressable integer fields of the state store so that concurrent callbacks
// can increment them atomically. Party lookup counters count items; bulk
// quote and bulk transfer counters count batches.
package model
