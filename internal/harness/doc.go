// Package harness runs bulk scenarios end to end against the real
// orchestration core and decision process.
//
// A scenario submits one bulk request. A simulated provider answers the
// party lookups, quote and transfer requests the core emits; a scripted
// caller accepts or rejects parties and quotes. Once the bus is idle the
// settled bulk is checked against the scenario's expectations and can be
// snapshotted into a golden file.
//
// # Scenario Format
//
//	name: partial_agreement
//	description: "One destination quotes, the other answers empty"
//	max_batch_size: 2
//	request:
//	  options: { auto_accept_party: true }
//	  expires: 30m
//	  transfers:
//	    - { home: home-1, identifier: "2001" }
//	    - { home: home-2, identifier: "2002", amount: "12.50" }
//	provider:
//	  parties: { "2001": receiverfsp, "2002": differentfsp }
//	  silent_parties: []
//	  quotes:
//	    receiverfsp: { mode: ok, fail: [home-3] }
//	    differentfsp: { mode: empty }
//	  transfers:
//	    receiverfsp: { mode: ok }
//	accept:
//	  reject_quotes: [home-2]
//	advance: 2h
//	expect:
//	  state: RESPONSE_SENT
//	  response: COMPLETED
//	  counters: { party_lookup: [2, 2, 0], bulk_quotes: [2, 1, 1] }
//	  transfers: { home-1: TRANSFER_SUCCESS }
//
// Identifiers missing from provider.parties are not found. Destinations
// missing from provider.quotes or provider.transfers answer ok. Modes are
// ok, empty (no results), error (batch-level error) and silent (never
// answered, so only expiry can close the batch).
//
// # Deterministic Testing
//
// Every run uses a fake clock starting at testutil.Epoch, a sequence of
// bulk ids and a fresh in-memory store. Delivery order on the bus is not
// deterministic; results only keep what does not depend on it.
package harness
