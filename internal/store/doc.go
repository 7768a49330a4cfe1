// Package store holds the client's local mirror of authoritative game state
// as an in-memory entity/component database, plus the speculative override
// layer composed on top of it.
//
// # Views
//
// Canonical values are written only by the synchronization pipeline.
// Overrides are pushed and popped only by the optimistic command wrapper.
// Read returns the composed view: the topmost override for a slot merged
// onto the canonical value, or the canonical value when the slot has no
// overrides. ReadCanonical ignores overrides.
//
// # Update stream
//
// Every mutation that changes the composed value of a slot emits exactly one
// ir.UpdateEvent to each listener, synchronously and in mutation order.
// Mutations that leave the composed value unchanged (a canonical write under
// an active override, a duplicate snapshot) emit nothing.
//
// # Concurrency
//
// All methods are safe for concurrent use. Mutations are serialised by an
// emission lock held across the data update and listener delivery, so every
// listener observes one global order. Listeners run while that lock is held
// and must not mutate the store; reads are allowed.
package store
