// Package engine implements the incremental query engine.
//
// A query is a chain of fragments (package queryir). Registering it yields
// a Subscription carrying the initial matching set and a stream of
// QueryEvents (Enter, Update, Exit) that keep the set current as the
// store's composed view changes.
//
// ARCHITECTURE:
//
// Synchronous evaluation, asynchronous delivery:
// The engine is a store listener. Every store UpdateEvent is evaluated
// while the store's emission lock is held, so evaluation reads exactly the
// state that produced the event and sees events in global write order.
// Resulting QueryEvents go to the subscription's unbounded queue; consumers
// read them with Next, Run or Drain from any goroutine.
//
// Maintenance strategies:
//  1. Direct chains (Has, HasValue, Not, NotValue only): the affected
//     entity alone is re-evaluated. Leavers get Exit, joiners Enter,
//     stayers Update.
//  2. Proxied chains (ProxyRead, ProxyExpand, Covers): the chain is re-run
//     from scratch and diffed against the previous set.
//
// Both strategies are skipped for events whose component is not in the
// chain's reachable component set (queryir.Reachable).
//
// INVARIANT: after any sequence of store events, Subscription.Matching
// equals RunQuery evaluated from scratch.
//
// Logical clock:
// Every QueryEvent is stamped with Clock.Next(). Wall-clock time is never
// used for ordering.
package engine
