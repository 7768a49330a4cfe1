// Package queryir defines the fragment representation of live queries over
// the composed component view.
//
// A query is an ordered chain of fragments, read as a conjunction applied
// left to right:
//
//	[]Fragment{
//	    Has{Component: "TradeStatus"},
//	    HasValue{Component: "TradeStatus", Value: ir.Obj(ir.O("value", ir.IRInt(1)))},
//	}
//
// The first fragment must be Has or HasValue; it establishes the candidate
// set by direct lookup. Every later fragment either filters the current set
// one entity at a time (Has, HasValue, Not, NotValue, ProxyRead, Covers) or
// transforms it as a whole (ProxyExpand).
//
// # Sealed interface
//
// Fragment is sealed with a marker method so that evaluators and the SQL
// compiler can switch exhaustively over the variants.
//
// # Incremental class
//
// Chains built only from Has, HasValue, Not and NotValue are "direct": a
// change to one entity can only change that entity's membership. Chains
// containing ProxyRead, ProxyExpand or Covers are "proxied": membership
// depends on other entities, so the engine re-runs them in full, but only
// when an event touches a component in Reachable(chain).
package queryir
