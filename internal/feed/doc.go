// Package feed decides which synchronization updates are worth surfacing
// to players and keeps the most recent of them in a bounded log.
//
// A Classifier holds domain Patterns over changed component names. Bundle
// patterns collect the components that newly entered an entity, across
// notifications, and fire once when the whole bundle is present; exact
// patterns fire when a single notification changes precisely the
// pattern's set.
//
// The Log keeps the newest entries by notification stamp, so a burst of
// notifications whose fetches resolve out of order still reads newest
// first.
package feed
