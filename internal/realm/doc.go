// Package realm holds the game's domain vocabulary: component names and
// schemas, key-derived entity ids, the relevance patterns surfaced in the
// activity feed, ready-made queries, and the predictors behind the two
// optimistic trade commands.
package realm
