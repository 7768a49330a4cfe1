// Package testutil provides deterministic stand-ins for tests: fixed override
// id generators, a scripted push channel, and a fetcher whose results are
// resolved by the test.
package testutil
