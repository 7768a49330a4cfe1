// Package ir defines the value model shared by every realmsync package:
// entity identifiers, component schemas, field values, and the update events
// emitted by the component store.
//
// ir imports nothing internal. Every other package imports ir, which keeps
// it the foundational layer with no import cycles.
//
// Key constraints:
//   - no float field values; ledger quantities are integers
//   - component values are IRObject; nil means "component absent"
//   - JSON tags use snake_case
//   - entity ids derived from natural keys keep the full SHA-256 width
package ir
