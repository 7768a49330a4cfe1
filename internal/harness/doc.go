// Package harness runs scenario-driven conformance tests against the local
// state layer.
//
// A scenario is a YAML file that declares component schemas, a list of
// named queries, and a sequence of steps:
//
//	name: trade-status
//	description: an open trade leaves the open set when accepted
//	realm: true
//	queries:
//	  - name: open
//	    fragments:
//	      - has: Trade
//	      - has_value: {component: TradeStatus, value: {value: 0}}
//	steps:
//	  - write: {entity: "0x1", component: TradeStatus, value: {value: 0}}
//	  - command:
//	      accept_trade: {trade: "0x1", taker: "0xb0b"}
//	      fail: true
//	assertions:
//	  - {type: matching_set, query: open, entities: ["0x1"]}
//
// Steps write canonical values, push and pop overrides, or run the realm's
// optimistic commands against a scripted ledger that either accepts
// (writing the submitted values canonically) or rejects. Writes listed
// under a command's during block land while the prediction is live.
//
// Every query event is recorded in a trace ordered by its sequence number.
// After the last step each live matching set is cross-checked against a
// fresh evaluation, then assertions run. RunWithGolden additionally compares
// the canonical JSON trace with testdata/golden/<name>.golden via goldie.
package harness
