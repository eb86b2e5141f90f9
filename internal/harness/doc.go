// Package harness runs scripted mutation scenarios against a fresh
// in-memory store and checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: replay_is_idempotent
//	description: "What this scenario checks"
//	schema: |
//	  table: Customer: fields: {name: "string"}
//	principals:
//	  alice:
//	    id: 0190f5a4-0000-7000-8000-00000000a11c
//	    permissions: [Customer-read, Customer-write, Customer-create]
//	steps:
//	  - mutate:
//	      table: Customer
//	      id: 0190f5a4-0000-7000-8000-0000000c0001
//	      as: alice
//	      patches:
//	        - id: p1
//	          delta: {name: [Acme]}
//	    expect: {status: OK, version: 0, applied: [p1]}
//	  - read: {table: Customer, id: 0190f5a4-0000-7000-8000-0000000c0001, as: alice}
//	    expect: {status: OK, record: {name: Acme}}
//	assertions:
//	  - type: history_count
//	    table: Customer
//	    id: 0190f5a4-0000-7000-8000-0000000c0001
//	    count: 1
//
// Deltas are written in the wire encoding; array delta indices must be
// quoted keys. A step without expect must succeed.
//
// # Assertion Types
//
//   - final_record: the stored record has the given version and fields
//   - record_missing: no current row exists
//   - history_count: the record has exactly N history rows
//   - ledger_contains / ledger_missing: patch ids are (not) in the ledger
//
// # Deterministic Testing
//
// Each run gets its own in-memory SQLite database and a manual clock
// starting at testutil.Epoch, so traces are stable enough for golden
// comparison with RunWithGolden.
package harness
