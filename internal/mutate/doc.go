// Package mutate is the write path of patchd.
//
// A Batch carries ordered patches against one record. The Coordinator
// checks permissions, filters patches already in the replay ledger,
// applies the rest to the stored record, repairs and validates the
// result, stamps audit fields and commits the record, its history row
// and the ledger entries in one transaction. Any failure rolls all of
// it back.
//
// Service wraps a Coordinator behind a gate.Gate so that mutations from
// all callers run one at a time in arrival order.
package mutate
