// Package store provides SQLite-backed durable storage for records.
//
// Three tables live in one database:
//   - records: the current state of each record, keyed by (table, id)
//   - record_history: one row per committed version with the diff from
//     the previous version
//   - applied_patches: the replay ledger of patch ids already applied
//
// # Transactions
//
// A mutation runs inside InTx. The ledger insert (RecordPatch), the record
// write and the history row are committed or rolled back together, so a
// patch is never marked seen without its effect and vice versa.
//
// # Idempotency
//
// RecordPatch uses INSERT ... ON CONFLICT(patch_id) DO NOTHING and reports
// whether this call performed the insert.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: SQLite allows one writer
//
// Timestamps are stored as fixed-width UTC RFC 3339 text so they compare
// correctly as strings.
package store
