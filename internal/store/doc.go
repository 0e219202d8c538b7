// Package store provides SQLite-backed durable storage for experiment records.
//
// The store owns a single table, experiments, holding one row per tracked run:
//   - Identity: id is assigned by SQLite (AUTOINCREMENT) and never reused
//   - Payloads: run_config and logs are JSON TEXT, opaque to the store
//   - Completion: completed/end_timestamp flip once, guarded by completed = 0
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: SQLite has one writer anyway
//
// Every exported operation is either one statement or one transaction, so
// readers only ever observe committed rows.
package store
