// Package store provides the SQLite-backed generation ledger.
//
// Every generation run is recorded with:
//   - Runs: one row per run, keyed by a logical seq and labelled by the caller
//   - Descriptors: the canonical JSON and hash of every wrapper the run produced
//   - Rejections: one row per declaration the run rejected
//
// Comparing two runs of the same label yields a drift report. Regenerating
// an unchanged declaration set must report no drift.
//
// # Deterministic Query Results
//
// All queries order by seq and then by name COLLATE BINARY, so reports are
// identical across machines.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Hashes are computed by internal/ir using RFC 8785 canonical JSON and
// SHA-256 with domain separation.
package store
