// Package store provides the SQLite-backed persistence backend for strata
// records, built on database/sql and mattn/go-sqlite3.
//
// All records live in one table:
//
//	records(seq, id, entity, attrs, checksum, created_at, updated_at)
//
// attrs holds RFC 8785 canonical JSON produced by ir.MarshalCanonical.
// Queries are compiled by querysql and filter through json_extract.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - Every query ends with ORDER BY ..., seq ASC, id COLLATE BINARY ASC
//   - Ties between equal sort keys resolve by insertion sequence
//
// Atomic Change Sets
//   - Apply runs inserts, updates and deletes in one transaction
//   - Any failure rolls back the whole set and returns WRITE_FAILURE
//
// Shared Matching
//   - The strata_sqlite3 driver registers strata_match, backed by
//     queryir.MatchString, so SQL and in-memory evaluation agree
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
