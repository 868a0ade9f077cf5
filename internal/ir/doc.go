// Package ir provides the scalar value model shared by queries, records and
// storage backends.
//
// This package contains value definitions only. Every other internal package
// may import ir; ir imports nothing internal. This keeps IR the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Ordering follows SQLite's BINARY collation so in-memory and SQL
//     backends agree on sort order
//   - Canonical JSON (RFC 8785, NFC strings) is the only persisted encoding
//     for record attributes
package ir
