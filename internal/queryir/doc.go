// Package queryir provides the store-agnostic query representation used by
// every strata backend.
//
// A Query describes {entity, predicate tree, ordering, paging}. Backends
// either compile it (querysql) or evaluate it directly (memstore, session).
// The predicate tree is an explicit boolean expression; it is never built by
// concatenating query-language text. Render produces text at the boundary
// only, for logs and the CLI.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern. Only types
// in this package can implement it, so backends can switch exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	case In:
//	case StringMatch:
//	case And, Or, Not, True:
//	}
//
// TWO-VALUED LOGIC:
//
// Every leaf evaluates to true or false, never unknown. A missing attribute
// is null; null equals only null; string operators never match non-strings.
// This keeps NOT consistent between SQL and in-memory evaluation.
//
// ORDERING:
//
// Sort keys compare with ir.Compare (SQLite BINARY collation). Ties are
// broken by insertion sequence and then record ID, the same tiebreak the SQL
// compiler appends to every ORDER BY.
package queryir
