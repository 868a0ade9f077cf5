package store

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysql"
)

// DriverName is the database/sql driver registered by this package.
// It is mattn/go-sqlite3 with the strata_match function installed on every
// connection. gormstore opens its dialector on the same driver.
const DriverName = "strata_sqlite3"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(querysql.MatchFunction, matchFunc, true)
		},
	})
}

// matchFunc implements strata_match(op, opts, value, pattern).
// Non-text values, including NULL, never match.
func matchFunc(op string, opts int64, value any, pattern string) int64 {
	s, ok := value.(string)
	if !ok {
		return 0
	}
	if queryir.MatchString(queryir.StringOp(op), queryir.StringOptions(opts), s, pattern) {
		return 1
	}
	return 0
}
