package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/queryir"
)

// MatchFunction is the SQL function the SQLite backends register to evaluate
// string operators with queryir.MatchString.
//
//	strata_match(op TEXT, opts INTEGER, value ANY, pattern TEXT) -> 0 | 1
//
// It returns 0 for non-text values, so string leaves are never NULL.
const MatchFunction = "strata_match"

// Columns lists the columns every compiled query selects, in scan order.
const Columns = "seq, id, entity, attrs"

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// Records live in a single table with a JSON attrs column. Attributes are
// addressed as json_extract(attrs, '$.field'); field names are validated
// against queryir.ValidField before they reach the SQL text.
//
// CRITICAL: ALL queries include ORDER BY with the (seq, id) tiebreak.
// CRITICAL: All values are parameterized, never interpolated.
// CRITICAL: Every leaf is two-valued so NOT agrees with queryir.Eval.
type SQLCompiler struct {
	// Table is the records table name.
	Table string
}

// NewSQLCompiler creates a compiler for the default records table.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "records"}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Check(q); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE entity = ?", Columns, c.Table)
	params := []any{q.Entity}

	if q.Filter != nil {
		where, whereParams, err := c.CompileWhere(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" AND (")
		b.WriteString(where)
		b.WriteString(")")
		params = append(params, whereParams...)
	}

	// MANDATORY: every query is totally ordered.
	b.WriteString(" ORDER BY ")
	b.WriteString(OrderBy(q.Sort))

	if q.Limit > 0 || q.Offset > 0 {
		limit := int64(q.Limit)
		if limit == 0 {
			limit = -1 // SQLite: no upper bound
		}
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, limit, int64(q.Offset))
	}

	return b.String(), params, nil
}

// OrderBy renders the ORDER BY terms for keys followed by the mandatory
// tiebreak. Keys must already be validated.
func OrderBy(keys []queryir.SortKey) string {
	terms := make([]string, 0, len(keys)+2)
	for _, key := range keys {
		dir := "ASC"
		if key.Descending {
			dir = "DESC"
		}
		terms = append(terms, attr(key.Field)+" "+dir)
	}
	terms = append(terms, "seq ASC", "id COLLATE BINARY ASC")
	return strings.Join(terms, ", ")
}

// CompileWhere compiles a predicate to a WHERE fragment without the entity
// condition. GORM-based backends pass the result to db.Where.
func (c *SQLCompiler) CompileWhere(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil, queryir.True:
		return "1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case queryir.In:
		return c.compileIn(pred)
	case queryir.StringMatch:
		return c.compileStringMatch(pred)
	case queryir.And:
		return c.compileJunction("AND", "1", pred.Predicates)
	case queryir.Or:
		return c.compileJunction("OR", "0", pred.Predicates)
	case queryir.Not:
		inner, params, err := c.CompileWhere(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles to "attr IS ?". IS is null-safe and never NULL.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	if ir.IsNull(eq.Value) {
		return attr(eq.Field) + " IS NULL", nil, nil
	}
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", eq.Field, err)
	}
	return attr(eq.Field) + " IS ?", []any{param}, nil
}

// compileIn compiles membership. IN yields NULL when the attribute is
// missing or the list holds NULL, so the result is coalesced to 0 and null
// members become an explicit IS NULL test.
func (c *SQLCompiler) compileIn(in queryir.In) (string, []any, error) {
	var params []any
	hasNull := false
	for _, v := range in.Values {
		if ir.IsNull(v) {
			hasNull = true
			continue
		}
		param, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", in.Field, err)
		}
		params = append(params, param)
	}

	field := attr(in.Field)
	var member string
	if len(params) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(params)), ", ")
		member = fmt.Sprintf("COALESCE(%s IN (%s), 0)", field, placeholders)
	}

	switch {
	case member != "" && hasNull:
		return "(" + member + " OR " + field + " IS NULL)", params, nil
	case member != "":
		return member, params, nil
	case hasNull:
		return field + " IS NULL", nil, nil
	default:
		return "0", nil, nil
	}
}

func (c *SQLCompiler) compileStringMatch(sm queryir.StringMatch) (string, []any, error) {
	sql := fmt.Sprintf("%s(?, ?, %s, ?)", MatchFunction, attr(sm.Field))
	return sql, []any{string(sm.Op), int64(sm.Options), sm.Value}, nil
}

func (c *SQLCompiler) compileJunction(op, empty string, children []queryir.Predicate) (string, []any, error) {
	switch len(children) {
	case 0:
		return empty, nil, nil
	case 1:
		return c.CompileWhere(children[0])
	}

	parts := make([]string, 0, len(children))
	var params []any
	for _, child := range children {
		sql, childParams, err := c.CompileWhere(child)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, childParams...)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", params, nil
}

// attr addresses a validated attribute inside the attrs JSON column.
func attr(field string) string {
	return "json_extract(attrs, '$." + field + "')"
}

// irValueToParam converts an ir.IRValue to a Go native type for SQL parameter.
// Booleans bind as 1/0, matching json_extract of JSON true/false.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		return bool(val), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
