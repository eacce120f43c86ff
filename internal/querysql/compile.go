package querysql

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/edb/internal/ir"
	"github.com/roach88/edb/internal/queryir"
)

// ObjectColumns is the column list produced by compiled object queries, in scan order.
const ObjectColumns = "o.oid, o.timestamp, o.version, o.deleted, o.attrs, o.digest"

// CommitColumns is the column list produced by compiled commit queries, in scan order.
const CommitColumns = "timestamp, revision, parent, committer, context, comment, domain_id, connector_id, instance_id"

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// Every query ends in an ORDER BY so results are deterministic, and every
// value is passed as a parameter, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	switch query := q.(type) {
	case queryir.ObjectSelect:
		return c.compileObjectSelect(query)
	case *queryir.ObjectSelect:
		return c.compileObjectSelect(*query)
	case queryir.CommitSelect:
		return c.compileCommitSelect(query)
	case *queryir.CommitSelect:
		return c.compileCommitSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileObjectSelect picks, per OID, the newest version at or before At and
// keeps the live ones that satisfy the filter.
func (c *SQLCompiler) compileObjectSelect(q queryir.ObjectSelect) (string, []any, error) {
	at := q.At
	if at == 0 {
		at = math.MaxInt64
	}

	where := []string{
		"o.timestamp = (SELECT MAX(h.timestamp) FROM objects h WHERE h.oid = o.oid AND h.timestamp <= ?)",
		"o.deleted = 0",
	}
	params := []any{at}

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, filterSQL)
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT %s FROM objects o WHERE %s ORDER BY o.oid COLLATE BINARY ASC",
		ObjectColumns, strings.Join(where, " AND "))
	return sql, params, nil
}

func (c *SQLCompiler) compileCommitSelect(q queryir.CommitSelect) (string, []any, error) {
	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	order := " ORDER BY timestamp ASC"
	if q.Descending {
		order = " ORDER BY timestamp DESC"
	}

	sql := fmt.Sprintf("SELECT %s FROM commits%s%s", CommitColumns, whereClause, order)
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.AttrEquals:
		return c.compileAttrEquals(pred)
	case queryir.AttrLike:
		return c.compileAttrLike(pred)
	case queryir.FieldEquals:
		return fmt.Sprintf("%s = ?", pred.Field), []any{pred.Value}, nil
	case queryir.FieldRange:
		return c.compileFieldRange(pred)
	case queryir.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

const entryMatch = "EXISTS (SELECT 1 FROM entries e WHERE e.oid = o.oid AND e.timestamp = o.timestamp AND e.key = ? AND %s)"

func (c *SQLCompiler) compileAttrEquals(eq queryir.AttrEquals) (string, []any, error) {
	typ := ir.TypeOf(eq.Value)
	text := ir.FormatValue(eq.Value)

	cond := "e.type = ? AND e.value = ?"
	if eq.FoldCase {
		cond = "e.type = ? AND LOWER(e.value) = LOWER(?)"
	}
	return fmt.Sprintf(entryMatch, cond), []any{eq.Key, string(typ), text}, nil
}

// compileAttrLike uses LIKE for case-insensitive matching and GLOB for
// case-sensitive matching; SQLite's LIKE ignores ASCII case.
func (c *SQLCompiler) compileAttrLike(like queryir.AttrLike) (string, []any, error) {
	if like.FoldCase {
		cond := `e.type = ? AND LOWER(e.value) LIKE LOWER(?) ESCAPE '\'`
		return fmt.Sprintf(entryMatch, cond), []any{like.Key, string(ir.TypeString), like.Pattern}, nil
	}
	cond := "e.type = ? AND e.value GLOB ?"
	return fmt.Sprintf(entryMatch, cond), []any{like.Key, string(ir.TypeString), LikeToGlob(like.Pattern)}, nil
}

func (c *SQLCompiler) compileFieldRange(r queryir.FieldRange) (string, []any, error) {
	var parts []string
	var params []any
	if r.From != 0 {
		parts = append(parts, fmt.Sprintf("%s >= ?", r.Field))
		params = append(params, r.From)
	}
	if r.To != 0 {
		parts = append(parts, fmt.Sprintf("%s <= ?", r.Field))
		params = append(params, r.To)
	}
	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, "("+sql+")")
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

// LikeToGlob converts a LIKE pattern (% and _, backslash escapes) to an
// equivalent GLOB pattern. GLOB metacharacters in the input are bracketed so
// they match literally.
func LikeToGlob(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			writeGlobLiteral(&b, r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteByte('*')
		case r == '_':
			b.WriteByte('?')
		default:
			writeGlobLiteral(&b, r)
		}
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

func writeGlobLiteral(b *strings.Builder, r rune) {
	switch r {
	case '*', '?', '[':
		b.WriteByte('[')
		b.WriteRune(r)
		b.WriteByte(']')
	default:
		b.WriteRune(r)
	}
}
