package base

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Dialect captures the differences between the SQL backends: value
// placeholder style and identifier quoting.
type Dialect struct {
	// Name of the dialect, used in error messages.
	Name string
	// Placeholder returns the value placeholder for 1-based position n.
	Placeholder func(n int) string
	// QuoteRune is the identifier quoting character.
	QuoteRune rune
}

// DialectPostgres uses $n placeholders and double-quoted identifiers.
var DialectPostgres = Dialect{
	Name:        "postgresql",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	QuoteRune:   '"',
}

// DialectMySQL uses ? placeholders and backtick identifiers.
var DialectMySQL = Dialect{
	Name:        "mysql",
	Placeholder: func(int) string { return "?" },
	QuoteRune:   '`',
}

// DialectSnowflake uses ? placeholders and double-quoted identifiers.
var DialectSnowflake = Dialect{
	Name:        "snowflake",
	Placeholder: func(int) string { return "?" },
	QuoteRune:   '"',
}

// QuoteIdentifier quotes a possibly schema-qualified identifier,
// doubling any embedded quote characters.
func (d Dialect) QuoteIdentifier(name string) string {
	quote := string(d.QuoteRune)
	parts := strings.Split(name, ".")
	for i, part := range parts {
		escaped := strings.ReplaceAll(part, quote, quote+quote)
		parts[i] = quote + escaped + quote
	}
	return strings.Join(parts, ".")
}

// BuildSQL translates a structured UniversalQuery into a dialect
// statement with ordered bind arguments. Raw queries are returned
// verbatim with no arguments.
func BuildSQL(q *core.UniversalQuery, d Dialect) (string, []interface{}, error) {
	if q.IsRaw() {
		return q.RawQuery, nil, nil
	}

	switch q.Type {
	case core.QueryTypeSelect, core.QueryTypePreview:
		return buildSelect(q, d)
	case core.QueryTypeInsert:
		return buildInsert(q, d)
	case core.QueryTypeUpdate:
		return buildUpdate(q, d)
	case core.QueryTypeDelete:
		return buildDelete(q, d)
	default:
		return "", nil, errors.Newf(errors.ErrorTypeQuery,
			"query type %s has no %s translation", q.Type, d.Name)
	}
}

func buildSelect(q *core.UniversalQuery, d Dialect) (string, []interface{}, error) {
	if q.Table == "" {
		return "", nil, errors.New(errors.ErrorTypeQuery, "SELECT requires a source table")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if len(q.Fields) == 0 {
		sb.WriteString("*")
	} else {
		for i, f := range q.Fields {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.QuoteIdentifier(f))
		}
	}
	sb.WriteString(" FROM ")
	sb.WriteString(d.QuoteIdentifier(q.Table))

	args, err := writeWhere(&sb, q.Conditions, d, 0)
	if err != nil {
		return "", nil, err
	}

	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		for i, f := range q.GroupBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.QuoteIdentifier(f))
		}
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range q.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.QuoteIdentifier(o.Field))
			if o.Descending {
				sb.WriteString(" DESC")
			}
		}
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}

	return sb.String(), args, nil
}

func buildInsert(q *core.UniversalQuery, d Dialect) (string, []interface{}, error) {
	if q.Table == "" || len(q.Values) == 0 {
		return "", nil, errors.New(errors.ErrorTypeQuery, "INSERT requires a table and values")
	}

	columns := sortedKeys(q.Values)
	args := make([]interface{}, 0, len(columns))

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QuoteIdentifier(q.Table))
	sb.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.QuoteIdentifier(col))
	}
	sb.WriteString(") VALUES (")
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Placeholder(i + 1))
		args = append(args, q.Values[col])
	}
	sb.WriteString(")")

	return sb.String(), args, nil
}

func buildUpdate(q *core.UniversalQuery, d Dialect) (string, []interface{}, error) {
	if q.Table == "" || len(q.Values) == 0 {
		return "", nil, errors.New(errors.ErrorTypeQuery, "UPDATE requires a table and values")
	}

	columns := sortedKeys(q.Values)
	args := make([]interface{}, 0, len(columns)+len(q.Conditions))

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(d.QuoteIdentifier(q.Table))
	sb.WriteString(" SET ")
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.QuoteIdentifier(col))
		sb.WriteString(" = ")
		sb.WriteString(d.Placeholder(len(args) + 1))
		args = append(args, q.Values[col])
	}

	whereArgs, err := writeWhere(&sb, q.Conditions, d, len(args))
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)

	return sb.String(), args, nil
}

func buildDelete(q *core.UniversalQuery, d Dialect) (string, []interface{}, error) {
	if q.Table == "" {
		return "", nil, errors.New(errors.ErrorTypeQuery, "DELETE requires a table")
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(d.QuoteIdentifier(q.Table))

	args, err := writeWhere(&sb, q.Conditions, d, 0)
	if err != nil {
		return "", nil, err
	}

	return sb.String(), args, nil
}

// writeWhere renders the WHERE clause and returns its bind arguments.
// offset is the number of placeholders already consumed by the caller.
func writeWhere(sb *strings.Builder, conds []core.Condition, d Dialect, offset int) ([]interface{}, error) {
	if len(conds) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(conds))
	sb.WriteString(" WHERE ")
	for i, cond := range conds {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(d.QuoteIdentifier(cond.Field))

		switch cond.Op {
		case core.OpIn:
			values, ok := cond.Value.([]interface{})
			if !ok || len(values) == 0 {
				return nil, errors.Newf(errors.ErrorTypeQuery,
					"IN condition on %q requires a non-empty value list", cond.Field)
			}
			sb.WriteString(" IN (")
			for j, v := range values {
				if j > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(d.Placeholder(offset + len(args) + 1))
				args = append(args, v)
			}
			sb.WriteString(")")
		case core.OpEqual, core.OpNotEqual, core.OpGreater, core.OpGreaterEqual,
			core.OpLess, core.OpLessEqual, core.OpLike:
			sb.WriteString(" ")
			sb.WriteString(string(cond.Op))
			sb.WriteString(" ")
			sb.WriteString(d.Placeholder(offset + len(args) + 1))
			args = append(args, cond.Value)
		default:
			return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported operator %q", cond.Op)
		}
	}
	return args, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Deterministic statement text for a given query value.
	sort.Strings(keys)
	return keys
}
