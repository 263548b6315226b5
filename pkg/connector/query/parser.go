// Package query provides the reference QueryParser: a deliberately
// simple classifier that builds UniversalQuery values from text.
// Connectors do not depend on it; it exists for callers that start
// from simplified query strings.
package query

import (
	"strings"

	"github.com/platewise/dataconnect/pkg/connector/core"
	"github.com/platewise/dataconnect/pkg/errors"
)

// Parser classifies text by its leading verb and extracts a naive
// source table for SELECT-shaped text. Anything it cannot classify is
// passed through as a raw query (the escape hatch).
type Parser struct{}

// NewParser returns the reference parser.
func NewParser() *Parser {
	return &Parser{}
}

var verbTypes = map[string]core.QueryType{
	"SELECT":   core.QueryTypeSelect,
	"INSERT":   core.QueryTypeInsert,
	"UPDATE":   core.QueryTypeUpdate,
	"DELETE":   core.QueryTypeDelete,
	"DESCRIBE": core.QueryTypeSchema,
	"SHOW":     core.QueryTypeSchema,
	"PREVIEW":  core.QueryTypePreview,
}

// Parse builds a UniversalQuery from simplified text.
func (p *Parser) Parse(text string) (*core.UniversalQuery, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New(errors.ErrorTypeDataValidation, "empty query text")
	}

	tokens := strings.Fields(trimmed)
	verb := strings.ToUpper(tokens[0])

	queryType, known := verbTypes[verb]
	if !known {
		// Unclassifiable text rides the raw escape hatch.
		q := core.NewRawQuery(trimmed)
		return &q, nil
	}

	q := core.UniversalQuery{Type: queryType, RawQuery: trimmed}

	switch queryType {
	case core.QueryTypeSelect:
		table := extractTable(tokens, "FROM")
		if table == "" {
			return nil, errors.New(errors.ErrorTypeDataValidation,
				"SELECT query has no source table").WithQuery(trimmed)
		}
		q.Table = table
	case core.QueryTypePreview, core.QueryTypeSchema:
		// PREVIEW orders / DESCRIBE orders
		if len(tokens) > 1 {
			q.Table = strings.Trim(tokens[1], `"';`)
			q.RawQuery = ""
		}
	case core.QueryTypeInsert:
		q.Table = extractTable(tokens, "INTO")
	case core.QueryTypeUpdate:
		if len(tokens) > 1 {
			q.Table = strings.Trim(tokens[1], `"';`)
		}
	case core.QueryTypeDelete:
		q.Table = extractTable(tokens, "FROM")
	}

	return &q, nil
}

// Validate reports whether a query is executable: the type is known and
// the operations that need a target or payload have one.
func (p *Parser) Validate(q *core.UniversalQuery) bool {
	if q == nil || !q.Type.Valid() {
		return false
	}
	if q.IsRaw() {
		return true
	}

	switch q.Type {
	case core.QueryTypeSelect, core.QueryTypePreview, core.QueryTypeDelete:
		return q.Table != ""
	case core.QueryTypeInsert, core.QueryTypeUpdate:
		return q.Table != "" && len(q.Values) > 0
	case core.QueryTypeSchema:
		return true
	}
	return false
}

// extractTable returns the token following the given keyword, stripped
// of quoting and trailing punctuation.
func extractTable(tokens []string, keyword string) string {
	for i, tok := range tokens {
		if strings.EqualFold(tok, keyword) && i+1 < len(tokens) {
			return strings.Trim(tokens[i+1], `"';`)
		}
	}
	return ""
}
