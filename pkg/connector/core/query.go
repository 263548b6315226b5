package core

import (
	"time"
)

// QueryType classifies a universal query.
type QueryType string

const (
	QueryTypeSelect  QueryType = "SELECT"
	QueryTypeInsert  QueryType = "INSERT"
	QueryTypeUpdate  QueryType = "UPDATE"
	QueryTypeDelete  QueryType = "DELETE"
	QueryTypeSchema  QueryType = "SCHEMA"
	QueryTypePreview QueryType = "PREVIEW"
)

// Valid reports whether t is a known query type.
func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeSelect, QueryTypeInsert, QueryTypeUpdate, QueryTypeDelete, QueryTypeSchema, QueryTypePreview:
		return true
	}
	return false
}

// Operator is a comparison operator in a query condition.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpLike         Operator = "LIKE"
	OpIn           Operator = "IN"
)

// Condition is one predicate in a universal query.
type Condition struct {
	Field string      `json:"field"`
	Op    Operator    `json:"op"`
	Value interface{} `json:"value"`
}

// OrderBy is one ordering term.
type OrderBy struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// UniversalQuery is the backend-agnostic representation of a data
// request. It expresses intent only; each connector translates it into
// its native dialect. When RawQuery is set it is used verbatim and the
// structured fields are ignored. Treat a query as immutable once built:
// the builder methods return modified copies.
type UniversalQuery struct {
	Type       QueryType              `json:"type"`
	Fields     []string               `json:"fields,omitempty"`
	Table      string                 `json:"table,omitempty"`
	Conditions []Condition            `json:"conditions,omitempty"`
	GroupBy    []string               `json:"group_by,omitempty"`
	OrderBy    []OrderBy              `json:"order_by,omitempty"`
	Values     map[string]interface{} `json:"values,omitempty"`
	RawQuery   string                 `json:"raw_query,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Offset     int                    `json:"offset,omitempty"`
	Timeout    time.Duration          `json:"timeout,omitempty"`
}

// NewQuery starts building a query of the given type.
func NewQuery(t QueryType) UniversalQuery {
	return UniversalQuery{Type: t}
}

// NewRawQuery wraps raw backend-native text as an escape hatch.
func NewRawQuery(text string) UniversalQuery {
	return UniversalQuery{Type: QueryTypeSelect, RawQuery: text}
}

// Select sets the projected fields.
func (q UniversalQuery) Select(fields ...string) UniversalQuery {
	q.Fields = append([]string(nil), fields...)
	return q
}

// From sets the source table or collection.
func (q UniversalQuery) From(table string) UniversalQuery {
	q.Table = table
	return q
}

// Where appends a condition.
func (q UniversalQuery) Where(field string, op Operator, value interface{}) UniversalQuery {
	conds := make([]Condition, len(q.Conditions), len(q.Conditions)+1)
	copy(conds, q.Conditions)
	q.Conditions = append(conds, Condition{Field: field, Op: op, Value: value})
	return q
}

// Group sets grouping fields.
func (q UniversalQuery) Group(fields ...string) UniversalQuery {
	q.GroupBy = append([]string(nil), fields...)
	return q
}

// Order appends an ordering term.
func (q UniversalQuery) Order(field string, descending bool) UniversalQuery {
	order := make([]OrderBy, len(q.OrderBy), len(q.OrderBy)+1)
	copy(order, q.OrderBy)
	q.OrderBy = append(order, OrderBy{Field: field, Descending: descending})
	return q
}

// Set attaches a column value for INSERT/UPDATE queries.
func (q UniversalQuery) Set(column string, value interface{}) UniversalQuery {
	values := make(map[string]interface{}, len(q.Values)+1)
	for k, v := range q.Values {
		values[k] = v
	}
	values[column] = value
	q.Values = values
	return q
}

// WithLimit sets the row limit.
func (q UniversalQuery) WithLimit(limit int) UniversalQuery {
	q.Limit = limit
	return q
}

// WithOffset sets the row offset.
func (q UniversalQuery) WithOffset(offset int) UniversalQuery {
	q.Offset = offset
	return q
}

// WithTimeout overrides the connector-level query timeout for this query.
func (q UniversalQuery) WithTimeout(d time.Duration) UniversalQuery {
	q.Timeout = d
	return q
}

// IsRaw reports whether the raw escape hatch is in use.
func (q UniversalQuery) IsRaw() bool {
	return q.RawQuery != ""
}

// Text returns the best human-readable representation of the query for
// error payloads: the raw text when present, otherwise the table target.
func (q UniversalQuery) Text() string {
	if q.RawQuery != "" {
		return q.RawQuery
	}
	return string(q.Type) + " " + q.Table
}
