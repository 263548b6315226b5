package core

import (
	"time"
)

// DataType is the normalized column type shared across all backends.
// Concrete connectors map native types onto this closed set and fall
// back to DataTypeUnknown for anything unmapped.
type DataType string

const (
	DataTypeString   DataType = "STRING"
	DataTypeInteger  DataType = "INTEGER"
	DataTypeFloat    DataType = "FLOAT"
	DataTypeDecimal  DataType = "DECIMAL"
	DataTypeBoolean  DataType = "BOOLEAN"
	DataTypeDate     DataType = "DATE"
	DataTypeTime     DataType = "TIME"
	DataTypeDateTime DataType = "DATETIME"
	DataTypeJSON     DataType = "JSON"
	DataTypeArray    DataType = "ARRAY"
	DataTypeObject   DataType = "OBJECT"
	DataTypeBinary   DataType = "BINARY"
	DataTypeUUID     DataType = "UUID"
	DataTypeUnknown  DataType = "UNKNOWN"
)

// ColumnInfo describes one column of a discovered table.
type ColumnInfo struct {
	Name       string   `json:"name"`
	Type       DataType `json:"type"`
	NativeType string   `json:"native_type"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primary_key"`
	Default    *string  `json:"default,omitempty"`
}

// TableInfo describes one table or collection.
type TableInfo struct {
	Name        string       `json:"name"`
	Schema      string       `json:"schema,omitempty"`
	Columns     []ColumnInfo `json:"columns"`
	RowEstimate int64        `json:"row_estimate,omitempty"`
}

// QualifiedName returns schema.name when a schema is present.
func (t TableInfo) QualifiedName() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

// SchemaInfo is the discovered schema tree of one backend database.
type SchemaInfo struct {
	Database     string      `json:"database"`
	Tables       []TableInfo `json:"tables"`
	DiscoveredAt time.Time   `json:"discovered_at"`
}

// Table finds a table by name, matching either the bare or the
// schema-qualified form.
func (s *SchemaInfo) Table(name string) (*TableInfo, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name || s.Tables[i].QualifiedName() == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// TableNames returns the qualified names of all discovered tables.
func (s *SchemaInfo) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.QualifiedName())
	}
	return names
}
