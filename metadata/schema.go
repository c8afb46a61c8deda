// Package metadata holds the schema records and the in-memory catalog the
// executors resolve tables and indexes through. Catalog persistence is the
// concern of an outer layer.
package metadata

import (
	"github.com/zhukovaskychina/xminidb/basic"
)

// Column describes one attribute of a table.
type Column struct {
	Name string
	Type basic.TypeID
}

// Schema 表结构定义
type Schema struct {
	Columns []Column
}

func NewSchema(columns []Column) *Schema {
	return &Schema{Columns: columns}
}

func (s *Schema) ColumnCount() int { return len(s.Columns) }

func (s *Schema) Column(i int) Column { return s.Columns[i] }

// ColumnIndex resolves a column name, returning -1 when absent.
func (s *Schema) ColumnIndex(name string) int {
	for i, col := range s.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// CopySchema narrows a schema to the given attribute positions, the shape
// undo logs use for partial tuples.
func CopySchema(s *Schema, attrs []int) *Schema {
	columns := make([]Column, 0, len(attrs))
	for _, i := range attrs {
		columns = append(columns, s.Columns[i])
	}
	return NewSchema(columns)
}

// JoinSchemas concatenates the left and right schemas of a join output.
func JoinSchemas(left, right *Schema) *Schema {
	columns := make([]Column, 0, len(left.Columns)+len(right.Columns))
	columns = append(columns, left.Columns...)
	columns = append(columns, right.Columns...)
	return NewSchema(columns)
}
