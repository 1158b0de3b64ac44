// Package table is the writer's input: a set of equally long arrow columns,
// each optionally carrying a per-level nullability override.
package table

import (
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
)

// Column is one named input column. Nullability, when set, holds one flag per
// list nesting level plus one for the leaf values.
type Column struct {
	Name        string
	Data        arrow.Array
	Nullability []bool
}

// Table is an ordered set of columns. The table does not own the arrays.
type Table struct {
	Columns []Column
}

// New creates a table from columns.
func New(cols ...Column) *Table {
	return &Table{Columns: cols}
}

// FromRecord wraps the columns of rec, named after its schema fields. Fields
// flagged non-nullable get an all-required override for their leaf level.
func FromRecord(rec arrow.Record) *Table {
	schema := rec.Schema()
	t := &Table{Columns: make([]Column, rec.NumCols())}
	for i := range t.Columns {
		f := schema.Field(i)
		col := Column{Name: f.Name, Data: rec.Column(i)}
		if !f.Nullable {
			if _, isList := f.Type.(*arrow.ListType); !isList {
				col.Nullability = []bool{false}
			}
		}
		t.Columns[i] = col
	}
	return t
}

// NumRows returns the length of the first column, or zero for an empty table.
func (t *Table) NumRows() int64 {
	if len(t.Columns) == 0 {
		return 0
	}
	return int64(t.Columns[0].Data.Len())
}

// NumColumns returns the number of top-level columns.
func (t *Table) NumColumns() int { return len(t.Columns) }

// Validate checks that the table has columns, each column has data and a
// name, and every column has the same length.
func (t *Table) Validate() error {
	if t == nil || len(t.Columns) == 0 {
		return pqerrors.New(pqerrors.ErrorTypeUsage, "table has no columns")
	}
	rows := -1
	seen := make(map[string]struct{}, len(t.Columns))
	for i, c := range t.Columns {
		if c.Data == nil {
			return pqerrors.Newf(pqerrors.ErrorTypeUsage, "column %d has no data", i)
		}
		if c.Name == "" {
			return pqerrors.Newf(pqerrors.ErrorTypeUsage, "column %d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return pqerrors.Newf(pqerrors.ErrorTypeUsage, "duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if rows < 0 {
			rows = c.Data.Len()
		} else if c.Data.Len() != rows {
			return pqerrors.Newf(pqerrors.ErrorTypeUsage, "column %q has %d rows, expected %d", c.Name, c.Data.Len(), rows).
				WithDetail("column", c.Name)
		}
	}
	return nil
}
