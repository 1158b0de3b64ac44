package table

import (
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Array(t *testing.T, vals ...int64) arrow.Array {
	t.Helper()
	b := array.NewInt64Builder(memory.NewGoAllocator())
	defer b.Release()
	b.AppendValues(vals, nil)
	arr := b.NewArray()
	t.Cleanup(arr.Release)
	return arr
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   *Table
		wantErr bool
	}{
		{"ok", New(Column{Name: "a", Data: int64Array(t, 1, 2)}, Column{Name: "b", Data: int64Array(t, 3, 4)}), false},
		{"nil", nil, true},
		{"empty", New(), true},
		{"no data", New(Column{Name: "a"}), true},
		{"no name", New(Column{Data: int64Array(t, 1)}), true},
		{"duplicate", New(Column{Name: "a", Data: int64Array(t, 1)}, Column{Name: "a", Data: int64Array(t, 1)}), true},
		{"ragged", New(Column{Name: "a", Data: int64Array(t, 1, 2)}, Column{Name: "b", Data: int64Array(t, 1)}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeUsage))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFromRecord(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "score", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	rec := array.NewRecord(schema, []arrow.Array{int64Array(t, 1, 2, 3), int64Array(t, 4, 5, 6)}, 3)
	defer rec.Release()

	tbl := FromRecord(rec)
	require.NoError(t, tbl.Validate())
	assert.Equal(t, int64(3), tbl.NumRows())
	assert.Equal(t, 2, tbl.NumColumns())
	assert.Equal(t, "id", tbl.Columns[0].Name)
	assert.Equal(t, []bool{false}, tbl.Columns[0].Nullability)
	assert.Nil(t, tbl.Columns[1].Nullability)
}
