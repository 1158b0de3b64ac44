package writer

import (
	"errors"
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/ajitpratap0/parquetry/pkg/table"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectDecimal(t *testing.T) {
	tests := []struct {
		name       string
		precisions []int
		columns    []arrow.Array
		wantErr    bool
		wantType   format.Type
		wantLength int32
	}{
		{name: "precision below scale", precisions: []int{2}, columns: []arrow.Array{decimalArray(t, 5, 3, 1)}, wantErr: true},
		{name: "override", precisions: []int{5}, columns: []arrow.Array{decimalArray(t, 20, 2, 1)}, wantType: format.Int32},
		{name: "type precision", columns: []arrow.Array{decimalArray(t, 12, 2, 1)}, wantType: format.Int64},
		{name: "wide", columns: []arrow.Array{decimalArray(t, 30, 2, 1)}, wantType: format.FixedLenByteArray, wantLength: 16},
		{name: "list too short", precisions: []int{5}, columns: []arrow.Array{decimalArray(t, 5, 2, 1), decimalArray(t, 5, 2, 1)}, wantErr: true},
		{name: "unused entries", precisions: []int{5, 6}, columns: []arrow.Array{decimalArray(t, 5, 2, 1)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := &table.Table{}
			for i, col := range tt.columns {
				tbl.Columns = append(tbl.Columns, table.Column{Name: string(rune('a' + i)), Data: col})
			}
			cols, err := projectTable(tbl, newProjector(tt.precisions, false, false))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, pqerrors.ErrInvalidDecimalSpec))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, cols[0].PhysicalType)
			assert.Equal(t, tt.wantLength, cols[0].TypeLength)
			assert.Equal(t, format.Decimal, *cols[0].ConvertedType)
			assert.EqualValues(t, 2, cols[0].Scale)
		})
	}
}

func TestProjectNullabilityOverride(t *testing.T) {
	tbl := table.New(table.Column{
		Name:        "tags",
		Data:        stringListArray(t, []string{"a"}),
		Nullability: []bool{true},
	})
	_, err := projectTable(tbl, newProjector(nil, false, false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pqerrors.ErrNullabilityMismatch))

	tbl.Columns[0].Nullability = []bool{true, false}
	cols, err := projectTable(tbl, newProjector(nil, false, false))
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, cols[0].Nullable)
	assert.EqualValues(t, 2, cols[0].MaxDef)
	assert.EqualValues(t, 1, cols[0].MaxRep)
}

func TestProjectRequiredWithNulls(t *testing.T) {
	tbl := table.New(table.Column{
		Name:        "id",
		Data:        int32Array(t, []int32{1, 0}, []bool{true, false}),
		Nullability: []bool{false},
	})
	_, err := projectTable(tbl, newProjector(nil, false, false))
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeNullability))
}

func TestProjectChunkedRequiredColumns(t *testing.T) {
	tbl := table.New(
		table.Column{Name: "id", Data: int32Array(t, []int32{1, 2}, nil)},
		table.Column{Name: "tags", Data: stringListArray(t, []string{"a"}, []string{"b"})},
		table.Column{Name: "other", Data: int32Array(t, []int32{3, 4}, nil)},
	)
	cols, err := projectTable(tbl, newProjector(nil, false, true, "id", "tags"))
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, cols[0].Nullable)
	assert.EqualValues(t, 0, cols[0].MaxDef)
	assert.Equal(t, []bool{false, false}, cols[1].Nullable)
	assert.EqualValues(t, 1, cols[1].MaxDef)
	assert.Equal(t, []bool{true}, cols[2].Nullable)

	tbl.Columns[0].Nullability = []bool{true}
	cols, err = projectTable(tbl, newProjector(nil, false, true, "id"))
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, cols[0].Nullable)

	withNull := table.New(table.Column{Name: "id", Data: int32Array(t, []int32{1, 0}, []bool{true, false})})
	_, err = projectTable(withNull, newProjector(nil, false, true, "id"))
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeNullability))
}

func TestProjectTimestamps(t *testing.T) {
	b := array.NewTimestampBuilder(memory.NewGoAllocator(), &arrow.TimestampType{Unit: arrow.Nanosecond})
	defer b.Release()
	b.Append(arrow.Timestamp(1_500_000))
	arr := b.NewArray()
	defer arr.Release()
	tbl := table.New(table.Column{Name: "ts", Data: arr})

	cols, err := projectTable(tbl, newProjector(nil, false, false))
	require.NoError(t, err)
	assert.Equal(t, format.Int64, cols[0].PhysicalType)
	assert.Equal(t, format.TimestampMicros, *cols[0].ConvertedType)
	assert.Equal(t, []byte{0xdc, 0x05, 0, 0, 0, 0, 0, 0}, cols[0].Values.AppendPlain(nil, 0))

	cols, err = projectTable(tbl, newProjector(nil, true, false))
	require.NoError(t, err)
	assert.Equal(t, format.Int96, cols[0].PhysicalType)
	assert.False(t, cols[0].MinMax)
	assert.Equal(t, 12, cols[0].Values.PlainSize(0))
}

func TestProjectUnsupportedType(t *testing.T) {
	b := array.NewFloat16Builder(memory.NewGoAllocator())
	defer b.Release()
	b.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	_, err := projectTable(table.New(table.Column{Name: "h", Data: arr}), newProjector(nil, false, false))
	require.Error(t, err)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeUnsupported))
}
