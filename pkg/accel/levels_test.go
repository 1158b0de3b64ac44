package accel

import (
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringLists builds [["a","b"], [], null, ["c", null]].
func stringLists(t *testing.T) *array.List {
	t.Helper()
	lb := array.NewListBuilder(memory.NewGoAllocator(), arrow.BinaryTypes.String)
	defer lb.Release()
	vb := lb.ValueBuilder().(*array.StringBuilder)

	lb.Append(true)
	vb.Append("a")
	vb.Append("b")
	lb.Append(true)
	lb.AppendNull()
	lb.Append(true)
	vb.Append("c")
	vb.AppendNull()

	arr := lb.NewListArray()
	t.Cleanup(arr.Release)
	return arr
}

func TestBuildLevelsList(t *testing.T) {
	arr := stringLists(t)

	lv, info, err := BuildLevels(arr, []bool{true, true})
	require.NoError(t, err)

	assert.Equal(t, int16(3), info.MaxDef)
	assert.Equal(t, int16(1), info.MaxRep)
	assert.Equal(t, int64(4), info.DataCount)
	assert.Equal(t, int64(3), info.NullCount)

	assert.Equal(t, []int16{0, 1, 0, 0, 0, 1}, lv.Rep)
	assert.Equal(t, []int16{3, 3, 1, 0, 3, 2}, lv.Def)
	assert.Equal(t, []int32{0, 1, -1, -1, 2, -1}, lv.Slot)
	assert.Equal(t, []int32{0, 2, 3, 4, 6}, lv.RowStart)

	e0, e1 := lv.EntryRange(1, 3)
	assert.Equal(t, 2, e0)
	assert.Equal(t, 4, e1)

	leaf := LeafArray(arr).(*array.String)
	assert.Equal(t, "c", leaf.Value(int(lv.Slot[4])))
}

func TestBuildLevelsRequiredElements(t *testing.T) {
	arr := stringLists(t)

	lv, info, err := BuildLevels(arr, []bool{true, false})
	require.Error(t, err)
	assert.Nil(t, lv)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeNullability))
	assert.Equal(t, int16(2), info.MaxDef)
}

func TestBuildLevelsNullabilityMismatch(t *testing.T) {
	arr := stringLists(t)

	_, _, err := BuildLevels(arr, []bool{true})
	assert.ErrorIs(t, err, pqerrors.ErrNullabilityMismatch)
	assert.Equal(t, 1, ListDepth(arr.DataType()))
	assert.Equal(t, 2, ListDepth(arrow.ListOf(arrow.ListOf(arrow.PrimitiveTypes.Int64))))
}

func TestBuildFlatLevels(t *testing.T) {
	b := array.NewInt64Builder(memory.NewGoAllocator())
	defer b.Release()
	b.AppendValues([]int64{1, 0, 3}, []bool{true, false, true})
	arr := b.NewInt64Array()
	defer arr.Release()

	lv, info, err := BuildFlatLevels(arr, true)
	require.NoError(t, err)
	assert.Nil(t, lv.Rep)
	assert.Equal(t, []int16{1, 0, 1}, lv.Def)
	assert.Equal(t, []int32{0, -1, 2}, lv.Slot)
	assert.Equal(t, []int32{0, 1, 2, 3}, lv.RowStart)
	assert.Equal(t, int64(1), info.NullCount)
	assert.Equal(t, int16(1), info.MaxDef)

	_, _, err = BuildFlatLevels(arr, false)
	assert.True(t, pqerrors.IsType(err, pqerrors.ErrorTypeNullability))
}
