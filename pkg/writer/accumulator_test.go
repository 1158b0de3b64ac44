package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafSchema(name string, typ format.Type) []*format.SchemaElement {
	return []*format.SchemaElement{
		{Name: rootName, NumChildren: format.Int32Ptr(1)},
		{Name: name, Type: &typ, RepetitionType: repetition(true)},
	}
}

func TestAccumulator(t *testing.T) {
	ctx := context.Background()
	acc := newAccumulator(map[string]string{"b": "2", "a": "1"}, "parquetry test", true)
	assert.EqualValues(t, 4, acc.offset)

	schema := leafSchema("v", format.Int32)
	require.NoError(t, acc.check(schema))
	acc.commit(schema, 10, []*format.RowGroup{{NumRows: 10}}, 100)

	err := acc.check(leafSchema("v", format.Int64))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pqerrors.ErrSchemaMismatch))
	require.NoError(t, acc.check(leafSchema("v", format.Int32)))

	acc.commit(leafSchema("v", format.Int32), 5, []*format.RowGroup{{NumRows: 5}}, 150)

	md, err := acc.snapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, md.Version)
	assert.EqualValues(t, 15, md.NumRows)
	assert.Len(t, md.RowGroups, 2)
	assert.Len(t, md.ColumnOrders, 1)
	assert.Equal(t, "parquetry test", *md.CreatedBy)
	require.Len(t, md.KeyValueMetadata, 2)
	assert.Equal(t, "a", md.KeyValueMetadata[0].Key)
	assert.Equal(t, "b", md.KeyValueMetadata[1].Key)
	assert.EqualValues(t, 150, acc.offset)

	md.RowGroups = nil
	again, err := acc.snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, again.RowGroups, 2, "snapshot must be a copy")
}

func TestAccumulatorWithoutStatistics(t *testing.T) {
	acc := newAccumulator(nil, "", false)
	acc.commit(leafSchema("v", format.Int32), 1, nil, 10)
	assert.Nil(t, acc.md.ColumnOrders)
	assert.Nil(t, acc.md.CreatedBy)
	assert.Nil(t, acc.md.KeyValueMetadata)
}
