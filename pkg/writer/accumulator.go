package writer

import (
	"context"
	"maps"
	"slices"

	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// accumulator collects the file metadata of one writer across Write calls.
// Row groups are append-only and nothing changes unless a call succeeds.
type accumulator struct {
	md        format.FileMetaData
	offset    int64 // running file offset, the header is already counted
	stats     bool
	committed bool
}

func newAccumulator(kv map[string]string, createdBy string, stats bool) *accumulator {
	a := &accumulator{offset: int64(len(format.Magic)), stats: stats}
	if createdBy != "" {
		a.md.CreatedBy = format.StringPtr(createdBy)
	}
	for _, k := range slices.Sorted(maps.Keys(kv)) {
		a.md.KeyValueMetadata = append(a.md.KeyValueMetadata, &format.KeyValue{
			Key:   k,
			Value: format.StringPtr(kv[k]),
		})
	}
	return a
}

// check accepts any schema before the first commit and afterwards only a
// structurally equal one.
func (a *accumulator) check(schema []*format.SchemaElement) error {
	if !a.committed || schemaEqual(a.md.Schema, schema) {
		return nil
	}
	return pqerrors.Wrap(pqerrors.ErrSchemaMismatch, pqerrors.ErrorTypeSchemaMismatch, "table schema differs from the first write").
		WithDetail("expected_nodes", len(a.md.Schema)).
		WithDetail("actual_nodes", len(schema))
}

// commit records the outcome of one successful Write.
func (a *accumulator) commit(schema []*format.SchemaElement, rows int64, groups []*format.RowGroup, endOffset int64) {
	if !a.committed {
		a.md.Version = 1
		a.md.Schema = schema
		if a.stats {
			for range leafCount(schema) {
				a.md.ColumnOrders = append(a.md.ColumnOrders, &format.ColumnOrder{TypeOrder: &format.TypeDefinedOrder{}})
			}
		}
		a.committed = true
	}
	a.md.NumRows += rows
	a.md.RowGroups = append(a.md.RowGroups, groups...)
	a.offset = endOffset
}

// snapshot returns a deep copy of the metadata so far. Before the first
// commit the schema is empty.
func (a *accumulator) snapshot(ctx context.Context) (*format.FileMetaData, error) {
	md := a.md
	if md.Schema == nil {
		md.Version = 1
		md.Schema = []*format.SchemaElement{{Name: rootName, NumChildren: format.Int32Ptr(0)}}
	}
	return md.Clone(ctx)
}

func leafCount(schema []*format.SchemaElement) int {
	n := 0
	for _, el := range schema[1:] {
		if el.NumChildren == nil {
			n++
		}
	}
	return n
}
