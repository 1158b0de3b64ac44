package writer

import (
	"context"

	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// standaloneMetadata returns md serialized as a metadata-only buffer with
// filePath set on every column chunk. md is not modified.
func standaloneMetadata(ctx context.Context, md *format.FileMetaData, filePath string) ([]byte, error) {
	out, err := md.Clone(ctx)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to copy file metadata")
	}
	for _, rg := range out.RowGroups {
		for _, cc := range rg.Columns {
			cc.FilePath = format.StringPtr(filePath)
		}
	}
	return format.EncodeStandalone(ctx, out)
}

// MergeRowGroupMetadata combines metadata buffers, each a complete file or a
// standalone metadata buffer, into one standalone buffer. Row groups are
// concatenated in input order and row counts summed. Schema, key/value
// metadata, creator and column orders come from the first buffer; every
// other buffer must carry a structurally equal schema.
func MergeRowGroupMetadata(ctx context.Context, buffers [][]byte) ([]byte, error) {
	if len(buffers) == 0 {
		return nil, pqerrors.New(pqerrors.ErrorTypeUsage, "no metadata buffers to merge")
	}

	var merged *format.FileMetaData
	for i, buf := range buffers {
		md, err := format.ReadFileMetaData(ctx, buf)
		if err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeInvalidFooter, "cannot read metadata buffer").WithDetail("index", i)
		}
		if merged == nil {
			merged = md
			continue
		}
		if !schemaEqual(merged.Schema, md.Schema) {
			return nil, pqerrors.Wrap(pqerrors.ErrSchemaMismatch, pqerrors.ErrorTypeSchemaMismatch, "metadata buffers describe different schemas").
				WithDetail("index", i)
		}
		merged.NumRows += md.NumRows
		merged.RowGroups = append(merged.RowGroups, md.RowGroups...)
	}

	for i, rg := range merged.RowGroups {
		rg.Ordinal = ordinalPtr(i)
	}
	return format.EncodeStandalone(ctx, merged)
}
