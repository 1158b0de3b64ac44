package writer

import (
	"context"
	"math"

	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.uber.org/zap"
)

// outputBatch writes the gathered chunks of an encoded batch to the sink in
// row group then column order and returns the row group metadata. offset is
// the file offset of the first chunk and ordinal the ordinal of its first row
// group. The returned offset follows the last chunk.
func (w *Writer) outputBatch(ctx context.Context, arena *accel.Arena, b *batchPlan, offset int64, ordinal int, staging []byte) ([]*format.RowGroup, int64, error) {
	ncols := len(b.chunks) / len(b.groups)
	groups := make([]*format.RowGroup, 0, len(b.groups))

	for i := range b.groups {
		rg := &format.RowGroup{
			FileOffset: format.Int64Ptr(offset),
			Ordinal:    ordinalPtr(ordinal + i),
		}
		var compressed int64
		for _, c := range b.chunks[i*ncols : (i+1)*ncols] {
			cc, err := w.outputChunk(ctx, arena, c, offset, staging)
			if err != nil {
				return nil, 0, err
			}
			rg.Columns = append(rg.Columns, cc)
			rg.NumRows = c.NumRows
			rg.TotalByteSize += c.UncompressedSize
			compressed += c.CompressedSize
			offset += c.CompressedSize
		}
		rg.TotalCompressedSize = format.Int64Ptr(compressed)
		groups = append(groups, rg)
	}
	return groups, offset, nil
}

func (w *Writer) outputChunk(ctx context.Context, arena *accel.Arena, c *accel.Chunk, offset int64, staging []byte) (*format.ColumnChunk, error) {
	var statsRaw []byte
	if c.StatsBlob.Len > 0 {
		blob, err := arena.Bytes(c.StatsBlob)
		if err != nil {
			return nil, err
		}
		statsRaw = blob
	}
	data, err := arena.Bytes(c.Output)
	if err != nil {
		return nil, err
	}

	if w.sink.IsDeviceWritePreferred(c.Output.Len) {
		statsRaw = append([]byte(nil), statsRaw...)
		if err := w.sink.DeviceWrite(ctx, data); err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "device write failed").WithDetail("column", c.Desc.Name)
		}
		w.metrics.BytesWritten.WithLabelValues("device").Add(float64(len(data)))
	} else {
		n := 0
		if len(statsRaw) > 0 {
			n = copy(staging, statsRaw)
			statsRaw = staging[:n]
		}
		m := copy(staging[n:], data)
		if m != len(data) {
			return nil, pqerrors.Newf(pqerrors.ErrorTypeInternal, "staging buffer of %d bytes cannot hold chunk of %d", len(staging), n+len(data))
		}
		if err := w.sink.HostWrite(ctx, staging[n:n+m]); err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeIO, "host write failed").WithDetail("column", c.Desc.Name)
		}
		w.metrics.BytesWritten.WithLabelValues("host").Add(float64(m))
	}

	md := &format.ColumnMetaData{
		Type:                  c.Desc.PhysicalType,
		Encodings:             []format.Encoding{format.Plain, format.RLE},
		PathInSchema:          append([]string(nil), c.Desc.Path...),
		Codec:                 format.Uncompressed,
		NumValues:             int64(c.NumEntries),
		TotalUncompressedSize: c.UncompressedSize,
		TotalCompressedSize:   c.CompressedSize,
		DataPageOffset:        offset,
	}
	if c.HasDictPage() {
		md.Encodings = []format.Encoding{format.PlainDictionary, format.RLE}
		md.DictionaryPageOffset = format.Int64Ptr(offset)
		md.DataPageOffset = offset + c.DictPageSize
	}
	outcome := "raw"
	if c.IsCompressed {
		md.Codec = codecTable[w.codec]
		outcome = "compressed"
	}
	w.metrics.ChunkCompression.WithLabelValues(outcome).Inc()

	if len(statsRaw) > 0 {
		st := &format.Statistics{}
		if err := format.Unmarshal(ctx, statsRaw, st); err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to decode chunk statistics")
		}
		md.Statistics = st
	}

	w.logger.Debug("column chunk written",
		zap.String("column", c.Desc.Name),
		zap.Int("row_group", c.RowGroup),
		zap.Int64("offset", offset),
		zap.Int64("size", c.CompressedSize),
		zap.Bool("dictionary", c.HasDictPage()),
		zap.Bool("compressed", c.IsCompressed))

	return &format.ColumnChunk{FileOffset: offset, MetaData: md}, nil
}

// ordinalPtr returns the row group ordinal, or nil once it no longer fits the
// optional i16 field.
func ordinalPtr(i int) *int16 {
	if i < 0 || i > math.MaxInt16 {
		return nil
	}
	v := int16(i)
	return &v
}
