package writer

import (
	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// typeEntry is the storage mapping of one arrow leaf type.
type typeEntry struct {
	physical  format.Type
	converted *format.ConvertedType
	minMax    bool  // values have a defined order
	mul, div  int64 // timestamp rescaling, 0 when unused
}

type typeKey struct {
	id   arrow.Type
	unit arrow.TimeUnit
}

func ct(c format.ConvertedType) *format.ConvertedType { return &c }

var typeTable = map[typeKey]typeEntry{
	{id: arrow.BOOL}:    {physical: format.Boolean, minMax: true},
	{id: arrow.INT8}:    {physical: format.Int32, converted: ct(format.Int8), minMax: true},
	{id: arrow.INT16}:   {physical: format.Int32, converted: ct(format.Int16), minMax: true},
	{id: arrow.INT32}:   {physical: format.Int32, minMax: true},
	{id: arrow.INT64}:   {physical: format.Int64, minMax: true},
	{id: arrow.UINT8}:   {physical: format.Int32, converted: ct(format.Uint8), minMax: true},
	{id: arrow.UINT16}:  {physical: format.Int32, converted: ct(format.Uint16), minMax: true},
	{id: arrow.UINT32}:  {physical: format.Int32, converted: ct(format.Uint32), minMax: true},
	{id: arrow.UINT64}:  {physical: format.Int64, converted: ct(format.Uint64), minMax: true},
	{id: arrow.FLOAT32}: {physical: format.Float, minMax: true},
	{id: arrow.FLOAT64}: {physical: format.Double, minMax: true},
	{id: arrow.DATE32}:  {physical: format.Int32, converted: ct(format.Date), minMax: true},
	{id: arrow.STRING}:  {physical: format.ByteArray, converted: ct(format.UTF8), minMax: true},
	{id: arrow.BINARY}:  {physical: format.ByteArray, minMax: true},

	{id: arrow.TIMESTAMP, unit: arrow.Second}:      {physical: format.Int64, converted: ct(format.TimestampMillis), minMax: true, mul: 1000},
	{id: arrow.TIMESTAMP, unit: arrow.Millisecond}: {physical: format.Int64, converted: ct(format.TimestampMillis), minMax: true},
	{id: arrow.TIMESTAMP, unit: arrow.Microsecond}: {physical: format.Int64, converted: ct(format.TimestampMicros), minMax: true},
	{id: arrow.TIMESTAMP, unit: arrow.Nanosecond}:  {physical: format.Int64, converted: ct(format.TimestampMicros), minMax: true, div: 1000},
}

var int96Entry = typeEntry{physical: format.Int96}

// lookupType maps a leaf arrow type. Decimals are resolved by decimalEntry.
func lookupType(dt arrow.DataType, int96 bool) (typeEntry, error) {
	key := typeKey{id: dt.ID()}
	if ts, ok := dt.(*arrow.TimestampType); ok {
		if int96 {
			return int96Entry, nil
		}
		key.unit = ts.Unit
	}
	e, ok := typeTable[key]
	if !ok {
		return typeEntry{}, pqerrors.Newf(pqerrors.ErrorTypeUnsupported, "unsupported column type %s", dt)
	}
	return e, nil
}

// decimalEntry picks the narrowest physical type that holds precision digits.
func decimalEntry(precision int32) (typeEntry, int32) {
	e := typeEntry{converted: ct(format.Decimal), minMax: true}
	switch {
	case precision <= 9:
		e.physical = format.Int32
		return e, 4
	case precision <= 18:
		e.physical = format.Int64
		return e, 8
	default:
		e.physical = format.FixedLenByteArray
		return e, 16
	}
}

// newValues wraps the leaf array of a column for the kernels.
func newValues(arr arrow.Array, e typeEntry, width int32) (accel.Values, error) {
	switch a := arr.(type) {
	case *array.Boolean:
		return accel.BoolValues{Arr: a}, nil
	case *array.Int8:
		return accel.Int32Values[int8]{Data: a.Int8Values()}, nil
	case *array.Int16:
		return accel.Int32Values[int16]{Data: a.Int16Values()}, nil
	case *array.Int32:
		return accel.Int32Values[int32]{Data: a.Int32Values()}, nil
	case *array.Uint8:
		return accel.Int32Values[uint8]{Data: a.Uint8Values()}, nil
	case *array.Uint16:
		return accel.Int32Values[uint16]{Data: a.Uint16Values()}, nil
	case *array.Uint32:
		return accel.Int32Values[uint32]{Data: a.Uint32Values()}, nil
	case *array.Date32:
		return accel.Int32Values[arrow.Date32]{Data: a.Date32Values()}, nil
	case *array.Int64:
		return accel.Int64Values[int64]{Data: a.Int64Values()}, nil
	case *array.Uint64:
		return accel.Int64Values[uint64]{Data: a.Uint64Values()}, nil
	case *array.Timestamp:
		if e.physical == format.Int96 {
			return accel.Int96Values{Data: a.TimestampValues(), Unit: a.DataType().(*arrow.TimestampType).Unit}, nil
		}
		return accel.Int64Values[arrow.Timestamp]{Data: a.TimestampValues(), Mul: e.mul, Div: e.div}, nil
	case *array.Float32:
		return accel.Float32Values{Data: a.Float32Values()}, nil
	case *array.Float64:
		return accel.Float64Values{Data: a.Float64Values()}, nil
	case *array.String:
		return accel.NewByteArrayValues(a.ValueOffsets(), a.ValueBytes()), nil
	case *array.Binary:
		return accel.NewByteArrayValues(a.ValueOffsets(), a.ValueBytes()), nil
	case *array.Decimal128:
		return accel.DecimalValues{Data: a.Values(), Width: int(width)}, nil
	}
	return nil, pqerrors.Newf(pqerrors.ErrorTypeUnsupported, "unsupported column array %T", arr)
}

var codecTable = map[compression.Algorithm]format.CompressionCodec{
	compression.None:   format.Uncompressed,
	compression.Snappy: format.Snappy,
	compression.Gzip:   format.Gzip,
	compression.Brotli: format.Brotli,
	compression.Zstd:   format.Zstd,
	compression.LZ4Raw: format.LZ4Raw,
}
