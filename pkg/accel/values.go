package accel

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
)

// Values gives the kernels typed access to the leaf values of a column by
// slot. Implementations reference the caller's arrow buffers.
type Values interface {
	Len() int
	// PlainSize is the PLAIN encoded size of value i.
	PlainSize(i int) int
	// AppendPlain appends the PLAIN encoding of value i.
	AppendPlain(dst []byte, i int) []byte
	// Less orders values by the column's type defined sort order.
	Less(i, j int) bool
	// AppendStat appends value i as written into min/max statistics.
	AppendStat(dst []byte, i int) []byte
}

// unordered is implemented by values that can hold elements excluded from
// min/max statistics (NaN).
type unordered interface {
	Unordered(i int) bool
}

// Int32Values stores any narrow integer as INT32.
type Int32Values[T ~int8 | ~int16 | ~int32 | ~uint8 | ~uint16 | ~uint32] struct {
	Data []T
}

func (v Int32Values[T]) Len() int { return len(v.Data) }
func (v Int32Values[T]) PlainSize(int) int { return 4 }
func (v Int32Values[T]) Less(i, j int) bool { return v.Data[i] < v.Data[j] }
func (v Int32Values[T]) value(i int) uint32 { return uint32(int32(v.Data[i])) }
func (v Int32Values[T]) AppendPlain(dst []byte, i int) []byte {
	return binary.LittleEndian.AppendUint32(dst, v.value(i))
}
func (v Int32Values[T]) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }

// Int64Values stores 64-bit integers, optionally rescaled (timestamps).
type Int64Values[T ~int64 | ~uint64] struct {
	Data []T
	Mul  int64 // applied when > 1
	Div  int64 // applied when > 1
}

func (v Int64Values[T]) Len() int { return len(v.Data) }
func (v Int64Values[T]) PlainSize(int) int { return 8 }
func (v Int64Values[T]) Less(i, j int) bool { return v.Data[i] < v.Data[j] }

func (v Int64Values[T]) value(i int) uint64 {
	if v.Mul <= 1 && v.Div <= 1 {
		return uint64(v.Data[i])
	}
	x := int64(v.Data[i])
	if v.Mul > 1 {
		x *= v.Mul
	}
	if v.Div > 1 {
		x /= v.Div
	}
	return uint64(x)
}

func (v Int64Values[T]) AppendPlain(dst []byte, i int) []byte {
	return binary.LittleEndian.AppendUint64(dst, v.value(i))
}
func (v Int64Values[T]) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }

// Float32Values stores FLOAT.
type Float32Values struct{ Data []float32 }

func (v Float32Values) Len() int { return len(v.Data) }
func (v Float32Values) PlainSize(int) int { return 4 }
func (v Float32Values) Less(i, j int) bool { return v.Data[i] < v.Data[j] }
func (v Float32Values) Unordered(i int) bool { return math.IsNaN(float64(v.Data[i])) }
func (v Float32Values) AppendPlain(dst []byte, i int) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Data[i]))
}
func (v Float32Values) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }

// Float64Values stores DOUBLE.
type Float64Values struct{ Data []float64 }

func (v Float64Values) Len() int { return len(v.Data) }
func (v Float64Values) PlainSize(int) int { return 8 }
func (v Float64Values) Less(i, j int) bool { return v.Data[i] < v.Data[j] }
func (v Float64Values) Unordered(i int) bool { return math.IsNaN(v.Data[i]) }
func (v Float64Values) AppendPlain(dst []byte, i int) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.Data[i]))
}
func (v Float64Values) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }

// BoolValues stores BOOLEAN. PLAIN booleans are bit packed, so the page
// encoder packs them itself and AppendPlain only serves dictionary keys.
type BoolValues struct{ Arr *array.Boolean }

func (v BoolValues) Len() int { return v.Arr.Len() }
func (v BoolValues) PlainSize(int) int { return 1 }
func (v BoolValues) Bool(i int) bool { return v.Arr.Value(i) }
func (v BoolValues) Less(i, j int) bool { return !v.Arr.Value(i) && v.Arr.Value(j) }
func (v BoolValues) AppendPlain(dst []byte, i int) []byte {
	if v.Arr.Value(i) {
		return append(dst, 1)
	}
	return append(dst, 0)
}
func (v BoolValues) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }

// ByteArrayValues stores BYTE_ARRAY values as descriptors over one buffer.
type ByteArrayValues struct {
	Data []byte
	Desc []StrDesc
}

func (v ByteArrayValues) bytes(i int) []byte {
	d := v.Desc[i]
	return v.Data[d.Off : d.Off+d.Len]
}

func (v ByteArrayValues) Len() int { return len(v.Desc) }
func (v ByteArrayValues) PlainSize(i int) int { return 4 + int(v.Desc[i].Len) }
func (v ByteArrayValues) Less(i, j int) bool { return bytes.Compare(v.bytes(i), v.bytes(j)) < 0 }
func (v ByteArrayValues) AppendPlain(dst []byte, i int) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(v.Desc[i].Len))
	return append(dst, v.bytes(i)...)
}
func (v ByteArrayValues) AppendStat(dst []byte, i int) []byte { return append(dst, v.bytes(i)...) }

// NewByteArrayValues builds descriptors over a string or binary array.
// offsets must be the array's offset-adjusted value offsets and data its
// value bytes, which start at offsets[0].
func NewByteArrayValues(offsets []int32, data []byte) ByteArrayValues {
	n := len(offsets) - 1
	if n < 0 {
		n = 0
	}
	desc := make([]StrDesc, n)
	for i := 0; i < n; i++ {
		desc[i] = StrDesc{Off: int64(offsets[i] - offsets[0]), Len: int64(offsets[i+1] - offsets[i])}
	}
	return ByteArrayValues{Data: data, Desc: desc}
}

// DecimalValues stores DECIMAL values in the physical type chosen by
// precision: INT32, INT64 or 16-byte big-endian FIXED_LEN_BYTE_ARRAY.
type DecimalValues struct {
	Data  []decimal128.Num
	Width int // 4, 8 or 16
}

func (v DecimalValues) Len() int { return len(v.Data) }
func (v DecimalValues) PlainSize(int) int { return v.Width }

func (v DecimalValues) Less(i, j int) bool {
	a, b := v.Data[i], v.Data[j]
	if a.HighBits() != b.HighBits() {
		return a.HighBits() < b.HighBits()
	}
	return a.LowBits() < b.LowBits()
}

func (v DecimalValues) AppendPlain(dst []byte, i int) []byte {
	n := v.Data[i]
	switch v.Width {
	case 4:
		return binary.LittleEndian.AppendUint32(dst, uint32(n.LowBits()))
	case 8:
		return binary.LittleEndian.AppendUint64(dst, n.LowBits())
	default:
		dst = binary.BigEndian.AppendUint64(dst, uint64(n.HighBits()))
		return binary.BigEndian.AppendUint64(dst, n.LowBits())
	}
}
func (v DecimalValues) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }

const (
	julianUnixEpoch = 2440588
	nanosPerDay     = int64(86400) * 1e9
)

// Int96Values stores timestamps in the legacy INT96 layout: nanoseconds of
// the day followed by the julian day number.
type Int96Values struct {
	Data []arrow.Timestamp
	Unit arrow.TimeUnit
}

func (v Int96Values) nanos(i int) int64 {
	x := int64(v.Data[i])
	switch v.Unit {
	case arrow.Second:
		return x * 1e9
	case arrow.Millisecond:
		return x * 1e6
	case arrow.Microsecond:
		return x * 1e3
	default:
		return x
	}
}

func (v Int96Values) Len() int { return len(v.Data) }
func (v Int96Values) PlainSize(int) int { return 12 }
func (v Int96Values) Less(i, j int) bool { return v.nanos(i) < v.nanos(j) }

func (v Int96Values) AppendPlain(dst []byte, i int) []byte {
	ns := v.nanos(i)
	days := ns / nanosPerDay
	rem := ns % nanosPerDay
	if rem < 0 {
		rem += nanosPerDay
		days--
	}
	dst = binary.LittleEndian.AppendUint64(dst, uint64(rem))
	return binary.LittleEndian.AppendUint32(dst, uint32(days+julianUnixEpoch))
}
func (v Int96Values) AppendStat(dst []byte, i int) []byte { return v.AppendPlain(dst, i) }
