// Package format defines the on-disk structures of the columnar file format
// and their thrift compact protocol encoding.
//
// A file is laid out as
//
//	PAR1 | row group data ... | FileMetaData | u32 LE footer length | PAR1
//
// The structures in this package mirror the thrift IDL of the format. Only
// the fields the writer produces or a merge needs to carry are modelled;
// unknown fields are skipped when reading.
package format

import "fmt"

// Magic is the 4-byte file header and trailer.
var Magic = [4]byte{'P', 'A', 'R', '1'}

// Type is the physical storage type of a leaf column.
type Type int32

const (
	Boolean           Type = 0
	Int32             Type = 1
	Int64             Type = 2
	Int96             Type = 3
	Float             Type = 4
	Double            Type = 5
	ByteArray         Type = 6
	FixedLenByteArray Type = 7
)

var typeNames = map[Type]string{
	Boolean:           "BOOLEAN",
	Int32:             "INT32",
	Int64:             "INT64",
	Int96:             "INT96",
	Float:             "FLOAT",
	Double:            "DOUBLE",
	ByteArray:         "BYTE_ARRAY",
	FixedLenByteArray: "FIXED_LEN_BYTE_ARRAY",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int32(t))
}

// ConvertedType is the legacy logical type annotation.
type ConvertedType int32

const (
	UTF8            ConvertedType = 0
	Map             ConvertedType = 1
	MapKeyValue     ConvertedType = 2
	List            ConvertedType = 3
	Enum            ConvertedType = 4
	Decimal         ConvertedType = 5
	Date            ConvertedType = 6
	TimeMillis      ConvertedType = 7
	TimeMicros      ConvertedType = 8
	TimestampMillis ConvertedType = 9
	TimestampMicros ConvertedType = 10
	Uint8           ConvertedType = 11
	Uint16          ConvertedType = 12
	Uint32          ConvertedType = 13
	Uint64          ConvertedType = 14
	Int8            ConvertedType = 15
	Int16           ConvertedType = 16
	Int32Converted  ConvertedType = 17
	Int64Converted  ConvertedType = 18
	JSON            ConvertedType = 19
	BSON            ConvertedType = 20
	Interval        ConvertedType = 21
)

var convertedTypeNames = map[ConvertedType]string{
	UTF8: "UTF8", Map: "MAP", MapKeyValue: "MAP_KEY_VALUE", List: "LIST",
	Enum: "ENUM", Decimal: "DECIMAL", Date: "DATE", TimeMillis: "TIME_MILLIS",
	TimeMicros: "TIME_MICROS", TimestampMillis: "TIMESTAMP_MILLIS",
	TimestampMicros: "TIMESTAMP_MICROS", Uint8: "UINT_8", Uint16: "UINT_16",
	Uint32: "UINT_32", Uint64: "UINT_64", Int8: "INT_8", Int16: "INT_16",
	Int32Converted: "INT_32", Int64Converted: "INT_64", JSON: "JSON",
	BSON: "BSON", Interval: "INTERVAL",
}

func (c ConvertedType) String() string {
	if s, ok := convertedTypeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ConvertedType(%d)", int32(c))
}

// FieldRepetitionType is the repetition of a schema node.
type FieldRepetitionType int32

const (
	Required FieldRepetitionType = 0
	Optional FieldRepetitionType = 1
	Repeated FieldRepetitionType = 2
)

func (r FieldRepetitionType) String() string {
	switch r {
	case Required:
		return "REQUIRED"
	case Optional:
		return "OPTIONAL"
	case Repeated:
		return "REPEATED"
	default:
		return fmt.Sprintf("FieldRepetitionType(%d)", int32(r))
	}
}

// Encoding identifies how values or levels are encoded in a page.
type Encoding int32

const (
	Plain           Encoding = 0
	PlainDictionary Encoding = 2
	RLE             Encoding = 3
	BitPacked       Encoding = 4
	RLEDictionary   Encoding = 8
)

func (e Encoding) String() string {
	switch e {
	case Plain:
		return "PLAIN"
	case PlainDictionary:
		return "PLAIN_DICTIONARY"
	case RLE:
		return "RLE"
	case BitPacked:
		return "BIT_PACKED"
	case RLEDictionary:
		return "RLE_DICTIONARY"
	default:
		return fmt.Sprintf("Encoding(%d)", int32(e))
	}
}

// CompressionCodec is the page compression codec of a column chunk.
type CompressionCodec int32

const (
	Uncompressed CompressionCodec = 0
	Snappy       CompressionCodec = 1
	Gzip         CompressionCodec = 2
	Brotli       CompressionCodec = 4
	Zstd         CompressionCodec = 6
	LZ4Raw       CompressionCodec = 7
)

func (c CompressionCodec) String() string {
	switch c {
	case Uncompressed:
		return "UNCOMPRESSED"
	case Snappy:
		return "SNAPPY"
	case Gzip:
		return "GZIP"
	case Brotli:
		return "BROTLI"
	case Zstd:
		return "ZSTD"
	case LZ4Raw:
		return "LZ4_RAW"
	default:
		return fmt.Sprintf("CompressionCodec(%d)", int32(c))
	}
}

// PageType identifies the kind of a page.
type PageType int32

const (
	DataPage       PageType = 0
	IndexPage      PageType = 1
	DictionaryPage PageType = 2
	DataPageV2     PageType = 3
)

func (p PageType) String() string {
	switch p {
	case DataPage:
		return "DATA_PAGE"
	case IndexPage:
		return "INDEX_PAGE"
	case DictionaryPage:
		return "DICTIONARY_PAGE"
	case DataPageV2:
		return "DATA_PAGE_V2"
	default:
		return fmt.Sprintf("PageType(%d)", int32(p))
	}
}

// Int32Ptr returns a pointer to v, for optional fields.
func Int32Ptr(v int32) *int32 { return &v }

// Int64Ptr returns a pointer to v, for optional fields.
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr returns a pointer to v, for optional fields.
func StringPtr(v string) *string { return &v }

// MarshalText renders enums by name in JSON output.
func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// MarshalText renders enums by name in JSON output.
func (c ConvertedType) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// MarshalText renders enums by name in JSON output.
func (r FieldRepetitionType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// MarshalText renders enums by name in JSON output.
func (e Encoding) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// MarshalText renders enums by name in JSON output.
func (c CompressionCodec) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
