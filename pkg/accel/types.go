package accel

import (
	"context"

	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/format"
)

// StrDesc locates one string or binary value inside a character buffer.
type StrDesc struct {
	Off int64
	Len int64
}

// Levels holds the flattened definition/repetition structure of a column.
// Entry e belongs to the row r with RowStart[r] <= e < RowStart[r+1].
type Levels struct {
	Rep      []int16 // nil when the column is not repeated
	Def      []int16 // nil when no level is nullable
	Slot     []int32 // leaf value index of each entry, -1 when the entry has no value
	RowStart []int32 // len = rows+1
}

// NumEntries returns the number of level entries.
func (l *Levels) NumEntries() int { return len(l.Slot) }

// EntryRange returns the entries of rows [rowStart, rowEnd).
func (l *Levels) EntryRange(rowStart, rowEnd int) (int, int) {
	return int(l.RowStart[rowStart]), int(l.RowStart[rowEnd])
}

// ColumnDesc describes one leaf column as the kernels see it. Value storage
// is referenced, never copied.
type ColumnDesc struct {
	Name          string
	Path          []string
	PhysicalType  format.Type
	ConvertedType *format.ConvertedType
	TypeLength    int32
	Precision     int32
	Scale         int32

	Depth    int    // number of list levels
	Nullable []bool // per level, len = Depth+1
	MaxDef   int16
	MaxRep   int16

	NumRows   int64
	DataCount int64 // leaf values, may exceed NumRows for lists
	NullCount int64 // level entries without a value

	// MinMax is false for types whose values have no defined order (INT96).
	MinMax bool
	// IsList marks columns that came from list arrays.
	IsList bool

	Values Values
	Levels *Levels
}

// Statistics are min/max slots into a column's Values plus a null count.
type Statistics struct {
	NullCount int64
	NonNulls  int64
	MinSlot   int32 // -1 when no value has been seen
	MaxSlot   int32
}

// EmptyStatistics returns statistics that have not seen any value.
func EmptyStatistics() Statistics {
	return Statistics{MinSlot: -1, MaxSlot: -1}
}

// Fragment holds the kernel-computed figures of one fixed-size row slice
// of one column.
type Fragment struct {
	RowStart     int64
	NumRows      int64
	EntryStart   int
	NumEntries   int
	NonNulls     int64
	DataSize     int64 // plain encoded size of the non-null values
	Distinct     int64
	DictDataSize int64 // plain encoded size of the distinct values
	MaxValueSize int64 // largest single plain value
	Stats        Statistics
}

// Dictionary is the per-chunk value table of a dictionary encoded chunk.
type Dictionary struct {
	Slots     []int32 // one slot per dictionary entry, in index order
	Indices   []int32 // dictionary index of every non-null value of the chunk
	PlainSize int64   // plain encoded size of all entries
	Reserved  int64   // device bytes accounted to this dictionary
}

// Chunk is one column within one row group while it is being encoded.
type Chunk struct {
	RowGroup int
	Column   int
	Desc     *ColumnDesc

	FragStart  int
	FragCount  int
	RowStart   int64
	NumRows    int64
	EntryStart int
	NumEntries int

	UseDictionary bool
	Dict          *Dictionary

	FirstPage   int // index of the first page in the batch page list
	NumPages    int
	HeaderBound int64 // bound of every page header of this chunk
	StatsBound  int64

	Uncompressed Ref // page slots of raw bodies
	Compressed   Ref // page slots of compressed bodies, zero when codec is none
	StatsSlot    Ref

	// Filled by the kernels.
	IsCompressed     bool
	Output           Ref // gathered pages, inside Uncompressed or Compressed
	StatsBlob        Ref // thrift encoded chunk statistics, inside StatsSlot
	UncompressedSize int64
	CompressedSize   int64
	DictPageSize     int64 // bytes of the dictionary page in Output
	Stats            Statistics
}

// HasDictPage reports whether the first page of the chunk is a dictionary page.
func (c *Chunk) HasDictPage() bool { return c.UseDictionary && c.Dict != nil }

// Page is one page of a chunk.
type Page struct {
	Chunk      int // index into the batch chunk list
	Dictionary bool

	FragStart  int
	FragCount  int
	RowStart   int64
	NumRows    int64
	EntryStart int
	NumEntries int
	NonNulls   int64
	BodyBound  int64

	Slot  Ref // header bound + body bound in the chunk's Uncompressed region
	CSlot Ref // header bound + codec bound in the chunk's Compressed region

	// Filled by the kernels.
	BodySize       int64
	CompressedSize int64
	CompressErr    error
	Profitable     bool
	HeaderSize     int64
	Stats          Statistics
}

// StatsGroup asks MergeStatistics to fold Src into Dst.
type StatsGroup struct {
	Desc *ColumnDesc
	Dst  *Statistics
	Src  []*Statistics
}

// Batch is the unit of work of the page kernels: a run of row groups whose
// chunks share one arena.
type Batch struct {
	Arena  *Arena
	Chunks []*Chunk
	Pages  []*Page
	Codec  compression.Algorithm
	// PageStatistics writes statistics into every data page header.
	PageStatistics bool
	// ChunkStatistics encodes the chunk statistics blob.
	ChunkStatistics bool
}

// Kernels is the accelerator contract. Every method runs on the queue's
// worker and may only touch memory the host handed over before submission.
type Kernels interface {
	// InitFragments computes per-fragment figures for every column,
	// indexed [column][fragment].
	InitFragments(ctx context.Context, cols []*ColumnDesc, fragmentRows int) ([][]Fragment, error)
	// BuildDictionaries builds dictionaries for chunks with UseDictionary set,
	// downgrading chunks whose dictionary overflows MaxDictionaryEntries.
	BuildDictionaries(ctx context.Context, dev *Device, chunks []*Chunk) error
	// EncodePages writes every page body into its slot.
	EncodePages(ctx context.Context, b *Batch) error
	// CompressPages compresses every page body into its compressed slot.
	CompressPages(ctx context.Context, b *Batch) error
	// DecideCompression marks profitable pages and compressed chunks.
	DecideCompression(ctx context.Context, b *Batch) error
	// MergeStatistics folds statistics groups in order.
	MergeStatistics(ctx context.Context, groups []StatsGroup) error
	// EncodePageHeaders serializes every page header into its slot.
	EncodePageHeaders(ctx context.Context, b *Batch) error
	// GatherPages lays out every chunk's pages contiguously.
	GatherPages(ctx context.Context, b *Batch) error
	// EncodeStatistics serializes every chunk's statistics.
	EncodeStatistics(ctx context.Context, b *Batch) error
}

// MaxDictionaryEntries bounds the size of one chunk dictionary.
const MaxDictionaryEntries = 65536
