package accel

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int32Column(t *testing.T, vals []int32, valid []bool) *ColumnDesc {
	t.Helper()
	b := array.NewInt32Builder(memory.NewGoAllocator())
	defer b.Release()
	b.AppendValues(vals, valid)
	arr := b.NewInt32Array()
	t.Cleanup(arr.Release)

	nullable := valid != nil
	lv, info, err := BuildFlatLevels(arr, nullable)
	require.NoError(t, err)
	return &ColumnDesc{
		Name:         "v",
		Path:         []string{"v"},
		PhysicalType: format.Int32,
		Nullable:     []bool{nullable},
		MaxDef:       info.MaxDef,
		NumRows:      int64(arr.Len()),
		DataCount:    info.DataCount,
		NullCount:    info.NullCount,
		MinMax:       true,
		Values:       Int32Values[int32]{Data: arr.Int32Values()},
		Levels:       lv,
	}
}

// layoutChunk lays out one chunk holding every fragment of desc in a single
// data page, the way the writer does for small row groups.
func layoutChunk(t *testing.T, h *Host, dev *Device, desc *ColumnDesc, frags []Fragment, codec compression.Algorithm, useDict bool) (*Batch, *Chunk) {
	t.Helper()
	ctx := context.Background()

	c := &Chunk{
		Desc:          desc,
		FragCount:     len(frags),
		NumRows:       desc.NumRows,
		NumEntries:    desc.Levels.NumEntries(),
		UseDictionary: useDict,
		Stats:         EmptyStatistics(),
	}
	require.NoError(t, h.BuildDictionaries(ctx, dev, []*Chunk{c}))

	data := &Page{
		FragCount:  len(frags),
		NumRows:    desc.NumRows,
		NumEntries: c.NumEntries,
		Stats:      EmptyStatistics(),
	}
	var maxValue, dataSize int64
	src := make([]*Statistics, len(frags))
	for i := range frags {
		maxValue = max(maxValue, frags[i].MaxValueSize)
		dataSize += frags[i].DataSize
		data.NonNulls += frags[i].NonNulls
		src[i] = &frags[i].Stats
	}
	require.NoError(t, h.MergeStatistics(ctx, []StatsGroup{
		{Desc: desc, Dst: &data.Stats, Src: src},
		{Desc: desc, Dst: &c.Stats, Src: src},
	}))

	var pages []*Page
	dictEntries := 0
	if c.HasDictPage() {
		dictEntries = len(c.Dict.Slots)
		pages = append(pages, &Page{Dictionary: true, BodyBound: c.Dict.PlainSize})
	}
	data.BodyBound = DataPageBound(desc, data.NumEntries, data.NonNulls, dataSize, dictEntries)
	pages = append(pages, data)

	c.HeaderBound = HeaderBound(maxValue, true)
	c.StatsBound = StatsBound(maxValue)
	c.NumPages = len(pages)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: codec})
	require.NoError(t, err)

	var size int64
	for _, p := range pages {
		size += 2*c.HeaderBound + p.BodyBound + int64(comp.MaxCompressedLen(int(p.BodyBound)))
	}
	arena, err := dev.Alloc(size + c.StatsBound)
	require.NoError(t, err)
	t.Cleanup(arena.Release)

	for _, p := range pages {
		p.Slot, err = arena.Alloc(c.HeaderBound + p.BodyBound)
		require.NoError(t, err)
	}
	c.Uncompressed = Ref{Off: pages[0].Slot.Off, Len: pages[len(pages)-1].Slot.End() - pages[0].Slot.Off}
	if codec != compression.None {
		for _, p := range pages {
			p.CSlot, err = arena.Alloc(c.HeaderBound + int64(comp.MaxCompressedLen(int(p.BodyBound))))
			require.NoError(t, err)
		}
		c.Compressed = Ref{Off: pages[0].CSlot.Off, Len: pages[len(pages)-1].CSlot.End() - pages[0].CSlot.Off}
	}
	c.StatsSlot, err = arena.Alloc(c.StatsBound)
	require.NoError(t, err)

	return &Batch{
		Arena:           arena,
		Chunks:          []*Chunk{c},
		Pages:           pages,
		Codec:           codec,
		PageStatistics:  true,
		ChunkStatistics: true,
	}, c
}

func runPageKernels(t *testing.T, h *Host, b *Batch) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.EncodePages(ctx, b))
	require.NoError(t, h.CompressPages(ctx, b))
	require.NoError(t, h.DecideCompression(ctx, b))
	require.NoError(t, h.EncodePageHeaders(ctx, b))
	require.NoError(t, h.GatherPages(ctx, b))
	require.NoError(t, h.EncodeStatistics(ctx, b))
}

func readPage(t *testing.T, buf []byte, headerSize int64) (*format.PageHeader, []byte) {
	t.Helper()
	hdr := &format.PageHeader{}
	require.NoError(t, format.Unmarshal(context.Background(), buf[:headerSize], hdr))
	return hdr, buf[headerSize : headerSize+int64(hdr.CompressedPageSize)]
}

func le32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

func TestInitFragments(t *testing.T) {
	col := int32Column(t,
		[]int32{5, 0, 3, 3, 9, 0, 3, 5, 7},
		[]bool{true, false, true, true, true, false, true, true, true})

	h := NewHost(nil, compression.Default, 1)
	frags, err := h.InitFragments(context.Background(), []*ColumnDesc{col}, 4)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	require.Len(t, frags[0], 3)

	f0 := frags[0][0]
	assert.Equal(t, int64(0), f0.RowStart)
	assert.Equal(t, int64(4), f0.NumRows)
	assert.Equal(t, int64(3), f0.NonNulls)
	assert.Equal(t, int64(12), f0.DataSize)
	assert.Equal(t, int64(2), f0.Distinct)
	assert.Equal(t, int64(8), f0.DictDataSize)
	assert.Equal(t, int64(4), f0.MaxValueSize)
	assert.Equal(t, int64(1), f0.Stats.NullCount)
	assert.Equal(t, int32(2), f0.Stats.MinSlot)
	assert.Equal(t, int32(0), f0.Stats.MaxSlot)

	f1 := frags[0][1]
	assert.Equal(t, int64(3), f1.Distinct)
	assert.Equal(t, int32(4), f1.Stats.MaxSlot)

	f2 := frags[0][2]
	assert.Equal(t, int64(1), f2.NumRows)
	assert.Equal(t, 8, f2.EntryStart)
	assert.Equal(t, 1, f2.NumEntries)
}

func TestInitFragmentsCanceled(t *testing.T) {
	col := int32Column(t, []int32{1, 2, 3}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHost(nil, compression.Default, 1).InitFragments(ctx, []*ColumnDesc{col}, 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildDictionariesOverflow(t *testing.T) {
	vals := make([]int32, MaxDictionaryEntries+1)
	for i := range vals {
		vals[i] = int32(i)
	}
	col := int32Column(t, vals, nil)
	dev := NewDevice(1 << 30)
	h := NewHost(nil, compression.Default, 1)

	c := &Chunk{Desc: col, NumRows: col.NumRows, NumEntries: len(vals), UseDictionary: true}
	require.NoError(t, h.BuildDictionaries(context.Background(), dev, []*Chunk{c}))
	assert.False(t, c.UseDictionary)
	assert.Nil(t, c.Dict)
	assert.Equal(t, int64(0), dev.Used())
}

func TestBuildDictionariesReservesDeviceMemory(t *testing.T) {
	col := int32Column(t, []int32{4, 4, 2, 4, 2}, nil)
	dev := NewDevice(1 << 20)
	h := NewHost(nil, compression.Default, 1)

	c := &Chunk{Desc: col, NumRows: col.NumRows, NumEntries: 5, UseDictionary: true}
	require.NoError(t, h.BuildDictionaries(context.Background(), dev, []*Chunk{c}))
	require.True(t, c.HasDictPage())
	assert.Equal(t, []int32{0, 2}, c.Dict.Slots)
	assert.Equal(t, []int32{0, 0, 1, 0, 1}, c.Dict.Indices)
	assert.Equal(t, int64(8), c.Dict.PlainSize)
	assert.Equal(t, int64(4*(2+5)), dev.Used())

	ReleaseDictionary(dev, c)
	assert.Nil(t, c.Dict)
	assert.Equal(t, int64(0), dev.Used())
}

func TestHostDictionaryChunk(t *testing.T) {
	col := int32Column(t,
		[]int32{5, 0, 3, 3, 9, 0, 3, 5},
		[]bool{true, false, true, true, true, false, true, true})
	dev := NewDevice(1 << 24)
	h := NewHost(nil, compression.Default, 1)

	frags, err := h.InitFragments(context.Background(), []*ColumnDesc{col}, 4)
	require.NoError(t, err)
	b, c := layoutChunk(t, h, dev, col, frags[0], compression.None, true)
	runPageKernels(t, h, b)

	assert.False(t, c.IsCompressed)
	assert.Equal(t, c.CompressedSize, c.UncompressedSize)
	out, err := b.Arena.Bytes(c.Output)
	require.NoError(t, err)

	// dictionary page
	hdr, body := readPage(t, out, b.Pages[0].HeaderSize)
	assert.Equal(t, format.DictionaryPage, hdr.Type)
	require.NotNil(t, hdr.DictionaryPageHeader)
	assert.Equal(t, int32(3), hdr.DictionaryPageHeader.NumValues)
	assert.Equal(t, format.PlainDictionary, hdr.DictionaryPageHeader.Encoding)
	want := append(append(le32(5), le32(3)...), le32(9)...)
	assert.Equal(t, want, body)
	assert.Equal(t, b.Pages[0].HeaderSize+12, c.DictPageSize)

	// data page
	hdr, body = readPage(t, out[c.DictPageSize:], b.Pages[1].HeaderSize)
	assert.Equal(t, format.DataPage, hdr.Type)
	require.NotNil(t, hdr.DataPageHeader)
	assert.Equal(t, int32(8), hdr.DataPageHeader.NumValues)
	assert.Equal(t, format.PlainDictionary, hdr.DataPageHeader.Encoding)
	require.NotNil(t, hdr.DataPageHeader.Statistics)
	assert.Equal(t, int64(2), *hdr.DataPageHeader.Statistics.NullCount)
	assert.Equal(t, le32(3), hdr.DataPageHeader.Statistics.MinValue)
	assert.Equal(t, le32(9), hdr.DataPageHeader.Statistics.MaxValue)

	n := binary.LittleEndian.Uint32(body)
	def := decodeHybrid(t, body[4:4+n], 1, 8)
	assert.Equal(t, []int32{1, 0, 1, 1, 1, 0, 1, 1}, def)

	rest := body[4+n:]
	require.Equal(t, byte(2), rest[0])
	assert.Equal(t, []int32{0, 1, 1, 2, 1, 0}, decodeHybrid(t, rest[1:], 2, 6))

	assert.Equal(t, c.CompressedSize, c.DictPageSize+b.Pages[1].HeaderSize+int64(hdr.CompressedPageSize))

	// chunk statistics
	blob, err := b.Arena.Bytes(c.StatsBlob)
	require.NoError(t, err)
	st := &format.Statistics{}
	require.NoError(t, format.Unmarshal(context.Background(), blob, st))
	assert.Equal(t, int64(2), *st.NullCount)
	assert.Equal(t, le32(3), st.MinValue)
	assert.Equal(t, le32(9), st.MaxValue)
}

func TestHostCompressedChunk(t *testing.T) {
	col := int32Column(t, make([]int32, 4096), nil)
	dev := NewDevice(1 << 24)
	h := NewHost(nil, compression.Default, 2)

	frags, err := h.InitFragments(context.Background(), []*ColumnDesc{col}, 1024)
	require.NoError(t, err)
	b, c := layoutChunk(t, h, dev, col, frags[0], compression.Snappy, false)
	runPageKernels(t, h, b)

	p := b.Pages[0]
	assert.True(t, p.Profitable)
	assert.True(t, c.IsCompressed)
	assert.Equal(t, int64(4*4096), p.BodySize)
	assert.Less(t, c.CompressedSize, c.UncompressedSize)
	assert.GreaterOrEqual(t, c.Output.Off, c.Compressed.Off)
	assert.LessOrEqual(t, c.Output.End(), c.Compressed.End())

	out, err := b.Arena.Bytes(c.Output)
	require.NoError(t, err)
	hdr, body := readPage(t, out, p.HeaderSize)
	assert.Equal(t, int32(p.BodySize), hdr.UncompressedPageSize)
	assert.Equal(t, format.Plain, hdr.DataPageHeader.Encoding)

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: compression.Snappy})
	require.NoError(t, err)
	raw, err := comp.Decompress(make([]byte, 0, p.BodySize), body)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4*4096), raw)
}

func TestHostUnprofitableCompression(t *testing.T) {
	vals := []int32{17, -3, 1 << 20, 99}
	col := int32Column(t, vals, nil)
	dev := NewDevice(1 << 24)
	h := NewHost(nil, compression.Default, 1)

	frags, err := h.InitFragments(context.Background(), []*ColumnDesc{col}, 10)
	require.NoError(t, err)
	b, c := layoutChunk(t, h, dev, col, frags[0], compression.Snappy, false)
	runPageKernels(t, h, b)

	assert.False(t, b.Pages[0].Profitable)
	assert.False(t, c.IsCompressed)

	out, err := b.Arena.Bytes(c.Output)
	require.NoError(t, err)
	hdr, body := readPage(t, out, b.Pages[0].HeaderSize)
	assert.Equal(t, hdr.UncompressedPageSize, hdr.CompressedPageSize)

	var want []byte
	for _, v := range vals {
		want = append(want, le32(v)...)
	}
	assert.Equal(t, want, body)
}

func TestHostBooleanPage(t *testing.T) {
	bb := array.NewBooleanBuilder(memory.NewGoAllocator())
	defer bb.Release()
	bb.AppendValues([]bool{true, false, true, true, false, false, false, true, true}, nil)
	arr := bb.NewBooleanArray()
	defer arr.Release()

	lv, _, err := BuildFlatLevels(arr, false)
	require.NoError(t, err)
	col := &ColumnDesc{
		Name:         "flag",
		PhysicalType: format.Boolean,
		Nullable:     []bool{false},
		NumRows:      int64(arr.Len()),
		MinMax:       true,
		Values:       BoolValues{Arr: arr},
		Levels:       lv,
	}

	dev := NewDevice(1 << 20)
	h := NewHost(nil, compression.Default, 1)
	frags, err := h.InitFragments(context.Background(), []*ColumnDesc{col}, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(2), frags[0][0].DataSize)

	b, c := layoutChunk(t, h, dev, col, frags[0], compression.None, false)
	runPageKernels(t, h, b)

	out, err := b.Arena.Bytes(c.Output)
	require.NoError(t, err)
	_, body := readPage(t, out, b.Pages[0].HeaderSize)
	assert.Equal(t, []byte{0x8d, 0x01}, body)
}
