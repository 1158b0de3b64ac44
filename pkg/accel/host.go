package accel

import (
	"context"
	"sync"

	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"go.uber.org/zap"
)

// Host runs every kernel on the host CPU. Page compression fans out over a
// worker pool; everything else runs on the calling goroutine.
type Host struct {
	logger      *zap.Logger
	concurrency int

	mu          sync.Mutex
	compressors map[compression.Algorithm]*compression.BatchCompressor
	level       compression.Level
}

// NewHost creates host kernels. concurrency bounds the page compression
// workers; zero uses one per CPU.
func NewHost(logger *zap.Logger, level compression.Level, concurrency int) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		logger:      logger,
		concurrency: concurrency,
		level:       level,
		compressors: make(map[compression.Algorithm]*compression.BatchCompressor),
	}
}

var _ Kernels = (*Host)(nil)

// InitFragments implements Kernels.
func (h *Host) InitFragments(ctx context.Context, cols []*ColumnDesc, fragmentRows int) ([][]Fragment, error) {
	out := make([][]Fragment, len(cols))
	seen := make(map[string]struct{})
	var key []byte

	for c, col := range cols {
		rows := int(col.NumRows)
		frags := make([]Fragment, (rows+fragmentRows-1)/fragmentRows)
		_, isBool := col.Values.(interface{ Bool(int) bool })

		for f := range frags {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r0 := f * fragmentRows
			r1 := min(r0+fragmentRows, rows)
			e0, e1 := col.Levels.EntryRange(r0, r1)

			fr := Fragment{
				RowStart:   int64(r0),
				NumRows:    int64(r1 - r0),
				EntryStart: e0,
				NumEntries: e1 - e0,
				Stats:      EmptyStatistics(),
			}
			clear(seen)
			for e := e0; e < e1; e++ {
				slot := col.Levels.Slot[e]
				fr.Stats.Observe(col.Values, slot)
				if slot < 0 {
					continue
				}
				size := int64(col.Values.PlainSize(int(slot)))
				fr.DataSize += size
				fr.MaxValueSize = max(fr.MaxValueSize, size)

				key = col.Values.AppendPlain(key[:0], int(slot))
				if _, ok := seen[string(key)]; !ok {
					seen[string(key)] = struct{}{}
					fr.Distinct++
					fr.DictDataSize += size
				}
			}
			fr.NonNulls = fr.Stats.NonNulls
			if isBool {
				fr.DataSize = (fr.NonNulls + 7) / 8
			}
			frags[f] = fr
		}
		out[c] = frags
	}
	return out, nil
}

// BuildDictionaries implements Kernels.
func (h *Host) BuildDictionaries(ctx context.Context, dev *Device, chunks []*Chunk) error {
	index := make(map[string]int32)
	var key []byte

	for _, c := range chunks {
		if !c.UseDictionary {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		clear(index)
		vals := c.Desc.Values
		lv := c.Desc.Levels
		dict := &Dictionary{}
		overflow := false

		for e := c.EntryStart; e < c.EntryStart+c.NumEntries; e++ {
			slot := lv.Slot[e]
			if slot < 0 {
				continue
			}
			key = vals.AppendPlain(key[:0], int(slot))
			idx, ok := index[string(key)]
			if !ok {
				if len(dict.Slots) == MaxDictionaryEntries {
					overflow = true
					break
				}
				idx = int32(len(dict.Slots))
				index[string(key)] = idx
				dict.Slots = append(dict.Slots, slot)
				dict.PlainSize += int64(vals.PlainSize(int(slot)))
			}
			dict.Indices = append(dict.Indices, idx)
		}

		if overflow {
			h.logger.Debug("dictionary overflow, falling back to plain",
				zap.String("column", c.Desc.Name),
				zap.Int("row_group", c.RowGroup))
			c.UseDictionary = false
			c.Dict = nil
			continue
		}

		dict.Reserved = 4 * int64(len(dict.Slots)+len(dict.Indices))
		if err := dev.Reserve(dict.Reserved); err != nil {
			return err
		}
		c.Dict = dict
	}
	return nil
}

// ReleaseDictionary returns a chunk's dictionary memory to dev.
func ReleaseDictionary(dev *Device, c *Chunk) {
	if c.Dict != nil {
		dev.Free(c.Dict.Reserved)
		c.Dict = nil
	}
}

// EncodePages implements Kernels.
func (h *Host) EncodePages(ctx context.Context, b *Batch) error {
	var nonNullCursor int64
	prevChunk := -1

	for _, p := range b.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := b.Chunks[p.Chunk]
		if p.Chunk != prevChunk {
			prevChunk = p.Chunk
			nonNullCursor = 0
		}

		slot, err := b.Arena.Bytes(p.Slot)
		if err != nil {
			return err
		}
		body := slot[c.HeaderBound:]

		var out []byte
		if p.Dictionary {
			out = encodeDictionaryPage(body[:0], c)
		} else {
			out, err = encodeDataPage(body[:0], c, p, nonNullCursor)
			if err != nil {
				return err
			}
			nonNullCursor += p.NonNulls
		}
		if len(out) > len(body) {
			return pqerrors.Newf(pqerrors.ErrorTypeInternal, "page body of %d bytes exceeds bound %d", len(out), len(body)).
				WithDetail("column", c.Desc.Name)
		}
		p.BodySize = int64(len(out))
	}
	return nil
}

func encodeDictionaryPage(dst []byte, c *Chunk) []byte {
	for _, slot := range c.Dict.Slots {
		dst = c.Desc.Values.AppendPlain(dst, int(slot))
	}
	return dst
}

func encodeDataPage(dst []byte, c *Chunk, p *Page, nonNullStart int64) ([]byte, error) {
	desc := c.Desc
	lv := desc.Levels
	e0, e1 := p.EntryStart, p.EntryStart+p.NumEntries

	var err error
	if dst, err = AppendLevels(dst, lv.Rep[e0:e1], desc.MaxRep); err != nil {
		return nil, err
	}
	if dst, err = AppendLevels(dst, lv.Def[e0:e1], desc.MaxDef); err != nil {
		return nil, err
	}

	if c.HasDictPage() {
		width := DictIndexBitWidth(len(c.Dict.Slots))
		dst = append(dst, byte(width))
		return AppendHybrid(dst, c.Dict.Indices[nonNullStart:nonNullStart+p.NonNulls], width)
	}

	if bv, ok := desc.Values.(interface{ Bool(int) bool }); ok {
		var cur byte
		n := 0
		for e := e0; e < e1; e++ {
			slot := lv.Slot[e]
			if slot < 0 {
				continue
			}
			if bv.Bool(int(slot)) {
				cur |= 1 << n
			}
			if n++; n == 8 {
				dst = append(dst, cur)
				cur, n = 0, 0
			}
		}
		if n > 0 {
			dst = append(dst, cur)
		}
		return dst, nil
	}

	for e := e0; e < e1; e++ {
		if slot := lv.Slot[e]; slot >= 0 {
			dst = desc.Values.AppendPlain(dst, int(slot))
		}
	}
	return dst, nil
}

func (h *Host) batchCompressor(alg compression.Algorithm) (*compression.BatchCompressor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if bc, ok := h.compressors[alg]; ok {
		return bc, nil
	}
	bc, err := compression.NewBatchCompressor(&compression.Config{
		Algorithm:   alg,
		Level:       h.level,
		Concurrency: h.concurrency,
	}, h.logger)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeConfig, "failed to create page compressor")
	}
	h.compressors[alg] = bc
	return bc, nil
}

// CompressPages implements Kernels.
func (h *Host) CompressPages(ctx context.Context, b *Batch) error {
	if b.Codec == compression.None {
		return nil
	}
	bc, err := h.batchCompressor(b.Codec)
	if err != nil {
		return err
	}

	blocks := make([]compression.Block, len(b.Pages))
	for i, p := range b.Pages {
		c := b.Chunks[p.Chunk]
		raw, err := b.Arena.Bytes(p.Slot)
		if err != nil {
			return err
		}
		dst, err := b.Arena.Bytes(p.CSlot)
		if err != nil {
			return err
		}
		blocks[i] = compression.Block{
			Src: raw[c.HeaderBound : c.HeaderBound+p.BodySize],
			Dst: dst[c.HeaderBound:],
		}
	}

	results, err := bc.CompressBlocks(ctx, blocks)
	if err != nil {
		return err
	}
	for i, r := range results {
		b.Pages[i].CompressedSize = int64(r.Len)
		b.Pages[i].CompressErr = r.Err
	}
	h.logger.Debug("pages compressed", zap.Int("pages", len(blocks)), zap.Any("compressor", bc.GetStats()))
	return nil
}

// DecideCompression implements Kernels. A chunk is stored compressed when at
// least one of its pages shrank and every page has a compressed form.
func (h *Host) DecideCompression(ctx context.Context, b *Batch) error {
	for _, c := range b.Chunks {
		c.IsCompressed = false
	}
	if b.Codec == compression.None {
		return nil
	}

	complete := make([]bool, len(b.Chunks))
	for i := range complete {
		complete[i] = true
	}
	for _, p := range b.Pages {
		if p.CompressErr != nil {
			complete[p.Chunk] = false
			h.logger.Debug("page compression failed", zap.Error(p.CompressErr))
			continue
		}
		p.Profitable = p.CompressedSize < p.BodySize
		if p.Profitable {
			b.Chunks[p.Chunk].IsCompressed = true
		}
	}
	for i, c := range b.Chunks {
		c.IsCompressed = c.IsCompressed && complete[i]
	}
	return nil
}

// MergeStatistics implements Kernels.
func (h *Host) MergeStatistics(ctx context.Context, groups []StatsGroup) error {
	for _, g := range groups {
		for _, src := range g.Src {
			g.Dst.Merge(g.Desc.Values, src)
		}
	}
	return nil
}

func storedSize(c *Chunk, p *Page) int64 {
	if c.IsCompressed {
		return p.CompressedSize
	}
	return p.BodySize
}

// EncodePageHeaders implements Kernels.
func (h *Host) EncodePageHeaders(ctx context.Context, b *Batch) error {
	for _, p := range b.Pages {
		c := b.Chunks[p.Chunk]
		hdr := &format.PageHeader{
			UncompressedPageSize: int32(p.BodySize),
			CompressedPageSize:   int32(storedSize(c, p)),
		}
		if p.Dictionary {
			hdr.Type = format.DictionaryPage
			hdr.DictionaryPageHeader = &format.DictionaryPageHeader{
				NumValues: int32(len(c.Dict.Slots)),
				Encoding:  format.PlainDictionary,
			}
		} else {
			enc := format.Plain
			if c.HasDictPage() {
				enc = format.PlainDictionary
			}
			hdr.Type = format.DataPage
			hdr.DataPageHeader = &format.DataPageHeader{
				NumValues:               int32(p.NumEntries),
				Encoding:                enc,
				DefinitionLevelEncoding: format.RLE,
				RepetitionLevelEncoding: format.RLE,
			}
			if b.PageStatistics {
				hdr.DataPageHeader.Statistics = p.Stats.ToFormat(c.Desc)
			}
		}

		raw, err := format.Marshal(ctx, hdr)
		if err != nil {
			return pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to encode page header")
		}
		if int64(len(raw)) > c.HeaderBound {
			return pqerrors.Newf(pqerrors.ErrorTypeInternal, "page header of %d bytes exceeds bound %d", len(raw), c.HeaderBound)
		}
		slot, err := b.Arena.Bytes(p.Slot)
		if err != nil {
			return err
		}
		copy(slot, raw)
		p.HeaderSize = int64(len(raw))
	}
	return nil
}

// GatherPages implements Kernels. Pages are compacted towards the start of
// the chunk's output region, which is the compressed region when a codec is
// configured and the uncompressed one otherwise; copies never overtake
// unread data.
func (h *Host) GatherPages(ctx context.Context, b *Batch) error {
	for ci, c := range b.Chunks {
		region := c.Uncompressed
		if b.Codec != compression.None {
			region = c.Compressed
		}
		dst, err := b.Arena.Bytes(region)
		if err != nil {
			return err
		}

		var pos, uncompressed int64
		c.DictPageSize = 0
		for _, p := range b.Pages[c.FirstPage : c.FirstPage+c.NumPages] {
			if p.Chunk != ci {
				return pqerrors.New(pqerrors.ErrorTypeInternal, "page list out of chunk order")
			}
			slot, err := b.Arena.Bytes(p.Slot)
			if err != nil {
				return err
			}
			body := slot[c.HeaderBound : c.HeaderBound+p.BodySize]
			if c.IsCompressed {
				cslot, err := b.Arena.Bytes(p.CSlot)
				if err != nil {
					return err
				}
				body = cslot[c.HeaderBound : c.HeaderBound+p.CompressedSize]
			}

			start := pos
			pos += int64(copy(dst[pos:], slot[:p.HeaderSize]))
			pos += int64(copy(dst[pos:], body))
			if p.Dictionary {
				c.DictPageSize = pos - start
			}
			uncompressed += p.HeaderSize + p.BodySize
		}

		c.Output = region.Sub(0, pos)
		c.CompressedSize = pos
		c.UncompressedSize = uncompressed
	}
	return nil
}

// EncodeStatistics implements Kernels.
func (h *Host) EncodeStatistics(ctx context.Context, b *Batch) error {
	if !b.ChunkStatistics {
		return nil
	}
	for _, c := range b.Chunks {
		raw, err := format.Marshal(ctx, c.Stats.ToFormat(c.Desc))
		if err != nil {
			return pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to encode chunk statistics")
		}
		if int64(len(raw)) > c.StatsSlot.Len {
			return pqerrors.Newf(pqerrors.ErrorTypeInternal, "statistics of %d bytes exceed bound %d", len(raw), c.StatsSlot.Len)
		}
		dst, err := b.Arena.Bytes(c.StatsSlot)
		if err != nil {
			return err
		}
		copy(dst, raw)
		c.StatsBlob = c.StatsSlot.Sub(0, int64(len(raw)))
	}
	return nil
}
