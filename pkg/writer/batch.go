package writer

import (
	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/config"
)

// batchPlan is a run of consecutive row groups encoded in one pass over the
// shared arena.
type batchPlan struct {
	groups []int
	chunks []*accel.Chunk
	pages  []*accel.Page
	bytes  int64
}

// sizeChunk plans the pages of c and records the byte length of each of its
// regions. Offsets are assigned when the batch is encoded.
func (w *Writer) sizeChunk(c *accel.Chunk, frags []accel.Fragment) []*accel.Page {
	pageStats := w.cfg.Statistics == config.StatisticsPage
	var maxValue int64
	for _, fr := range frags[c.FragStart : c.FragStart+c.FragCount] {
		maxValue = max(maxValue, fr.MaxValueSize)
	}
	c.HeaderBound = accel.HeaderBound(maxValue, pageStats)
	if w.cfg.Statistics.Enabled() {
		c.StatsBound = accel.StatsBound(maxValue)
	}

	pages := planPages(c, frags, w.cfg.Layout.PageMaxBytes, w.cfg.Layout.PageMaxRows)
	var unc, comp int64
	for _, p := range pages {
		unc += c.HeaderBound + p.BodyBound
		if w.codec != compression.None {
			comp += c.HeaderBound + int64(w.codecBound(int(p.BodyBound)))
		}
	}
	c.Uncompressed = accel.Ref{Len: unc}
	c.Compressed = accel.Ref{Len: comp}
	c.StatsSlot = accel.Ref{Len: c.StatsBound}
	c.NumPages = len(pages)
	return pages
}

func chunkBytes(c *accel.Chunk) int64 {
	return c.Uncompressed.Len + c.Compressed.Len + c.StatsSlot.Len
}

// planBatches sizes every chunk and groups whole row groups into batches. A
// batch closes when the next row group would take it past maxBytes; a row
// group larger than maxBytes gets a batch of its own.
func (w *Writer) planBatches(chunks []*accel.Chunk, frags [][]accel.Fragment, numGroups int) []*batchPlan {
	ncols := 0
	if numGroups > 0 {
		ncols = len(chunks) / numGroups
	}

	var (
		out []*batchPlan
		cur *batchPlan
	)
	for g := 0; g < numGroups; g++ {
		group := chunks[g*ncols : (g+1)*ncols]
		pages := make([][]*accel.Page, len(group))
		var groupBytes int64
		for i, c := range group {
			pages[i] = w.sizeChunk(c, frags[c.Column])
			groupBytes += chunkBytes(c)
		}

		if cur != nil && cur.bytes+groupBytes > w.cfg.Memory.MaxBatchBytes {
			cur = nil
		}
		if cur == nil {
			cur = &batchPlan{}
			out = append(out, cur)
		}
		for i, c := range group {
			c.FirstPage = len(cur.pages)
			for _, p := range pages[i] {
				p.Chunk = len(cur.chunks)
				cur.pages = append(cur.pages, p)
			}
			cur.chunks = append(cur.chunks, c)
		}
		cur.groups = append(cur.groups, g)
		cur.bytes += groupBytes
	}
	return out
}

// arenaSize is the arena size that fits every batch.
func arenaSize(batches []*batchPlan) int64 {
	var n int64
	for _, b := range batches {
		n = max(n, b.bytes)
	}
	return n
}

// maxChunkBytes is the largest statistics plus gathered chunk any batch can
// produce, the size of the host staging buffer.
func maxChunkBytes(batches []*batchPlan) int64 {
	var n int64
	for _, b := range batches {
		for _, c := range b.chunks {
			n = max(n, c.StatsSlot.Len+max(c.Uncompressed.Len, c.Compressed.Len))
		}
	}
	return n
}
