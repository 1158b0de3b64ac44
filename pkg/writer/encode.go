package writer

import (
	"context"

	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/config"
)

// assignRegions carves every chunk region and page slot of b out of the
// arena, which must have been reset. codecBound must be the bound the
// regions were sized with.
func assignRegions(arena *accel.Arena, b *batchPlan, codecBound func(int) int) error {
	for _, c := range b.chunks {
		var err error
		if c.Uncompressed, err = arena.Alloc(c.Uncompressed.Len); err != nil {
			return err
		}
		if c.Compressed, err = arena.Alloc(c.Compressed.Len); err != nil {
			return err
		}
		if c.StatsSlot, err = arena.Alloc(c.StatsSlot.Len); err != nil {
			return err
		}

		var off, coff int64
		for _, p := range b.pages[c.FirstPage : c.FirstPage+c.NumPages] {
			n := c.HeaderBound + p.BodyBound
			p.Slot = c.Uncompressed.Sub(off, n)
			off += n
			if c.Compressed.Len > 0 {
				cn := c.HeaderBound + int64(codecBound(int(p.BodyBound)))
				p.CSlot = c.Compressed.Sub(coff, cn)
				coff += cn
			}
		}
	}
	return nil
}

// statsGroups lists the statistics merges for b. With page statistics the
// fragments fold into their page and the pages into the chunk; otherwise
// the fragments fold straight into the chunk.
func statsGroups(b *batchPlan, frags [][]accel.Fragment, level config.StatisticsLevel) []accel.StatsGroup {
	if !level.Enabled() {
		return nil
	}
	var out []accel.StatsGroup
	for _, c := range b.chunks {
		cf := frags[c.Column]
		if level == config.StatisticsPage {
			var pageStats []*accel.Statistics
			for _, p := range b.pages[c.FirstPage : c.FirstPage+c.NumPages] {
				if p.Dictionary {
					continue
				}
				g := accel.StatsGroup{Desc: c.Desc, Dst: &p.Stats}
				for f := p.FragStart; f < p.FragStart+p.FragCount; f++ {
					g.Src = append(g.Src, &cf[f].Stats)
				}
				out = append(out, g)
				pageStats = append(pageStats, &p.Stats)
			}
			out = append(out, accel.StatsGroup{Desc: c.Desc, Dst: &c.Stats, Src: pageStats})
			continue
		}
		g := accel.StatsGroup{Desc: c.Desc, Dst: &c.Stats}
		for f := c.FragStart; f < c.FragStart+c.FragCount; f++ {
			g.Src = append(g.Src, &cf[f].Stats)
		}
		out = append(out, g)
	}
	return out
}

// encodeBatch runs the page kernels over one batch and waits for them. Host
// reads of the arena are only valid after it returns.
func (w *Writer) encodeBatch(ctx context.Context, arena *accel.Arena, b *batchPlan, frags [][]accel.Fragment) error {
	arena.Reset()
	if err := assignRegions(arena, b, w.codecBound); err != nil {
		return err
	}

	kb := &accel.Batch{
		Arena:           arena,
		Chunks:          b.chunks,
		Pages:           b.pages,
		Codec:           w.codec,
		PageStatistics:  w.cfg.Statistics == config.StatisticsPage,
		ChunkStatistics: w.cfg.Statistics.Enabled(),
	}
	groups := statsGroups(b, frags, w.cfg.Statistics)

	steps := []struct {
		name string
		fn   accel.Task
	}{
		{"encode_pages", func(ctx context.Context) error { return w.kernels.EncodePages(ctx, kb) }},
		{"compress_pages", func(ctx context.Context) error { return w.kernels.CompressPages(ctx, kb) }},
		{"decide_compression", func(ctx context.Context) error { return w.kernels.DecideCompression(ctx, kb) }},
		{"merge_statistics", func(ctx context.Context) error { return w.kernels.MergeStatistics(ctx, groups) }},
		{"encode_page_headers", func(ctx context.Context) error { return w.kernels.EncodePageHeaders(ctx, kb) }},
		{"gather_pages", func(ctx context.Context) error { return w.kernels.GatherPages(ctx, kb) }},
		{"encode_statistics", func(ctx context.Context) error { return w.kernels.EncodeStatistics(ctx, kb) }},
	}
	for _, s := range steps {
		if s.name == "compress_pages" && w.codec == compression.None {
			continue
		}
		if err := w.queue.Submit(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	return w.queue.Join(ctx)
}
