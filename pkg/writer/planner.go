package writer

import (
	"github.com/ajitpratap0/parquetry/pkg/accel"
)

// rowGroupPlan is a run of whole fragments written as one row group.
type rowGroupPlan struct {
	FragStart int
	FragCount int
	RowStart  int64
	NumRows   int64
}

// planRowGroups greedily packs fragments into row groups. fragBytes holds the
// plain data size of each fragment summed over all columns. A group closes
// before fragment f when adding it would exceed maxBytes, or when the group
// would span more than maxRows rows counted in whole fragments. A group
// always holds at least one fragment.
func planRowGroups(fragBytes []int64, fragmentRows int, totalRows, maxBytes, maxRows int64) []rowGroupPlan {
	var (
		out   []rowGroupPlan
		start int
		bytes int64
	)
	closeGroup := func(end int) {
		r0 := int64(start) * int64(fragmentRows)
		r1 := min(int64(end)*int64(fragmentRows), totalRows)
		out = append(out, rowGroupPlan{
			FragStart: start,
			FragCount: end - start,
			RowStart:  r0,
			NumRows:   r1 - r0,
		})
	}

	for f, fb := range fragBytes {
		if f > start && (bytes+fb > maxBytes || int64(f+1-start)*int64(fragmentRows) > maxRows) {
			closeGroup(f)
			start, bytes = f, 0
		}
		bytes += fb
	}
	if len(fragBytes) > 0 {
		closeGroup(len(fragBytes))
	}
	return out
}

// fragmentBytes sums the plain data size of each fragment over all columns.
func fragmentBytes(frags [][]accel.Fragment) []int64 {
	if len(frags) == 0 {
		return nil
	}
	out := make([]int64, len(frags[0]))
	for _, col := range frags {
		for f := range col {
			out[f] += col[f].DataSize
		}
	}
	return out
}

// newChunks creates one chunk per column per row group, in row group then
// column order.
func newChunks(cols []*accel.ColumnDesc, frags [][]accel.Fragment, groups []rowGroupPlan) []*accel.Chunk {
	out := make([]*accel.Chunk, 0, len(cols)*len(groups))
	for g, rg := range groups {
		for c, desc := range cols {
			cf := frags[c][rg.FragStart : rg.FragStart+rg.FragCount]
			last := cf[len(cf)-1]
			out = append(out, &accel.Chunk{
				RowGroup:   g,
				Column:     c,
				Desc:       desc,
				FragStart:  rg.FragStart,
				FragCount:  rg.FragCount,
				RowStart:   rg.RowStart,
				NumRows:    rg.NumRows,
				EntryStart: cf[0].EntryStart,
				NumEntries: last.EntryStart + last.NumEntries - cf[0].EntryStart,
				Stats:      accel.EmptyStatistics(),
			})
		}
	}
	return out
}

// planPages splits a chunk into data pages along fragment boundaries. A page
// closes before a fragment that would push it past maxBytes of plain data or
// maxRows rows. When the chunk has a dictionary page it comes first.
func planPages(c *accel.Chunk, frags []accel.Fragment, maxBytes, maxRows int64) []*accel.Page {
	var out []*accel.Page
	if c.HasDictPage() {
		out = append(out, &accel.Page{
			Dictionary: true,
			FragStart:  c.FragStart,
			RowStart:   c.RowStart,
			EntryStart: c.EntryStart,
			BodyBound:  c.Dict.PlainSize,
			Stats:      accel.EmptyStatistics(),
		})
	}

	var cur *accel.Page
	var bytes int64
	for f := c.FragStart; f < c.FragStart+c.FragCount; f++ {
		fr := &frags[f]
		if cur != nil && (bytes+fr.DataSize > maxBytes || cur.NumRows+fr.NumRows > maxRows) {
			cur = nil
		}
		if cur == nil {
			cur = &accel.Page{
				FragStart:  f,
				RowStart:   fr.RowStart,
				EntryStart: fr.EntryStart,
				Stats:      accel.EmptyStatistics(),
			}
			out = append(out, cur)
			bytes = 0
		}
		cur.FragCount++
		cur.NumRows += fr.NumRows
		cur.NumEntries += fr.NumEntries
		cur.NonNulls += fr.NonNulls
		bytes += fr.DataSize
		cur.BodyBound += fr.DataSize
	}

	dictEntries := 0
	if c.HasDictPage() {
		dictEntries = len(c.Dict.Slots)
	}
	for _, p := range out {
		if !p.Dictionary {
			p.BodyBound = accel.DataPageBound(c.Desc, p.NumEntries, p.NonNulls, p.BodyBound, dictEntries)
		}
	}
	return out
}
