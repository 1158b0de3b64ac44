package writer

import (
	"context"

	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/format"
)

// dictionaryEligible reports whether a column may be dictionary encoded at all.
func dictionaryEligible(desc *accel.ColumnDesc) bool {
	return desc.PhysicalType != format.Boolean && desc.MinMax && !desc.IsList
}

// dictionaryPays estimates from the fragment figures whether a dictionary
// encoding of the chunk is smaller than plain encoding. The walk stops before
// the distinct count would pass the dictionary limit and decides on the
// partial sums.
func dictionaryPays(frags []accel.Fragment) bool {
	var distinct, dictSize, plainSize int64
	for i := range frags {
		fr := &frags[i]
		if distinct+fr.Distinct > accel.MaxDictionaryEntries {
			break
		}
		distinct += fr.Distinct
		width := int64(1)
		if distinct > 256 {
			width = 2
		}
		dictSize += fr.DictDataSize + width*fr.NonNulls
		plainSize += fr.DataSize
	}
	return dictSize < plainSize
}

// decideDictionaries marks the chunks that should be dictionary encoded.
func (w *Writer) decideDictionaries(chunks []*accel.Chunk, frags [][]accel.Fragment) {
	for _, c := range chunks {
		if !w.cfg.EnableDictionary || !dictionaryEligible(c.Desc) {
			continue
		}
		c.UseDictionary = dictionaryPays(frags[c.Column][c.FragStart : c.FragStart+c.FragCount])
	}
}

// buildDictionaries runs the dictionary kernel for the marked chunks and
// waits for it. Chunks whose dictionary overflowed come back plain.
func (w *Writer) buildDictionaries(ctx context.Context, chunks []*accel.Chunk) error {
	wanted := false
	for _, c := range chunks {
		wanted = wanted || c.UseDictionary
	}
	if !wanted {
		return nil
	}
	if err := w.queue.Submit(ctx, "build_dictionaries", func(ctx context.Context) error {
		return w.kernels.BuildDictionaries(ctx, w.device, chunks)
	}); err != nil {
		return err
	}
	if err := w.queue.Join(ctx); err != nil {
		releaseDictionaries(w.device, chunks)
		return err
	}

	for _, c := range chunks {
		if !dictionaryEligible(c.Desc) || !w.cfg.EnableDictionary {
			continue
		}
		decision := "plain"
		if c.HasDictPage() {
			decision = "dictionary"
		}
		w.metrics.DictionaryDecisions.WithLabelValues(decision).Inc()
	}
	return nil
}

func releaseDictionaries(dev *accel.Device, chunks []*accel.Chunk) {
	for _, c := range chunks {
		accel.ReleaseDictionary(dev, c)
	}
}
