package accel

import "github.com/ajitpratap0/parquetry/pkg/format"

const baseHeaderBound = 64

// HeaderBound bounds a serialized page header. Data page headers carry
// statistics when pageStats is set.
func HeaderBound(maxValueSize int64, pageStats bool) int64 {
	if pageStats {
		return baseHeaderBound + StatsBound(maxValueSize)
	}
	return baseHeaderBound
}

// DataPageBound bounds the body of a data page with numEntries level
// entries of which nonNulls carry values of dataSize plain bytes in total.
// dictEntries is the dictionary size, or zero for plain pages.
func DataPageBound(desc *ColumnDesc, numEntries int, nonNulls, dataSize int64, dictEntries int) int64 {
	n := MaxLevelsSize(numEntries, desc.MaxRep) + MaxLevelsSize(numEntries, desc.MaxDef)
	switch {
	case dictEntries > 0:
		n += 1 + MaxHybridSize(int(nonNulls), DictIndexBitWidth(dictEntries))
	case desc.PhysicalType == format.Boolean:
		n += (nonNulls + 7) / 8
	default:
		n += dataSize
	}
	return n
}
