package accel

import "github.com/ajitpratap0/parquetry/pkg/format"

// Observe folds the value at slot into s. Slot -1 counts a null.
func (s *Statistics) Observe(vals Values, slot int32) {
	if slot < 0 {
		s.NullCount++
		return
	}
	s.NonNulls++
	if u, ok := vals.(unordered); ok && u.Unordered(int(slot)) {
		return
	}
	if s.MinSlot < 0 || vals.Less(int(slot), int(s.MinSlot)) {
		s.MinSlot = slot
	}
	if s.MaxSlot < 0 || vals.Less(int(s.MaxSlot), int(slot)) {
		s.MaxSlot = slot
	}
}

// Merge folds src into s.
func (s *Statistics) Merge(vals Values, src *Statistics) {
	s.NullCount += src.NullCount
	s.NonNulls += src.NonNulls
	if src.MinSlot >= 0 && (s.MinSlot < 0 || vals.Less(int(src.MinSlot), int(s.MinSlot))) {
		s.MinSlot = src.MinSlot
	}
	if src.MaxSlot >= 0 && (s.MaxSlot < 0 || vals.Less(int(s.MaxSlot), int(src.MaxSlot))) {
		s.MaxSlot = src.MaxSlot
	}
}

// HasMinMax reports whether min and max are known.
func (s *Statistics) HasMinMax() bool { return s.MinSlot >= 0 && s.MaxSlot >= 0 }

// ToFormat converts s into the serialized form. Min/max are only written for
// columns with a defined order.
func (s *Statistics) ToFormat(desc *ColumnDesc) *format.Statistics {
	out := &format.Statistics{NullCount: format.Int64Ptr(s.NullCount)}
	if desc.MinMax && s.HasMinMax() {
		out.MinValue = desc.Values.AppendStat([]byte{}, int(s.MinSlot))
		out.MaxValue = desc.Values.AppendStat([]byte{}, int(s.MaxSlot))
	}
	return out
}

// StatsBound bounds the serialized size of statistics whose min and max are
// at most maxValueSize bytes each.
func StatsBound(maxValueSize int64) int64 {
	return 2*maxValueSize + 48
}
