package accel

import (
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ListDepth returns the number of nested list levels of dt.
func ListDepth(dt arrow.DataType) int {
	depth := 0
	for {
		lt, ok := dt.(*arrow.ListType)
		if !ok {
			return depth
		}
		depth++
		dt = lt.Elem()
	}
}

// LeafArray returns the innermost value array of a (possibly nested) list.
func LeafArray(arr arrow.Array) arrow.Array {
	for {
		l, ok := arr.(*array.List)
		if !ok {
			return arr
		}
		arr = l.ListValues()
	}
}

// LevelInfo is the output of BuildLevels besides the levels themselves.
type LevelInfo struct {
	MaxDef    int16
	MaxRep    int16
	DataCount int64 // entries that reached the leaf level
	NullCount int64 // entries without a value
}

// BuildFlatLevels builds levels for a column without list nesting.
func BuildFlatLevels(arr arrow.Array, nullable bool) (*Levels, LevelInfo, error) {
	n := arr.Len()
	lv := &Levels{
		Slot:     make([]int32, n),
		RowStart: make([]int32, n+1),
	}
	info := LevelInfo{DataCount: int64(n)}
	if nullable {
		lv.Def = make([]int16, n)
		info.MaxDef = 1
	}

	for i := 0; i < n; i++ {
		lv.RowStart[i] = int32(i)
		if arr.IsNull(i) {
			if !nullable {
				return nil, info, pqerrors.New(pqerrors.ErrorTypeNullability, "required column contains nulls")
			}
			lv.Slot[i] = -1
			info.NullCount++
			continue
		}
		lv.Slot[i] = int32(i)
		if nullable {
			lv.Def[i] = 1
		}
	}
	lv.RowStart[n] = int32(n)
	return lv, info, nil
}

// BuildLevels walks a list column row by row and materializes its
// repetition and definition levels. nullable has one flag per list level
// plus one for the leaf. Slots index the leaf array returned by LeafArray.
func BuildLevels(arr arrow.Array, nullable []bool) (*Levels, LevelInfo, error) {
	depth := ListDepth(arr.DataType())
	var info LevelInfo
	if len(nullable) != depth+1 {
		return nil, info, pqerrors.Newf(pqerrors.ErrorTypeNullability,
			"got %d nullability flags for nesting depth %d", len(nullable), depth).
			WithDetail("expected", depth+1)
	}

	info.MaxRep = int16(depth)
	info.MaxDef = int16(depth)
	for _, n := range nullable {
		if n {
			info.MaxDef++
		}
	}

	n := arr.Len()
	w := &levelWalker{
		depth:    depth,
		nullable: nullable,
		lv: &Levels{
			Rep:      make([]int16, 0, n),
			Def:      make([]int16, 0, n),
			Slot:     make([]int32, 0, n),
			RowStart: make([]int32, n+1),
		},
	}

	for i := 0; i < n; i++ {
		w.lv.RowStart[i] = int32(len(w.lv.Slot))
		if err := w.visit(arr, i, 0, 0, 0); err != nil {
			return nil, info, err
		}
	}
	w.lv.RowStart[n] = int32(len(w.lv.Slot))

	info.DataCount = w.leaves
	info.NullCount = w.nulls
	return w.lv, info, nil
}

type levelWalker struct {
	depth    int
	nullable []bool
	lv       *Levels
	leaves   int64
	nulls    int64
}

func (w *levelWalker) emit(rep, def int16, slot int32) {
	w.lv.Rep = append(w.lv.Rep, rep)
	w.lv.Def = append(w.lv.Def, def)
	w.lv.Slot = append(w.lv.Slot, slot)
	if slot < 0 {
		w.nulls++
	}
}

// visit emits the entries of element idx of arr, which sits at list level j.
func (w *levelWalker) visit(arr arrow.Array, idx, j int, rep, def int16) error {
	if j == w.depth {
		w.leaves++
		if arr.IsNull(idx) {
			if !w.nullable[j] {
				return pqerrors.New(pqerrors.ErrorTypeNullability, "required list element contains nulls")
			}
			w.emit(rep, def, -1)
			return nil
		}
		if w.nullable[j] {
			def++
		}
		w.emit(rep, def, int32(idx))
		return nil
	}

	list := arr.(*array.List)
	if list.IsNull(idx) {
		if !w.nullable[j] {
			return pqerrors.Newf(pqerrors.ErrorTypeNullability, "required list level %d contains nulls", j)
		}
		w.emit(rep, def, -1)
		return nil
	}
	if w.nullable[j] {
		def++
	}

	start, end := list.ValueOffsets(idx)
	if start == end {
		w.emit(rep, def, -1)
		return nil
	}
	child := list.ListValues()
	for k := start; k < end; k++ {
		r := rep
		if k > start {
			r = int16(j + 1)
		}
		if err := w.visit(child, int(k), j+1, r, def+1); err != nil {
			return err
		}
	}
	return nil
}
