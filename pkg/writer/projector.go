package writer

import (
	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/format"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/ajitpratap0/parquetry/pkg/table"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// projector turns table columns into column descriptors. One projector
// serves one Write call; its decimal cursor is shared by all columns.
type projector struct {
	precisions []int
	cursor     int
	int96      bool
	chunked    bool
	required   map[string]bool
}

func newProjector(precisions []int, int96, chunked bool, required ...string) *projector {
	p := &projector{precisions: precisions, int96: int96, chunked: chunked}
	if len(required) > 0 {
		p.required = make(map[string]bool, len(required))
		for _, name := range required {
			p.required[name] = true
		}
	}
	return p
}

// projectTable projects every column and checks that the decimal precision
// list was consumed exactly.
func projectTable(tbl *table.Table, p *projector) ([]*accel.ColumnDesc, error) {
	cols := make([]*accel.ColumnDesc, len(tbl.Columns))
	for i, c := range tbl.Columns {
		desc, err := p.project(c)
		if err != nil {
			return nil, err
		}
		cols[i] = desc
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *projector) project(col table.Column) (*accel.ColumnDesc, error) {
	dt := col.Data.DataType()
	depth := accel.ListDepth(dt)
	leafType := dt
	for i := 0; i < depth; i++ {
		leafType = leafType.(*arrow.ListType).Elem()
	}

	desc := &accel.ColumnDesc{
		Name:    col.Name,
		Depth:   depth,
		MaxRep:  int16(depth),
		NumRows: int64(col.Data.Len()),
		IsList:  depth > 0,
	}

	var (
		entry typeEntry
		width int32
		err   error
	)
	if dec, ok := leafType.(*arrow.Decimal128Type); ok {
		precision, err := p.nextPrecision(col.Name, dec)
		if err != nil {
			return nil, err
		}
		entry, width = decimalEntry(precision)
		desc.Precision = precision
		desc.Scale = dec.Scale
		if entry.physical == format.FixedLenByteArray {
			desc.TypeLength = width
		}
	} else {
		entry, err = lookupType(leafType, p.int96)
		if err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeUnsupported, "cannot map column").WithDetail("column", col.Name)
		}
	}
	desc.PhysicalType = entry.physical
	desc.ConvertedType = entry.converted
	desc.MinMax = entry.minMax

	nullable, err := p.nullability(col, depth)
	if err != nil {
		return nil, err
	}
	desc.Nullable = nullable

	var info accel.LevelInfo
	if depth == 0 {
		desc.Levels, info, err = accel.BuildFlatLevels(col.Data, nullable[0])
	} else {
		desc.Levels, info, err = accel.BuildLevels(col.Data, nullable)
	}
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeNullability, "cannot build levels").WithDetail("column", col.Name)
	}
	desc.MaxDef = info.MaxDef
	desc.DataCount = info.DataCount
	desc.NullCount = info.NullCount

	desc.Values, err = newValues(accel.LeafArray(col.Data), entry, width)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeUnsupported, "cannot read column values").WithDetail("column", col.Name)
	}
	return desc, nil
}

// nextPrecision resolves the precision of a decimal column, consuming the
// next configured entry when a precision list is set.
func (p *projector) nextPrecision(name string, dec *arrow.Decimal128Type) (int32, error) {
	precision := dec.Precision
	if len(p.precisions) > 0 {
		if p.cursor >= len(p.precisions) {
			return 0, pqerrors.Wrap(pqerrors.ErrInvalidDecimalSpec, pqerrors.ErrorTypeInvalidDecimal, "decimal precision list is too short").
				WithDetail("column", name).
				WithDetail("entries", len(p.precisions))
		}
		precision = int32(p.precisions[p.cursor])
		p.cursor++
	}
	if precision < dec.Scale {
		return 0, pqerrors.Wrap(pqerrors.ErrInvalidDecimalSpec, pqerrors.ErrorTypeInvalidDecimal, "decimal precision is smaller than scale").
			WithDetail("column", name).
			WithDetail("precision", precision).
			WithDetail("scale", dec.Scale)
	}
	if precision < 1 || precision > 38 {
		return 0, pqerrors.Wrap(pqerrors.ErrInvalidDecimalSpec, pqerrors.ErrorTypeInvalidDecimal, "decimal precision out of range").
			WithDetail("column", name).
			WithDetail("precision", precision)
	}
	return precision, nil
}

func (p *projector) finish() error {
	if len(p.precisions) > 0 && p.cursor != len(p.precisions) {
		return pqerrors.Wrap(pqerrors.ErrInvalidDecimalSpec, pqerrors.ErrorTypeInvalidDecimal, "decimal precision list has unused entries").
			WithDetail("used", p.cursor).
			WithDetail("entries", len(p.precisions))
	}
	return nil
}

// nullability returns one flag per list level plus the leaf. Without an
// override, chunked writers mark every level nullable so that later chunks
// with nulls keep the schema, except for required columns which are
// required throughout; single writers follow the data.
func (p *projector) nullability(col table.Column, depth int) ([]bool, error) {
	if col.Nullability != nil {
		if len(col.Nullability) != depth+1 {
			return nil, pqerrors.Wrap(pqerrors.ErrNullabilityMismatch, pqerrors.ErrorTypeNullability, "nullability override does not match nesting").
				WithDetail("column", col.Name).
				WithDetail("flags", len(col.Nullability)).
				WithDetail("expected", depth+1)
		}
		return append([]bool(nil), col.Nullability...), nil
	}

	out := make([]bool, depth+1)
	if p.chunked {
		if p.required[col.Name] {
			return out, nil
		}
		for i := range out {
			out[i] = true
		}
		return out, nil
	}
	arr := col.Data
	for j := 0; j <= depth; j++ {
		out[j] = arr.NullN() > 0
		if l, ok := arr.(*array.List); ok {
			arr = l.ListValues()
		}
	}
	return out, nil
}
