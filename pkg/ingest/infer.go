package ingest

import (
	"bytes"
	"maps"
	"slices"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/apache/arrow-go/v18/arrow"
	gojson "github.com/goccy/go-json"
)

type kind int

const (
	kindNull kind = iota
	kindBool
	kindInt
	kindFloat
	kindString
	kindList
)

type fieldType struct {
	kind kind
	elem *fieldType
}

// InferSchema derives an arrow schema from JSON objects, one per line.
// Fields are sorted by name and always nullable. Integers widen to floats
// when a field mixes both; fields that are null everywhere become strings.
// Nested objects are rejected.
func InferSchema(lines [][]byte) (*arrow.Schema, error) {
	types := make(map[string]*fieldType)
	for i, line := range lines {
		dec := gojson.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeUsage, "message is not a json object").
				WithDetail("line", i)
		}
		for name, v := range obj {
			t, err := valueType(v)
			if err != nil {
				return nil, err.WithDetail("field", name).WithDetail("line", i)
			}
			merged, err := unify(types[name], t)
			if err != nil {
				return nil, err.WithDetail("field", name).WithDetail("line", i)
			}
			types[name] = merged
		}
	}
	if len(types) == 0 {
		return nil, pqerrors.New(pqerrors.ErrorTypeUsage, "json messages have no fields")
	}

	fields := make([]arrow.Field, 0, len(types))
	for _, name := range slices.Sorted(maps.Keys(types)) {
		fields = append(fields, arrow.Field{Name: name, Type: types[name].arrow(), Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

func valueType(v any) (*fieldType, *pqerrors.Error) {
	switch v := v.(type) {
	case nil:
		return &fieldType{kind: kindNull}, nil
	case bool:
		return &fieldType{kind: kindBool}, nil
	case gojson.Number:
		if _, err := v.Int64(); err == nil {
			return &fieldType{kind: kindInt}, nil
		}
		return &fieldType{kind: kindFloat}, nil
	case string:
		return &fieldType{kind: kindString}, nil
	case []any:
		var elem *fieldType
		for _, e := range v {
			et, err := valueType(e)
			if err != nil {
				return nil, err
			}
			if et.kind == kindList {
				return nil, pqerrors.New(pqerrors.ErrorTypeUnsupported, "nested json arrays are not supported")
			}
			if elem, err = unify(elem, et); err != nil {
				return nil, err
			}
		}
		if elem == nil {
			elem = &fieldType{kind: kindNull}
		}
		return &fieldType{kind: kindList, elem: elem}, nil
	default:
		return nil, pqerrors.Newf(pqerrors.ErrorTypeUnsupported, "unsupported json value %T", v)
	}
}

func unify(a, b *fieldType) (*fieldType, *pqerrors.Error) {
	switch {
	case a == nil || a.kind == kindNull:
		return b, nil
	case b.kind == kindNull:
		return a, nil
	case a.kind == b.kind && a.kind == kindList:
		elem, err := unify(a.elem, b.elem)
		if err != nil {
			return nil, err
		}
		return &fieldType{kind: kindList, elem: elem}, nil
	case a.kind == b.kind:
		return a, nil
	case (a.kind == kindInt && b.kind == kindFloat) || (a.kind == kindFloat && b.kind == kindInt):
		return &fieldType{kind: kindFloat}, nil
	}
	return nil, pqerrors.New(pqerrors.ErrorTypeSchemaMismatch, "json field changes type between messages")
}

func (t *fieldType) arrow() arrow.DataType {
	switch t.kind {
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindList:
		return arrow.ListOf(t.elem.arrow())
	}
	return arrow.BinaryTypes.String
}
