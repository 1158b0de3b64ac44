package writer

import (
	"github.com/ajitpratap0/parquetry/pkg/accel"
	"github.com/ajitpratap0/parquetry/pkg/format"
)

const (
	rootName    = "schema"
	listName    = "list"
	elementName = "element"
)

func repetition(nullable bool) *format.FieldRepetitionType {
	r := format.Required
	if nullable {
		r = format.Optional
	}
	return &r
}

// buildSchema flattens the columns into schema elements and sets the path of
// every column. A list column of depth d becomes 2d+1 elements: a LIST group
// and a repeated "list" wrapper per level, then the "element" leaf.
func buildSchema(cols []*accel.ColumnDesc) []*format.SchemaElement {
	out := []*format.SchemaElement{{
		Name:        rootName,
		NumChildren: format.Int32Ptr(int32(len(cols))),
	}}

	for _, c := range cols {
		path := []string{c.Name}
		name := c.Name
		for j := 0; j < c.Depth; j++ {
			if j > 0 {
				name = elementName
			}
			out = append(out,
				&format.SchemaElement{
					Name:           name,
					RepetitionType: repetition(c.Nullable[j]),
					NumChildren:    format.Int32Ptr(1),
					ConvertedType:  ct(format.List),
				},
				&format.SchemaElement{
					Name:           listName,
					RepetitionType: repeatedPtr(),
					NumChildren:    format.Int32Ptr(1),
				})
			path = append(path, listName, elementName)
		}
		if c.Depth > 0 {
			name = elementName
		}
		out = append(out, leafElement(c, name))
		c.Path = path
	}
	return out
}

func repeatedPtr() *format.FieldRepetitionType {
	r := format.Repeated
	return &r
}

func leafElement(c *accel.ColumnDesc, name string) *format.SchemaElement {
	t := c.PhysicalType
	el := &format.SchemaElement{
		Name:           name,
		Type:           &t,
		RepetitionType: repetition(c.Nullable[c.Depth]),
		ConvertedType:  c.ConvertedType,
	}
	if c.TypeLength > 0 {
		el.TypeLength = format.Int32Ptr(c.TypeLength)
	}
	if c.ConvertedType != nil && *c.ConvertedType == format.Decimal {
		el.Precision = format.Int32Ptr(c.Precision)
		el.Scale = format.Int32Ptr(c.Scale)
	}
	return el
}

// schemaEqual reports whether two flattened schemas describe the same tree.
func schemaEqual(a, b []*format.SchemaElement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name ||
			!ptrEqual(x.Type, y.Type) ||
			!ptrEqual(x.TypeLength, y.TypeLength) ||
			!ptrEqual(x.RepetitionType, y.RepetitionType) ||
			!ptrEqual(x.NumChildren, y.NumChildren) ||
			!ptrEqual(x.ConvertedType, y.ConvertedType) ||
			!ptrEqual(x.Scale, y.Scale) ||
			!ptrEqual(x.Precision, y.Precision) {
			return false
		}
	}
	return true
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
