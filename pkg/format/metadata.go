package format

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"
)

// FileMetaData is the footer of a file.
type FileMetaData struct {
	Version          int32            `json:"version"`
	Schema           []*SchemaElement `json:"schema"`
	NumRows          int64            `json:"num_rows"`
	RowGroups        []*RowGroup      `json:"row_groups"`
	KeyValueMetadata []*KeyValue      `json:"key_value_metadata,omitempty"`
	CreatedBy        *string          `json:"created_by,omitempty"`
	ColumnOrders     []*ColumnOrder   `json:"column_orders,omitempty"`
}

func (m *FileMetaData) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("FileMetaData")
	w.i32("version", 1, m.Version)
	w.list("schema", 2, thrift.STRUCT, len(m.Schema), func(i int) error {
		return m.Schema[i].Write(ctx, p)
	})
	w.i64("num_rows", 3, m.NumRows)
	w.list("row_groups", 4, thrift.STRUCT, len(m.RowGroups), func(i int) error {
		return m.RowGroups[i].Write(ctx, p)
	})
	if m.KeyValueMetadata != nil {
		w.list("key_value_metadata", 5, thrift.STRUCT, len(m.KeyValueMetadata), func(i int) error {
			return m.KeyValueMetadata[i].Write(ctx, p)
		})
	}
	if m.CreatedBy != nil {
		w.str("created_by", 6, *m.CreatedBy)
	}
	if m.ColumnOrders != nil {
		w.list("column_orders", 7, thrift.STRUCT, len(m.ColumnOrders), func(i int) error {
			return m.ColumnOrders[i].Write(ctx, p)
		})
	}
	return w.structEnd()
}

func (m *FileMetaData) Read(ctx context.Context, p thrift.TProtocol) error {
	var haveVersion, haveSchema, haveRows, haveGroups bool
	err := readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.I32:
			m.Version, err = p.ReadI32(ctx)
			haveVersion = true
		case id == 2 && t == thrift.LIST:
			m.Schema = nil
			err = readList(ctx, p, func(int) error {
				el := &SchemaElement{}
				m.Schema = append(m.Schema, el)
				return el.Read(ctx, p)
			})
			haveSchema = true
		case id == 3 && t == thrift.I64:
			m.NumRows, err = p.ReadI64(ctx)
			haveRows = true
		case id == 4 && t == thrift.LIST:
			m.RowGroups = nil
			err = readList(ctx, p, func(int) error {
				rg := &RowGroup{}
				m.RowGroups = append(m.RowGroups, rg)
				return rg.Read(ctx, p)
			})
			haveGroups = true
		case id == 5 && t == thrift.LIST:
			m.KeyValueMetadata = []*KeyValue{}
			err = readList(ctx, p, func(int) error {
				kv := &KeyValue{}
				m.KeyValueMetadata = append(m.KeyValueMetadata, kv)
				return kv.Read(ctx, p)
			})
		case id == 6 && t == thrift.STRING:
			var s string
			s, err = p.ReadString(ctx)
			m.CreatedBy = &s
		case id == 7 && t == thrift.LIST:
			m.ColumnOrders = []*ColumnOrder{}
			err = readList(ctx, p, func(int) error {
				co := &ColumnOrder{}
				m.ColumnOrders = append(m.ColumnOrders, co)
				return co.Read(ctx, p)
			})
		default:
			return false, nil
		}
		return true, err
	})
	if err != nil {
		return err
	}
	switch {
	case !haveVersion:
		return missing("FileMetaData", "version")
	case !haveSchema:
		return missing("FileMetaData", "schema")
	case !haveRows:
		return missing("FileMetaData", "num_rows")
	case !haveGroups:
		return missing("FileMetaData", "row_groups")
	}
	return nil
}

// SchemaElement is one node of the flattened schema tree.
type SchemaElement struct {
	Type           *Type                `json:"type,omitempty"`
	TypeLength     *int32               `json:"type_length,omitempty"`
	RepetitionType *FieldRepetitionType `json:"repetition_type,omitempty"`
	Name           string               `json:"name"`
	NumChildren    *int32               `json:"num_children,omitempty"`
	ConvertedType  *ConvertedType       `json:"converted_type,omitempty"`
	Scale          *int32               `json:"scale,omitempty"`
	Precision      *int32               `json:"precision,omitempty"`
	FieldID        *int32               `json:"field_id,omitempty"`
}

func (s *SchemaElement) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("SchemaElement")
	if s.Type != nil {
		w.i32("type", 1, int32(*s.Type))
	}
	if s.TypeLength != nil {
		w.i32("type_length", 2, *s.TypeLength)
	}
	if s.RepetitionType != nil {
		w.i32("repetition_type", 3, int32(*s.RepetitionType))
	}
	w.str("name", 4, s.Name)
	if s.NumChildren != nil {
		w.i32("num_children", 5, *s.NumChildren)
	}
	if s.ConvertedType != nil {
		w.i32("converted_type", 6, int32(*s.ConvertedType))
	}
	if s.Scale != nil {
		w.i32("scale", 7, *s.Scale)
	}
	if s.Precision != nil {
		w.i32("precision", 8, *s.Precision)
	}
	if s.FieldID != nil {
		w.i32("field_id", 9, *s.FieldID)
	}
	return w.structEnd()
}

func (s *SchemaElement) Read(ctx context.Context, p thrift.TProtocol) error {
	var haveName bool
	err := readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		if id == 4 && t == thrift.STRING {
			var err error
			s.Name, err = p.ReadString(ctx)
			haveName = true
			return true, err
		}
		if t != thrift.I32 {
			return false, nil
		}
		v, err := p.ReadI32(ctx)
		if err != nil {
			return true, err
		}
		switch id {
		case 1:
			typ := Type(v)
			s.Type = &typ
		case 2:
			s.TypeLength = &v
		case 3:
			rep := FieldRepetitionType(v)
			s.RepetitionType = &rep
		case 5:
			s.NumChildren = &v
		case 6:
			ct := ConvertedType(v)
			s.ConvertedType = &ct
		case 7:
			s.Scale = &v
		case 8:
			s.Precision = &v
		case 9:
			s.FieldID = &v
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !haveName {
		return missing("SchemaElement", "name")
	}
	return nil
}

// RowGroup describes one horizontal partition of the file.
type RowGroup struct {
	Columns             []*ColumnChunk `json:"columns"`
	TotalByteSize       int64          `json:"total_byte_size"`
	NumRows             int64          `json:"num_rows"`
	FileOffset          *int64         `json:"file_offset,omitempty"`
	TotalCompressedSize *int64         `json:"total_compressed_size,omitempty"`
	Ordinal             *int16         `json:"ordinal,omitempty"`
}

func (rg *RowGroup) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("RowGroup")
	w.list("columns", 1, thrift.STRUCT, len(rg.Columns), func(i int) error {
		return rg.Columns[i].Write(ctx, p)
	})
	w.i64("total_byte_size", 2, rg.TotalByteSize)
	w.i64("num_rows", 3, rg.NumRows)
	if rg.FileOffset != nil {
		w.i64("file_offset", 5, *rg.FileOffset)
	}
	if rg.TotalCompressedSize != nil {
		w.i64("total_compressed_size", 6, *rg.TotalCompressedSize)
	}
	if rg.Ordinal != nil {
		w.i16("ordinal", 7, *rg.Ordinal)
	}
	return w.structEnd()
}

func (rg *RowGroup) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.LIST:
			rg.Columns = nil
			err = readList(ctx, p, func(int) error {
				cc := &ColumnChunk{}
				rg.Columns = append(rg.Columns, cc)
				return cc.Read(ctx, p)
			})
		case id == 2 && t == thrift.I64:
			rg.TotalByteSize, err = p.ReadI64(ctx)
		case id == 3 && t == thrift.I64:
			rg.NumRows, err = p.ReadI64(ctx)
		case id == 5 && t == thrift.I64:
			var v int64
			v, err = p.ReadI64(ctx)
			rg.FileOffset = &v
		case id == 6 && t == thrift.I64:
			var v int64
			v, err = p.ReadI64(ctx)
			rg.TotalCompressedSize = &v
		case id == 7 && t == thrift.I16:
			var v int16
			v, err = p.ReadI16(ctx)
			rg.Ordinal = &v
		default:
			return false, nil
		}
		return true, err
	})
}

// ColumnChunk locates one column of a row group.
type ColumnChunk struct {
	FilePath   *string         `json:"file_path,omitempty"`
	FileOffset int64           `json:"file_offset"`
	MetaData   *ColumnMetaData `json:"meta_data,omitempty"`
}

func (cc *ColumnChunk) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("ColumnChunk")
	if cc.FilePath != nil {
		w.str("file_path", 1, *cc.FilePath)
	}
	w.i64("file_offset", 2, cc.FileOffset)
	if cc.MetaData != nil {
		w.structField("meta_data", 3, cc.MetaData)
	}
	return w.structEnd()
}

func (cc *ColumnChunk) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.STRING:
			var s string
			s, err = p.ReadString(ctx)
			cc.FilePath = &s
		case id == 2 && t == thrift.I64:
			cc.FileOffset, err = p.ReadI64(ctx)
		case id == 3 && t == thrift.STRUCT:
			cc.MetaData = &ColumnMetaData{}
			err = cc.MetaData.Read(ctx, p)
		default:
			return false, nil
		}
		return true, err
	})
}

// ColumnMetaData describes the pages of one column chunk.
type ColumnMetaData struct {
	Type                  Type             `json:"type"`
	Encodings             []Encoding       `json:"encodings"`
	PathInSchema          []string         `json:"path_in_schema"`
	Codec                 CompressionCodec `json:"codec"`
	NumValues             int64            `json:"num_values"`
	TotalUncompressedSize int64            `json:"total_uncompressed_size"`
	TotalCompressedSize   int64            `json:"total_compressed_size"`
	DataPageOffset        int64            `json:"data_page_offset"`
	DictionaryPageOffset  *int64           `json:"dictionary_page_offset,omitempty"`
	Statistics            *Statistics      `json:"statistics,omitempty"`
}

func (md *ColumnMetaData) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("ColumnMetaData")
	w.i32("type", 1, int32(md.Type))
	w.list("encodings", 2, thrift.I32, len(md.Encodings), func(i int) error {
		return p.WriteI32(ctx, int32(md.Encodings[i]))
	})
	w.list("path_in_schema", 3, thrift.STRING, len(md.PathInSchema), func(i int) error {
		return p.WriteString(ctx, md.PathInSchema[i])
	})
	w.i32("codec", 4, int32(md.Codec))
	w.i64("num_values", 5, md.NumValues)
	w.i64("total_uncompressed_size", 6, md.TotalUncompressedSize)
	w.i64("total_compressed_size", 7, md.TotalCompressedSize)
	w.i64("data_page_offset", 9, md.DataPageOffset)
	if md.DictionaryPageOffset != nil {
		w.i64("dictionary_page_offset", 11, *md.DictionaryPageOffset)
	}
	if md.Statistics != nil {
		w.structField("statistics", 12, md.Statistics)
	}
	return w.structEnd()
}

func (md *ColumnMetaData) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.I32:
			var v int32
			v, err = p.ReadI32(ctx)
			md.Type = Type(v)
		case id == 2 && t == thrift.LIST:
			md.Encodings = nil
			err = readList(ctx, p, func(int) error {
				v, err := p.ReadI32(ctx)
				md.Encodings = append(md.Encodings, Encoding(v))
				return err
			})
		case id == 3 && t == thrift.LIST:
			md.PathInSchema = nil
			err = readList(ctx, p, func(int) error {
				s, err := p.ReadString(ctx)
				md.PathInSchema = append(md.PathInSchema, s)
				return err
			})
		case id == 4 && t == thrift.I32:
			var v int32
			v, err = p.ReadI32(ctx)
			md.Codec = CompressionCodec(v)
		case id == 5 && t == thrift.I64:
			md.NumValues, err = p.ReadI64(ctx)
		case id == 6 && t == thrift.I64:
			md.TotalUncompressedSize, err = p.ReadI64(ctx)
		case id == 7 && t == thrift.I64:
			md.TotalCompressedSize, err = p.ReadI64(ctx)
		case id == 9 && t == thrift.I64:
			md.DataPageOffset, err = p.ReadI64(ctx)
		case id == 11 && t == thrift.I64:
			var v int64
			v, err = p.ReadI64(ctx)
			md.DictionaryPageOffset = &v
		case id == 12 && t == thrift.STRUCT:
			md.Statistics = &Statistics{}
			err = md.Statistics.Read(ctx, p)
		default:
			return false, nil
		}
		return true, err
	})
}

// Statistics holds the min/max and counts of a page or column chunk.
// Nil byte slices are absent fields.
type Statistics struct {
	Max           []byte `json:"max,omitempty"`
	Min           []byte `json:"min,omitempty"`
	NullCount     *int64 `json:"null_count,omitempty"`
	DistinctCount *int64 `json:"distinct_count,omitempty"`
	MaxValue      []byte `json:"max_value,omitempty"`
	MinValue      []byte `json:"min_value,omitempty"`
}

func (s *Statistics) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("Statistics")
	if s.Max != nil {
		w.binary("max", 1, s.Max)
	}
	if s.Min != nil {
		w.binary("min", 2, s.Min)
	}
	if s.NullCount != nil {
		w.i64("null_count", 3, *s.NullCount)
	}
	if s.DistinctCount != nil {
		w.i64("distinct_count", 4, *s.DistinctCount)
	}
	if s.MaxValue != nil {
		w.binary("max_value", 5, s.MaxValue)
	}
	if s.MinValue != nil {
		w.binary("min_value", 6, s.MinValue)
	}
	return w.structEnd()
}

func (s *Statistics) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.STRING:
			s.Max, err = readBinary(ctx, p)
		case id == 2 && t == thrift.STRING:
			s.Min, err = readBinary(ctx, p)
		case id == 3 && t == thrift.I64:
			var v int64
			v, err = p.ReadI64(ctx)
			s.NullCount = &v
		case id == 4 && t == thrift.I64:
			var v int64
			v, err = p.ReadI64(ctx)
			s.DistinctCount = &v
		case id == 5 && t == thrift.STRING:
			s.MaxValue, err = readBinary(ctx, p)
		case id == 6 && t == thrift.STRING:
			s.MinValue, err = readBinary(ctx, p)
		default:
			return false, nil
		}
		return true, err
	})
}

// readBinary never returns nil on success, so that a present empty value
// stays distinguishable from an absent one.
func readBinary(ctx context.Context, p thrift.TProtocol) ([]byte, error) {
	b, err := p.ReadBinary(ctx)
	if err == nil && b == nil {
		b = []byte{}
	}
	return b, err
}

// KeyValue is one entry of user key/value metadata.
type KeyValue struct {
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}

func (kv *KeyValue) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("KeyValue")
	w.str("key", 1, kv.Key)
	if kv.Value != nil {
		w.str("value", 2, *kv.Value)
	}
	return w.structEnd()
}

func (kv *KeyValue) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.STRING:
			kv.Key, err = p.ReadString(ctx)
		case id == 2 && t == thrift.STRING:
			var v string
			v, err = p.ReadString(ctx)
			kv.Value = &v
		default:
			return false, nil
		}
		return true, err
	})
}

// TypeDefinedOrder orders values by their physical and logical type.
type TypeDefinedOrder struct{}

func (o *TypeDefinedOrder) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("TypeDefinedOrder")
	return w.structEnd()
}

func (o *TypeDefinedOrder) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(int16, thrift.TType) (bool, error) { return false, nil })
}

// ColumnOrder is a union; TypeOrder is its only member.
type ColumnOrder struct {
	TypeOrder *TypeDefinedOrder `json:"type_order,omitempty"`
}

func (co *ColumnOrder) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("ColumnOrder")
	if co.TypeOrder != nil {
		w.structField("TYPE_ORDER", 1, co.TypeOrder)
	}
	return w.structEnd()
}

func (co *ColumnOrder) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		if id == 1 && t == thrift.STRUCT {
			co.TypeOrder = &TypeDefinedOrder{}
			return true, co.TypeOrder.Read(ctx, p)
		}
		return false, nil
	})
}
