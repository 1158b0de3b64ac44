package format

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"
)

// PageHeader precedes every page in a column chunk.
type PageHeader struct {
	Type                 PageType
	UncompressedPageSize int32
	CompressedPageSize   int32
	DataPageHeader       *DataPageHeader
	DictionaryPageHeader *DictionaryPageHeader
}

func (h *PageHeader) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("PageHeader")
	w.i32("type", 1, int32(h.Type))
	w.i32("uncompressed_page_size", 2, h.UncompressedPageSize)
	w.i32("compressed_page_size", 3, h.CompressedPageSize)
	if h.DataPageHeader != nil {
		w.structField("data_page_header", 5, h.DataPageHeader)
	}
	if h.DictionaryPageHeader != nil {
		w.structField("dictionary_page_header", 7, h.DictionaryPageHeader)
	}
	return w.structEnd()
}

func (h *PageHeader) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.I32:
			var v int32
			v, err = p.ReadI32(ctx)
			h.Type = PageType(v)
		case id == 2 && t == thrift.I32:
			h.UncompressedPageSize, err = p.ReadI32(ctx)
		case id == 3 && t == thrift.I32:
			h.CompressedPageSize, err = p.ReadI32(ctx)
		case id == 5 && t == thrift.STRUCT:
			h.DataPageHeader = &DataPageHeader{}
			err = h.DataPageHeader.Read(ctx, p)
		case id == 7 && t == thrift.STRUCT:
			h.DictionaryPageHeader = &DictionaryPageHeader{}
			err = h.DictionaryPageHeader.Read(ctx, p)
		default:
			return false, nil
		}
		return true, err
	})
}

// DataPageHeader describes a DATA_PAGE.
type DataPageHeader struct {
	NumValues               int32
	Encoding                Encoding
	DefinitionLevelEncoding Encoding
	RepetitionLevelEncoding Encoding
	Statistics              *Statistics
}

func (h *DataPageHeader) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("DataPageHeader")
	w.i32("num_values", 1, h.NumValues)
	w.i32("encoding", 2, int32(h.Encoding))
	w.i32("definition_level_encoding", 3, int32(h.DefinitionLevelEncoding))
	w.i32("repetition_level_encoding", 4, int32(h.RepetitionLevelEncoding))
	if h.Statistics != nil {
		w.structField("statistics", 5, h.Statistics)
	}
	return w.structEnd()
}

func (h *DataPageHeader) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		if id == 5 && t == thrift.STRUCT {
			h.Statistics = &Statistics{}
			return true, h.Statistics.Read(ctx, p)
		}
		if t != thrift.I32 || id < 1 || id > 4 {
			return false, nil
		}
		v, err := p.ReadI32(ctx)
		switch id {
		case 1:
			h.NumValues = v
		case 2:
			h.Encoding = Encoding(v)
		case 3:
			h.DefinitionLevelEncoding = Encoding(v)
		case 4:
			h.RepetitionLevelEncoding = Encoding(v)
		}
		return true, err
	})
}

// DictionaryPageHeader describes a DICTIONARY_PAGE.
type DictionaryPageHeader struct {
	NumValues int32
	Encoding  Encoding
	IsSorted  *bool
}

func (h *DictionaryPageHeader) Write(ctx context.Context, p thrift.TProtocol) error {
	w := &fieldWriter{ctx: ctx, p: p}
	w.structBegin("DictionaryPageHeader")
	w.i32("num_values", 1, h.NumValues)
	w.i32("encoding", 2, int32(h.Encoding))
	if h.IsSorted != nil {
		w.boolean("is_sorted", 3, *h.IsSorted)
	}
	return w.structEnd()
}

func (h *DictionaryPageHeader) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, t thrift.TType) (bool, error) {
		var err error
		switch {
		case id == 1 && t == thrift.I32:
			h.NumValues, err = p.ReadI32(ctx)
		case id == 2 && t == thrift.I32:
			var v int32
			v, err = p.ReadI32(ctx)
			h.Encoding = Encoding(v)
		case id == 3 && t == thrift.BOOL:
			var v bool
			v, err = p.ReadBool(ctx)
			h.IsSorted = &v
		default:
			return false, nil
		}
		return true, err
	})
}
