package format

import (
	"context"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
)

// maxMessageSize bounds the size of any single thrift message read.
const maxMessageSize = 1 << 30

// Struct is implemented by every thrift structure of the format.
type Struct interface {
	Write(ctx context.Context, p thrift.TProtocol) error
	Read(ctx context.Context, p thrift.TProtocol) error
}

// Marshal serializes s with the thrift compact protocol.
func Marshal(ctx context.Context, s Struct) ([]byte, error) {
	buf := thrift.NewTMemoryBuffer()
	p := thrift.NewTCompactProtocolConf(buf, &thrift.TConfiguration{MaxMessageSize: maxMessageSize})
	if err := s.Write(ctx, p); err != nil {
		return nil, err
	}
	if err := p.Flush(ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes a compact protocol message into s.
func Unmarshal(ctx context.Context, data []byte, s Struct) error {
	buf := thrift.NewTMemoryBufferLen(len(data))
	if _, err := buf.Write(data); err != nil {
		return err
	}
	p := thrift.NewTCompactProtocolConf(buf, &thrift.TConfiguration{MaxMessageSize: maxMessageSize})
	return s.Read(ctx, p)
}

// fieldWriter accumulates the first error of a sequence of field writes so
// that Write methods read like the IDL.
type fieldWriter struct {
	ctx context.Context
	p   thrift.TProtocol
	err error
}

func (w *fieldWriter) begin(name string, t thrift.TType, id int16) bool {
	if w.err != nil {
		return false
	}
	w.err = w.p.WriteFieldBegin(w.ctx, name, t, id)
	return w.err == nil
}

func (w *fieldWriter) end() {
	if w.err == nil {
		w.err = w.p.WriteFieldEnd(w.ctx)
	}
}

func (w *fieldWriter) structBegin(name string) {
	if w.err == nil {
		w.err = w.p.WriteStructBegin(w.ctx, name)
	}
}

func (w *fieldWriter) structEnd() error {
	if w.err == nil {
		w.err = w.p.WriteFieldStop(w.ctx)
	}
	if w.err == nil {
		w.err = w.p.WriteStructEnd(w.ctx)
	}
	return w.err
}

func (w *fieldWriter) i32(name string, id int16, v int32) {
	if w.begin(name, thrift.I32, id) {
		w.err = w.p.WriteI32(w.ctx, v)
		w.end()
	}
}

func (w *fieldWriter) i64(name string, id int16, v int64) {
	if w.begin(name, thrift.I64, id) {
		w.err = w.p.WriteI64(w.ctx, v)
		w.end()
	}
}

func (w *fieldWriter) i16(name string, id int16, v int16) {
	if w.begin(name, thrift.I16, id) {
		w.err = w.p.WriteI16(w.ctx, v)
		w.end()
	}
}

func (w *fieldWriter) boolean(name string, id int16, v bool) {
	if w.begin(name, thrift.BOOL, id) {
		w.err = w.p.WriteBool(w.ctx, v)
		w.end()
	}
}

func (w *fieldWriter) str(name string, id int16, v string) {
	if w.begin(name, thrift.STRING, id) {
		w.err = w.p.WriteString(w.ctx, v)
		w.end()
	}
}

func (w *fieldWriter) binary(name string, id int16, v []byte) {
	if w.begin(name, thrift.STRING, id) {
		w.err = w.p.WriteBinary(w.ctx, v)
		w.end()
	}
}

func (w *fieldWriter) structField(name string, id int16, s Struct) {
	if w.begin(name, thrift.STRUCT, id) {
		w.err = s.Write(w.ctx, w.p)
		w.end()
	}
}

// list writes a list field of n elements; elem writes element i.
func (w *fieldWriter) list(name string, id int16, et thrift.TType, n int, elem func(i int) error) {
	if !w.begin(name, thrift.LIST, id) {
		return
	}
	if w.err = w.p.WriteListBegin(w.ctx, et, n); w.err != nil {
		return
	}
	for i := 0; i < n; i++ {
		if w.err = elem(i); w.err != nil {
			return
		}
	}
	if w.err = w.p.WriteListEnd(w.ctx); w.err != nil {
		return
	}
	w.end()
}

// readStruct reads the fields of a struct, handing each one to field.
// Fields field does not consume (handled == false) are skipped.
func readStruct(ctx context.Context, p thrift.TProtocol, field func(id int16, t thrift.TType) (bool, error)) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, t, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if t == thrift.STOP {
			break
		}
		handled, err := field(id, t)
		if err != nil {
			return fmt.Errorf("field %d: %w", id, err)
		}
		if !handled {
			if err := p.Skip(ctx, t); err != nil {
				return err
			}
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

// readList reads a list header and calls elem for each element.
func readList(ctx context.Context, p thrift.TProtocol, elem func(i int) error) error {
	_, n, err := p.ReadListBegin(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := elem(i); err != nil {
			return err
		}
	}
	return p.ReadListEnd(ctx)
}

// missing reports a required field absent from the message.
func missing(structName, field string) error {
	return thrift.NewTProtocolExceptionWithType(thrift.INVALID_DATA,
		fmt.Errorf("required field %s.%s is not set", structName, field))
}
