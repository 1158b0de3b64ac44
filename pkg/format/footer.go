package format

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
)

// TrailerSize is the size of the footer length plus the trailing magic.
const TrailerSize = 8

// AppendTrailer appends the u32 little-endian footer length and the magic.
func AppendTrailer(dst []byte, footerLen int) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(footerLen))
	return append(dst, Magic[:]...)
}

// EncodeFooter serializes md and appends the trailer. The result is what
// follows the last row group in a file.
func EncodeFooter(ctx context.Context, md *FileMetaData) ([]byte, error) {
	body, err := Marshal(ctx, md)
	if err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to serialize file metadata")
	}
	return AppendTrailer(body, len(body)), nil
}

// EncodeStandalone returns a buffer holding only header, footer and trailer,
// the shape used for metadata files written apart from the data.
func EncodeStandalone(ctx context.Context, md *FileMetaData) ([]byte, error) {
	footer, err := EncodeFooter(ctx, md)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(Magic)+len(footer))
	out = append(out, Magic[:]...)
	return append(out, footer...), nil
}

// SplitFooter validates the header and trailer of buf and returns the
// serialized footer. buf may be a whole file or a standalone metadata buffer.
func SplitFooter(buf []byte) ([]byte, error) {
	if len(buf) < len(Magic)+TrailerSize {
		return nil, pqerrors.Newf(pqerrors.ErrorTypeInvalidFooter, "buffer of %d bytes is too short", len(buf))
	}
	if !bytes.Equal(buf[:len(Magic)], Magic[:]) {
		return nil, pqerrors.New(pqerrors.ErrorTypeInvalidFooter, "missing header magic")
	}
	if !bytes.Equal(buf[len(buf)-len(Magic):], Magic[:]) {
		return nil, pqerrors.New(pqerrors.ErrorTypeInvalidFooter, "missing trailer magic")
	}
	n := int64(binary.LittleEndian.Uint32(buf[len(buf)-TrailerSize:]))
	end := int64(len(buf) - TrailerSize)
	if n == 0 || n > end-int64(len(Magic)) {
		return nil, pqerrors.Newf(pqerrors.ErrorTypeInvalidFooter, "footer length %d out of range", n).
			WithDetail("buffer_size", len(buf))
	}
	return buf[end-n : end], nil
}

// ReadFileMetaData extracts and deserializes the footer of buf.
func ReadFileMetaData(ctx context.Context, buf []byte) (*FileMetaData, error) {
	body, err := SplitFooter(buf)
	if err != nil {
		return nil, err
	}
	md := &FileMetaData{}
	if err := Unmarshal(ctx, body, md); err != nil {
		return nil, pqerrors.Wrap(err, pqerrors.ErrorTypeInvalidFooter, "failed to deserialize file metadata")
	}
	return md, nil
}

// Clone returns a deep copy of md.
func (m *FileMetaData) Clone(ctx context.Context) (*FileMetaData, error) {
	b, err := Marshal(ctx, m)
	if err != nil {
		return nil, err
	}
	out := &FileMetaData{}
	if err := Unmarshal(ctx, b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// NumLeaves returns the number of leaf nodes of the schema.
func (m *FileMetaData) NumLeaves() int {
	n := 0
	for _, el := range m.Schema {
		if el.NumChildren == nil || *el.NumChildren == 0 {
			if el.Type != nil {
				n++
			}
		}
	}
	return n
}
