package accel

import (
	"encoding/binary"
	"math/bits"

	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/parquet-go/parquet-go/encoding/rle"
)

// BitWidth returns the bits needed to store values up to maxValue.
func BitWidth(maxValue uint64) int {
	return bits.Len64(maxValue)
}

// DictIndexBitWidth returns the index width of a dictionary of n entries.
func DictIndexBitWidth(n int) int {
	if n <= 1 {
		return 1
	}
	return bits.Len64(uint64(n - 1))
}

// MaxHybridSize bounds the RLE/bit-packed hybrid encoding of n values: every
// group of eight as its own run plus up to eight single-value tail runs.
func MaxHybridSize(n, bitWidth int) int64 {
	groups := int64(n+7) / 8
	run := int64(binary.MaxVarintLen32 + (bitWidth+7)/8)
	return groups*(int64(bitWidth)+run) + 8*run
}

// MaxLevelsSize bounds a length-prefixed level stream.
func MaxLevelsSize(n int, maxLevel int16) int64 {
	if maxLevel == 0 {
		return 0
	}
	return 4 + MaxHybridSize(n, BitWidth(uint64(maxLevel)))
}

// AppendLevels appends levels as a 4-byte little-endian length followed by
// their hybrid encoding. Nothing is written when maxLevel is zero.
func AppendLevels(dst []byte, levels []int16, maxLevel int16) ([]byte, error) {
	if maxLevel == 0 {
		return dst, nil
	}
	if maxLevel > 0xff {
		return dst, pqerrors.Newf(pqerrors.ErrorTypeUnsupported, "level %d does not fit a byte", maxLevel)
	}
	scratch := make([]uint8, len(levels))
	for i, l := range levels {
		scratch[i] = uint8(l)
	}

	enc := rle.Encoding{BitWidth: BitWidth(uint64(maxLevel))}
	at := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	out, err := enc.EncodeLevels(dst[len(dst):], scratch)
	if err != nil {
		return dst[:at], pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to encode levels")
	}
	dst = append(dst, out...)
	binary.LittleEndian.PutUint32(dst[at:], uint32(len(out)))
	return dst, nil
}

// AppendHybrid appends the RLE/bit-packed hybrid encoding of vals without a
// length prefix, as dictionary indices are stored after their width byte.
func AppendHybrid(dst []byte, vals []int32, bitWidth int) ([]byte, error) {
	enc := rle.Encoding{BitWidth: bitWidth}
	out, err := enc.EncodeInt32(dst[len(dst):], vals)
	if err != nil {
		return dst, pqerrors.Wrap(err, pqerrors.ErrorTypeInternal, "failed to encode dictionary indices")
	}
	return append(dst, out...), nil
}
