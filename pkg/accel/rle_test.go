package accel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeHybrid is a reference decoder for the RLE/bit-packed hybrid.
func decodeHybrid(t *testing.T, buf []byte, bitWidth, n int) []int32 {
	t.Helper()
	var out []int32
	for len(out) < n {
		h, k := binary.Uvarint(buf)
		require.Greater(t, k, 0)
		buf = buf[k:]

		if h&1 == 0 {
			width := (bitWidth + 7) / 8
			var v uint64
			for b := 0; b < width; b++ {
				v |= uint64(buf[b]) << (8 * b)
			}
			buf = buf[width:]
			for i := 0; i < int(h>>1); i++ {
				out = append(out, int32(v))
			}
			continue
		}

		groups := int(h >> 1)
		data := buf[:groups*bitWidth]
		buf = buf[groups*bitWidth:]
		for i := 0; i < groups*8; i++ {
			bit := i * bitWidth
			var v int32
			for j := 0; j < bitWidth; j++ {
				if data[(bit+j)/8]>>((bit+j)%8)&1 == 1 {
					v |= 1 << j
				}
			}
			out = append(out, v)
		}
	}
	assert.Empty(t, buf, "trailing bytes")
	return out[:n]
}

func TestAppendHybridRoundTrip(t *testing.T) {
	long := make([]int32, 1000)
	for i := range long {
		long[i] = 1
	}

	cycle := make([]int32, 37)
	for i := range cycle {
		cycle[i] = int32(i % 8)
	}

	var mixed []int32
	mixed = append(mixed, 3, 1, 4)
	for i := 0; i < 20; i++ {
		mixed = append(mixed, 5)
	}
	mixed = append(mixed, 2, 6, 5, 3, 5, 8, 9, 7, 9)

	tests := []struct {
		name     string
		vals     []int32
		bitWidth int
	}{
		{"single run", long, 1},
		{"bit packed", cycle, 3},
		{"mixed", mixed, 4},
		{"one value", []int32{1}, 1},
		{"wide", []int32{70000, 1, 65535, 70000}, 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := AppendHybrid([]byte{0xaa}, tt.vals, tt.bitWidth)
			require.NoError(t, err)
			assert.Equal(t, byte(0xaa), buf[0])
			buf = buf[1:]
			assert.LessOrEqual(t, int64(len(buf)), MaxHybridSize(len(tt.vals), tt.bitWidth))
			assert.Equal(t, tt.vals, decodeHybrid(t, buf, tt.bitWidth, len(tt.vals)))
		})
	}
}

func TestAppendHybridSingleRunIsCompact(t *testing.T) {
	vals := make([]int32, 1000)
	buf, err := AppendHybrid(nil, vals, 1)
	require.NoError(t, err)
	// bit packing alone would take 125 bytes of payload
	assert.Less(t, len(buf), 16)
	assert.Equal(t, vals, decodeHybrid(t, buf, 1, len(vals)))
}

func TestAppendLevels(t *testing.T) {
	levels := []int16{0, 1, 1, 2, 0, 2, 2, 2, 2, 2, 2, 2, 2, 2}
	prefix := []byte{9, 9}
	buf, err := AppendLevels(prefix, levels, 2)
	require.NoError(t, err)
	assert.Equal(t, prefix, buf[:2])
	buf = buf[2:]

	n := binary.LittleEndian.Uint32(buf)
	assert.Equal(t, int(n), len(buf)-4)
	assert.LessOrEqual(t, int64(len(buf)), MaxLevelsSize(len(levels), 2))

	decoded := decodeHybrid(t, buf[4:], 2, len(levels))
	for i, l := range levels {
		assert.Equal(t, int32(l), decoded[i])
	}

	empty, err := AppendLevels(nil, levels, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, int64(0), MaxLevelsSize(10, 0))
}

func TestAppendLevelsRejectsWideLevels(t *testing.T) {
	buf, err := AppendLevels([]byte{1}, []int16{0, 300}, 300)
	require.Error(t, err)
	assert.Equal(t, []byte{1}, buf)
}

func TestAppendLevelsInPlace(t *testing.T) {
	levels := make([]int16, 100)
	for i := range levels {
		levels[i] = int16(i % 4)
	}
	dst := make([]byte, 0, MaxLevelsSize(len(levels), 3))
	buf, err := AppendLevels(dst, levels, 3)
	require.NoError(t, err)
	assert.Same(t, &dst[:1][0], &buf[0], "encoded into the caller's buffer")

	decoded := decodeHybrid(t, buf[4:], 2, len(levels))
	for i, l := range levels {
		assert.Equal(t, int32(l), decoded[i])
	}
}

func TestBitWidths(t *testing.T) {
	assert.Equal(t, 0, BitWidth(0))
	assert.Equal(t, 1, BitWidth(1))
	assert.Equal(t, 2, BitWidth(3))
	assert.Equal(t, 3, BitWidth(4))

	assert.Equal(t, 1, DictIndexBitWidth(1))
	assert.Equal(t, 1, DictIndexBitWidth(2))
	assert.Equal(t, 8, DictIndexBitWidth(256))
	assert.Equal(t, 9, DictIndexBitWidth(257))
	assert.Equal(t, 16, DictIndexBitWidth(MaxDictionaryEntries))
}
