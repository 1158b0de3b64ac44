// Package compression provides the block codecs used to compress data pages.
// Every codec compresses one independent block (a page body) at a time; the
// output of a codec must be decodable without any framing besides the
// compressed length recorded in the page header.
//
// # Algorithms
//
// The supported set is fixed:
//   - None: pages are stored as-is
//   - Snappy: raw snappy block format
//   - Gzip: one gzip member per block
//   - Brotli: one brotli stream per block
//   - Zstd: one zstd frame per block
//   - LZ4Raw: raw lz4 block format (no frame)
//
// # Basic Usage
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Default,
//	})
//
//	dst := make([]byte, comp.MaxCompressedLen(len(page)))
//	out, err := comp.Compress(dst, page)
//
// # Pooled Usage
//
// Encoders for gzip, brotli and zstd are expensive to create. A
// CompressorPool reuses them between pages and is safe for concurrent use,
// which is what BatchCompressor relies on.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Snappy represents raw snappy block compression
	Snappy Algorithm = "snappy"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Brotli represents brotli compression
	Brotli Algorithm = "brotli"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4Raw represents raw lz4 block compression
	LZ4Raw Algorithm = "lz4_raw"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Snappy, Gzip, Brotli, Zstd, LZ4Raw}

// ParseAlgorithm maps a configuration string to an Algorithm. Matching is
// case-insensitive and "uncompressed", "" and "lz4" are accepted as aliases.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "uncompressed":
		return None, nil
	case "snappy":
		return Snappy, nil
	case "gzip":
		return Gzip, nil
	case "brotli":
		return Brotli, nil
	case "zstd":
		return Zstd, nil
	case "lz4", "lz4_raw":
		return LZ4Raw, nil
	default:
		return "", fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

func (l Level) String() string {
	switch l {
	case Fastest:
		return "Fastest"
	case Default:
		return "Default"
	case Better:
		return "Better"
	case Best:
		return "Best"
	default:
		return "Unknown"
	}
}

// Compressor compresses and decompresses independent blocks.
// All implementations are safe for concurrent use.
type Compressor interface {
	// Compress compresses src, reusing dst's storage when large enough,
	// and returns the compressed block.
	Compress(dst, src []byte) ([]byte, error)

	// Decompress decompresses src. cap(dst) must be at least the
	// uncompressed size for codecs that do not record it (lz4_raw).
	Decompress(dst, src []byte) ([]byte, error)

	// MaxCompressedLen returns an upper bound of the compressed size of
	// an n byte block.
	MaxCompressedLen(n int) int

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm

	// Level returns the compression level configured.
	Level() Level
}

// Config represents compressor configuration.
type Config struct {
	Algorithm   Algorithm // Compression algorithm to use
	Level       Level     // Compression level
	Concurrency int       // Workers used by BatchCompressor
}

// DefaultConfig returns the default compression configuration: snappy,
// which is what most readers expect when nothing is configured.
func DefaultConfig() *Config {
	return &Config{
		Algorithm:   Snappy,
		Level:       Default,
		Concurrency: 4,
	}
}

// NewCompressor creates a new compressor based on the provided configuration.
// If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Level == 0 {
		config.Level = Default
	}

	switch config.Algorithm {
	case None:
		return &noneCompressor{baseCompressor{algorithm: None, level: config.Level}}, nil
	case Snappy:
		return &snappyCompressor{baseCompressor{algorithm: Snappy, level: config.Level}}, nil
	case Gzip:
		return newGzipCompressor(config), nil
	case Brotli:
		return newBrotliCompressor(config), nil
	case Zstd:
		return newZstdCompressor(config)
	case LZ4Raw:
		return &lz4RawCompressor{baseCompressor{algorithm: LZ4Raw, level: config.Level}}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// Base compressor implementation
type baseCompressor struct {
	algorithm Algorithm
	level     Level
}

// Algorithm returns the compression algorithm
func (bc *baseCompressor) Algorithm() Algorithm {
	return bc.algorithm
}

// Level returns the compression level
func (bc *baseCompressor) Level() Level {
	return bc.level
}

// None compressor (no compression)
type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (nc *noneCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (nc *noneCompressor) MaxCompressedLen(n int) int { return n }

// Snappy compressor
type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst[:cap(dst)], src), nil
}

func (sc *snappyCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return snappy.Decode(dst[:cap(dst)], src)
}

func (sc *snappyCompressor) MaxCompressedLen(n int) int {
	return snappy.MaxEncodedLen(n)
}

// Gzip compressor
type gzipCompressor struct {
	baseCompressor
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCompressor(config *Config) *gzipCompressor {
	level := mapGzipLevel(config.Level)

	gc := &gzipCompressor{
		baseCompressor: baseCompressor{algorithm: Gzip, level: config.Level},
	}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCompressor) Compress(dst, src []byte) ([]byte, error) {
	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	buf := bytes.NewBuffer(dst[:0])
	w.Reset(buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(dst, src []byte) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(src)); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(dst[:0])
	if _, err := io.Copy(buf, r); err != nil { //nolint:gosec // G110: pages are bounded by the page size limit
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) MaxCompressedLen(n int) int {
	// deflate stored blocks cost 5 bytes per 64KiB, plus gzip header and trailer
	return n + (n>>12) + (n>>14) + (n>>25) + 64
}

// Brotli compressor
type brotliCompressor struct {
	baseCompressor
	writerPool sync.Pool
}

func newBrotliCompressor(config *Config) *brotliCompressor {
	level := mapBrotliLevel(config.Level)

	bc := &brotliCompressor{
		baseCompressor: baseCompressor{algorithm: Brotli, level: config.Level},
	}
	bc.writerPool.New = func() interface{} {
		return brotli.NewWriterLevel(nil, level)
	}
	return bc
}

func (bc *brotliCompressor) Compress(dst, src []byte) ([]byte, error) {
	w := bc.writerPool.Get().(*brotli.Writer)
	defer bc.writerPool.Put(w)

	buf := bytes.NewBuffer(dst[:0])
	w.Reset(buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (bc *brotliCompressor) Decompress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	if _, err := io.Copy(buf, brotli.NewReader(bytes.NewReader(src))); err != nil { //nolint:gosec // G110: bounded by page size
		return nil, err
	}
	return buf.Bytes(), nil
}

func (bc *brotliCompressor) MaxCompressedLen(n int) int {
	return n + (n >> 10) + 1024
}

// Zstd compressor
type zstdCompressor struct {
	baseCompressor
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor(config *Config) (*zstdCompressor, error) {
	// EncodeAll and DecodeAll are safe for concurrent use, so one instance
	// of each serves every page.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(mapZstdLevel(config.Level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &zstdCompressor{
		baseCompressor: baseCompressor{algorithm: Zstd, level: config.Level},
		encoder:        enc,
		decoder:        dec,
	}, nil
}

func (zc *zstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	return zc.encoder.EncodeAll(src, dst[:0]), nil
}

func (zc *zstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	return zc.decoder.DecodeAll(src, dst[:0])
}

func (zc *zstdCompressor) MaxCompressedLen(n int) int {
	bound := n + (n >> 8) + 64
	if n < 128<<10 {
		bound += ((128 << 10) - n) >> 11
	}
	return bound
}

// LZ4 raw block compressor
type lz4RawCompressor struct {
	baseCompressor
}

func (lc *lz4RawCompressor) Compress(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		// a block holding a single empty-literal token
		return append(dst[:0], 0), nil
	}

	bound := lz4.CompressBlockBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	dst = dst[:bound]

	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func (lc *lz4RawCompressor) Decompress(dst, src []byte) ([]byte, error) {
	n, err := lz4.UncompressBlock(src, dst[:cap(dst)])
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func (lc *lz4RawCompressor) MaxCompressedLen(n int) int {
	if n == 0 {
		return 1
	}
	return lz4.CompressBlockBound(n)
}

// CompressorPool provides pooled compressors, reusing compressor instances
// with expensive initialization. CompressorPool is safe for concurrent use.
type CompressorPool struct {
	pool   sync.Pool
	config *Config
	proto  Compressor
}

// NewCompressorPool creates a new compressor pool with the specified configuration.
func NewCompressorPool(config *Config) (*CompressorPool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	proto, err := NewCompressor(config)
	if err != nil {
		return nil, err
	}

	cp := &CompressorPool{config: config, proto: proto}
	cp.pool.New = func() interface{} {
		comp, err := NewCompressor(config)
		if err != nil {
			return proto
		}
		return comp
	}
	cp.pool.Put(proto)
	return cp, nil
}

// Get gets a compressor from pool
func (cp *CompressorPool) Get() Compressor {
	return cp.pool.Get().(Compressor)
}

// Put returns compressor to pool
func (cp *CompressorPool) Put(c Compressor) {
	cp.pool.Put(c)
}

// Algorithm returns the pool's algorithm
func (cp *CompressorPool) Algorithm() Algorithm {
	return cp.config.Algorithm
}

// MaxCompressedLen returns the codec bound for an n byte block
func (cp *CompressorPool) MaxCompressedLen(n int) int {
	return cp.proto.MaxCompressedLen(n)
}

// Compress compresses data using a pooled compressor
func (cp *CompressorPool) Compress(dst, src []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)
	return c.Compress(dst, src)
}

// Decompress decompresses data using a pooled compressor
func (cp *CompressorPool) Decompress(dst, src []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)
	return c.Decompress(dst, src)
}

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	case Better:
		return 7
	default:
		return gzip.DefaultCompression
	}
}

func mapBrotliLevel(level Level) int {
	switch level {
	case Fastest:
		return brotli.BestSpeed
	case Best:
		return brotli.BestCompression
	case Better:
		return 8
	default:
		return brotli.DefaultCompression
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
