package config

import (
	"fmt"

	"github.com/ajitpratap0/parquetry/pkg/compression"
	"github.com/ajitpratap0/parquetry/pkg/pqerrors"
	"github.com/shirou/gopsutil/v3/mem"
)

// StatisticsLevel selects the granularity at which column statistics are
// collected and written.
type StatisticsLevel string

const (
	// StatisticsNone disables statistics and column orders
	StatisticsNone StatisticsLevel = "none"
	// StatisticsRowGroup writes chunk level statistics only
	StatisticsRowGroup StatisticsLevel = "rowgroup"
	// StatisticsPage writes page level statistics in every data page header
	// in addition to chunk level statistics
	StatisticsPage StatisticsLevel = "page"
)

// Enabled reports whether any statistics are collected.
func (s StatisticsLevel) Enabled() bool {
	return s == StatisticsRowGroup || s == StatisticsPage
}

const (
	// DefaultFragmentRows is the row count of one planning fragment.
	DefaultFragmentRows = 5000
	// DefaultRowGroupMaxBytes is the byte ceiling of one row group.
	DefaultRowGroupMaxBytes = 128 * 1024 * 1024
	// DefaultRowGroupMaxRows is the row ceiling of one row group.
	DefaultRowGroupMaxRows = 1000000
	// DefaultPageMaxBytes is the byte ceiling of one data page.
	DefaultPageMaxBytes = 512 * 1024
	// DefaultPageMaxRows is the row ceiling of one data page.
	DefaultPageMaxRows = 20000
	// DefaultMaxBatchBytes bounds the buffers of one encode batch.
	DefaultMaxBatchBytes = 1 << 30
	// DefaultCreatedBy is written to the footer when nothing else is set.
	DefaultCreatedBy = "parquetry"

	fallbackDeviceMemory = 4 << 30
)

// WriterConfig is the complete configuration of one writer instance.
type WriterConfig struct {
	// Compression names the page codec (none, snappy, gzip, brotli, zstd, lz4_raw)
	Compression string `yaml:"compression" json:"compression"`
	// CompressionLevel is passed to codecs that support levels (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
	// Statistics selects none, rowgroup or page statistics
	Statistics StatisticsLevel `yaml:"statistics" json:"statistics"`
	// EnableDictionary allows dictionary encoding where it pays off
	EnableDictionary bool `yaml:"enable_dictionary" json:"enable_dictionary"`
	// Int96Timestamps writes timestamps as legacy INT96 values
	Int96Timestamps bool `yaml:"int96_timestamps" json:"int96_timestamps"`
	// Chunked allows more than one Write call per output
	Chunked bool `yaml:"chunked" json:"chunked"`
	// DecimalPrecisions overrides the precision of decimal columns, in column order
	DecimalPrecisions []int `yaml:"decimal_precisions" json:"decimal_precisions"`
	// RequiredColumns names columns written as REQUIRED at every level in
	// chunked mode, where columns are otherwise nullable throughout
	RequiredColumns []string `yaml:"required_columns" json:"required_columns"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`
	Memory MemoryConfig `yaml:"memory" json:"memory"`

	// Metadata is written as footer key/value metadata
	Metadata map[string]string `yaml:"metadata" json:"metadata"`
	// CreatedBy identifies the producer in the footer
	CreatedBy string `yaml:"created_by" json:"created_by"`
}

// LayoutConfig controls row group and page boundaries.
type LayoutConfig struct {
	FragmentRows     int   `yaml:"fragment_rows" json:"fragment_rows"`
	RowGroupMaxBytes int64 `yaml:"row_group_max_bytes" json:"row_group_max_bytes"`
	RowGroupMaxRows  int64 `yaml:"row_group_max_rows" json:"row_group_max_rows"`
	PageMaxBytes     int64 `yaml:"page_max_bytes" json:"page_max_bytes"`
	PageMaxRows      int64 `yaml:"page_max_rows" json:"page_max_rows"`
}

// MemoryConfig bounds accelerator memory.
type MemoryConfig struct {
	// MaxBatchBytes is the ceiling of one batch's buffer requirement
	MaxBatchBytes int64 `yaml:"max_batch_bytes" json:"max_batch_bytes"`
	// DeviceMemoryLimit caps all arenas of one writer; 0 derives it from the host
	DeviceMemoryLimit int64 `yaml:"device_memory_limit" json:"device_memory_limit"`
}

// Default returns a WriterConfig with production defaults: snappy pages,
// rowgroup statistics, dictionary encoding enabled, single-write mode.
func Default() *WriterConfig {
	return &WriterConfig{
		Compression:      string(compression.Snappy),
		CompressionLevel: int(compression.Default),
		Statistics:       StatisticsRowGroup,
		EnableDictionary: true,
		Layout: LayoutConfig{
			FragmentRows:     DefaultFragmentRows,
			RowGroupMaxBytes: DefaultRowGroupMaxBytes,
			RowGroupMaxRows:  DefaultRowGroupMaxRows,
			PageMaxBytes:     DefaultPageMaxBytes,
			PageMaxRows:      DefaultPageMaxRows,
		},
		Memory: MemoryConfig{
			MaxBatchBytes:     DefaultMaxBatchBytes,
			DeviceMemoryLimit: DefaultDeviceMemoryLimit(),
		},
		Metadata:  make(map[string]string),
		CreatedBy: DefaultCreatedBy,
	}
}

// DefaultDeviceMemoryLimit returns half of the currently available host
// memory, or 4GiB when that cannot be determined.
func DefaultDeviceMemoryLimit() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return fallbackDeviceMemory
	}
	return int64(vm.Available / 2)
}

// ApplyDefaults fills zero values with defaults. Load calls it so that a
// config file only needs to name what it changes.
func (c *WriterConfig) ApplyDefaults() {
	d := Default()
	if c.Compression == "" {
		c.Compression = d.Compression
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = d.CompressionLevel
	}
	if c.Statistics == "" {
		c.Statistics = d.Statistics
	}
	if c.Layout.FragmentRows == 0 {
		c.Layout.FragmentRows = d.Layout.FragmentRows
	}
	if c.Layout.RowGroupMaxBytes == 0 {
		c.Layout.RowGroupMaxBytes = d.Layout.RowGroupMaxBytes
	}
	if c.Layout.RowGroupMaxRows == 0 {
		c.Layout.RowGroupMaxRows = d.Layout.RowGroupMaxRows
	}
	if c.Layout.PageMaxBytes == 0 {
		c.Layout.PageMaxBytes = d.Layout.PageMaxBytes
	}
	if c.Layout.PageMaxRows == 0 {
		c.Layout.PageMaxRows = d.Layout.PageMaxRows
	}
	if c.Memory.MaxBatchBytes == 0 {
		c.Memory.MaxBatchBytes = d.Memory.MaxBatchBytes
	}
	if c.Memory.DeviceMemoryLimit == 0 {
		c.Memory.DeviceMemoryLimit = d.Memory.DeviceMemoryLimit
	}
	if c.CreatedBy == "" {
		c.CreatedBy = d.CreatedBy
	}
}

// Validate checks the configuration. Every failure is a configuration error;
// an unknown codec matches ErrUnsupportedCodec.
func (c *WriterConfig) Validate() error {
	if _, err := c.Codec(); err != nil {
		return err
	}
	switch c.Statistics {
	case StatisticsNone, StatisticsRowGroup, StatisticsPage:
	default:
		return pqerrors.Newf(pqerrors.ErrorTypeConfig, "unknown statistics level %q", c.Statistics)
	}
	if c.Layout.FragmentRows <= 0 {
		return pqerrors.New(pqerrors.ErrorTypeConfig, "fragment_rows must be positive")
	}
	if c.Layout.RowGroupMaxBytes <= 0 || c.Layout.RowGroupMaxRows <= 0 {
		return pqerrors.New(pqerrors.ErrorTypeConfig, "row group ceilings must be positive")
	}
	if c.Layout.PageMaxBytes <= 0 || c.Layout.PageMaxRows <= 0 {
		return pqerrors.New(pqerrors.ErrorTypeConfig, "page ceilings must be positive")
	}
	if c.Memory.MaxBatchBytes <= 0 {
		return pqerrors.New(pqerrors.ErrorTypeConfig, "max_batch_bytes must be positive")
	}
	if c.Memory.DeviceMemoryLimit < 0 {
		return pqerrors.New(pqerrors.ErrorTypeConfig, "device_memory_limit cannot be negative")
	}
	for i, p := range c.DecimalPrecisions {
		if p <= 0 || p > 38 {
			return pqerrors.Newf(pqerrors.ErrorTypeInvalidDecimal, "decimal precision %d out of range", p).
				WithDetail("index", i)
		}
	}
	return nil
}

// Codec resolves the configured compression name.
func (c *WriterConfig) Codec() (compression.Algorithm, error) {
	alg, err := compression.ParseAlgorithm(c.Compression)
	if err != nil {
		return "", pqerrors.Wrap(err, pqerrors.ErrorTypeConfig, fmt.Sprintf("compression %q", c.Compression))
	}
	return alg, nil
}

// Clone returns a deep copy.
func (c *WriterConfig) Clone() *WriterConfig {
	out := *c
	if c.DecimalPrecisions != nil {
		out.DecimalPrecisions = append([]int(nil), c.DecimalPrecisions...)
	}
	if c.RequiredColumns != nil {
		out.RequiredColumns = append([]string(nil), c.RequiredColumns...)
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
