// Package config provides the writer configuration for parquetry.
//
// A single WriterConfig structure controls one writer instance. It is
// organized into a few top-level knobs plus two sections:
//   - Layout: fragment size and the row group and page ceilings
//   - Memory: the batch ceiling and the accelerator memory limit
//
// # Usage
//
// ## Defaults
//
//	cfg := config.Default()
//	cfg.Compression = "zstd"
//	cfg.Chunked = true
//
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// ## Loading from YAML
//
//	cfg, err := config.LoadWriterConfig("writer.yaml")
//
// Keys the file omits keep their defaults; explicit zero values are replaced
// by defaults before validation.
//
// ## Environment Variable Substitution
//
//	# writer.yaml
//	compression: ${PARQUET_CODEC}
//	metadata:
//	  origin: ${HOSTNAME}
//
// # Configuration Structure
//
//	compression: snappy          # none, snappy, gzip, brotli, zstd, lz4_raw
//	compression_level: 5
//	statistics: rowgroup         # none, rowgroup, page
//	enable_dictionary: true
//	int96_timestamps: false
//	chunked: false
//	decimal_precisions: [10, 4]
//	required_columns: [id]     # chunked mode only
//	layout:
//	  fragment_rows: 5000
//	  row_group_max_bytes: 134217728
//	  row_group_max_rows: 1000000
//	  page_max_bytes: 524288
//	  page_max_rows: 20000
//	memory:
//	  max_batch_bytes: 1073741824
//	  device_memory_limit: 0     # 0 = half of available host memory
//	created_by: parquetry
//
// # Validation
//
// Validate reports configuration errors as *pqerrors.Error values of type
// config (or invalid_decimal_spec for precision entries out of range). An
// unknown compression name matches pqerrors.ErrUnsupportedCodec.
package config
