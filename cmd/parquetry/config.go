package main

import (
	"maps"

	"github.com/ajitpratap0/parquetry/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config <output.yaml>",
		Short: "Write the effective writer configuration as YAML",
		Long: `Config resolves defaults, the --config file, PARQUETRY_* environment variables
and flags exactly as convert and ingest do, and saves the result so it can be
passed back with --config.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := writerConfig(a.v)
			if err != nil {
				return err
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			a.logger.Info("configuration saved", zap.String("path", args[0]), zap.String("compression", cfg.Compression))
			return nil
		},
	}
}

// addWriterFlags declares one flag per WriterConfig field. Every flag can
// also be set through PARQUETRY_<FLAG_NAME> in the environment.
func addWriterFlags(flags *pflag.FlagSet) {
	d := config.Default()
	flags.String("config", "", "YAML writer configuration file")
	flags.String("compression", d.Compression, "Page codec (none, snappy, gzip, brotli, zstd, lz4_raw)")
	flags.Int("compression-level", d.CompressionLevel, "Codec level for codecs that support one")
	flags.String("statistics", string(d.Statistics), "Statistics level (none, rowgroup, page)")
	flags.Bool("dictionary", d.EnableDictionary, "Dictionary encode columns where it pays off")
	flags.Bool("int96-timestamps", false, "Write timestamps as legacy INT96 values")
	flags.IntSlice("decimal-precisions", nil, "Decimal precisions, one per decimal column in column order")
	flags.StringSlice("required-columns", nil, "Columns written as REQUIRED in chunked mode")
	flags.Int("fragment-rows", d.Layout.FragmentRows, "Rows per planning fragment")
	flags.Int64("row-group-max-bytes", d.Layout.RowGroupMaxBytes, "Byte ceiling of one row group")
	flags.Int64("row-group-max-rows", d.Layout.RowGroupMaxRows, "Row ceiling of one row group")
	flags.Int64("page-max-bytes", d.Layout.PageMaxBytes, "Byte ceiling of one data page")
	flags.Int64("page-max-rows", d.Layout.PageMaxRows, "Row ceiling of one data page")
	flags.Int64("max-batch-bytes", d.Memory.MaxBatchBytes, "Accelerator buffer ceiling of one encode batch")
	flags.Int64("device-memory-limit", 0, "Accelerator memory cap; 0 derives it from available host memory")
	flags.StringToString("metadata", nil, "Footer key/value metadata (k1=v1,k2=v2)")
	flags.String("created-by", d.CreatedBy, "Producer name written to the footer")
}

// writerConfig builds the writer configuration: defaults, then the YAML file
// named by --config, then flags and environment overrides.
func writerConfig(v *viper.Viper) (*config.WriterConfig, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadWriterConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet("compression") {
		cfg.Compression = v.GetString("compression")
	}
	if v.IsSet("compression-level") {
		cfg.CompressionLevel = v.GetInt("compression-level")
	}
	if v.IsSet("statistics") {
		cfg.Statistics = config.StatisticsLevel(v.GetString("statistics"))
	}
	if v.IsSet("dictionary") {
		cfg.EnableDictionary = v.GetBool("dictionary")
	}
	if v.IsSet("int96-timestamps") {
		cfg.Int96Timestamps = v.GetBool("int96-timestamps")
	}
	if v.IsSet("decimal-precisions") {
		cfg.DecimalPrecisions = v.GetIntSlice("decimal-precisions")
	}
	if v.IsSet("required-columns") {
		cfg.RequiredColumns = v.GetStringSlice("required-columns")
	}
	if v.IsSet("fragment-rows") {
		cfg.Layout.FragmentRows = v.GetInt("fragment-rows")
	}
	if v.IsSet("row-group-max-bytes") {
		cfg.Layout.RowGroupMaxBytes = v.GetInt64("row-group-max-bytes")
	}
	if v.IsSet("row-group-max-rows") {
		cfg.Layout.RowGroupMaxRows = v.GetInt64("row-group-max-rows")
	}
	if v.IsSet("page-max-bytes") {
		cfg.Layout.PageMaxBytes = v.GetInt64("page-max-bytes")
	}
	if v.IsSet("page-max-rows") {
		cfg.Layout.PageMaxRows = v.GetInt64("page-max-rows")
	}
	if v.IsSet("max-batch-bytes") {
		cfg.Memory.MaxBatchBytes = v.GetInt64("max-batch-bytes")
	}
	if v.IsSet("device-memory-limit") {
		cfg.Memory.DeviceMemoryLimit = v.GetInt64("device-memory-limit")
	}
	if v.IsSet("metadata") {
		if cfg.Metadata == nil {
			cfg.Metadata = make(map[string]string)
		}
		maps.Copy(cfg.Metadata, v.GetStringMapString("metadata"))
	}
	if v.IsSet("created-by") {
		cfg.CreatedBy = v.GetString("created-by")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
