package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"unicode/utf8"

	"github.com/ajitpratap0/parquetry/pkg/metrics"
	"github.com/ajitpratap0/parquetry/pkg/sink"
	"github.com/ajitpratap0/parquetry/pkg/table"
	"github.com/ajitpratap0/parquetry/pkg/writer"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type convertOptions struct {
	chunkRows    int
	delimiter    string
	nullValues   []string
	metadataOut  string
	metadataPath string
}

func newConvertCommand(a *app) *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert <input.csv> <destination>",
		Short: "Convert a CSV file into a Parquet file",
		Long: `Convert reads a CSV file with a header row, infers column types and writes
one chunked Parquet file. The destination is a local path, s3://bucket/key
or gs://bucket/object.

Example:
  parquetry convert events.csv s3://lake/events/part-0.parquet --compression zstd`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convert(cmd.Context(), args[0], args[1], opts)
		},
	}
	cmd.Flags().IntVar(&opts.chunkRows, "chunk-rows", 100000, "Rows per CSV record batch; each batch is one write call")
	cmd.Flags().StringVar(&opts.delimiter, "delimiter", ",", "CSV field delimiter")
	cmd.Flags().StringSliceVar(&opts.nullValues, "null-values", []string{""}, "Strings read as null")
	cmd.Flags().StringVar(&opts.metadataOut, "metadata-out", "", "Also write a standalone footer buffer to this local path")
	cmd.Flags().StringVar(&opts.metadataPath, "metadata-file-path", "", "File path recorded in every column chunk of the standalone footer (default: destination base name)")
	return cmd
}

func (a *app) convert(ctx context.Context, input, destination string, opts convertOptions) error {
	cfg, err := writerConfig(a.v)
	if err != nil {
		return err
	}
	cfg.Chunked = true

	comma, size := utf8.DecodeRuneInString(opts.delimiter)
	if size == 0 || size != len(opts.delimiter) {
		return fmt.Errorf("delimiter must be a single character, got %q", opts.delimiter)
	}

	f, err := os.Open(input) //nolint:gosec // G304: input path is the command argument
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	rdr := csv.NewInferringReader(f,
		csv.WithHeader(true),
		csv.WithComma(comma),
		csv.WithChunk(opts.chunkRows),
		csv.WithNullReader(true, opts.nullValues...),
	)
	defer rdr.Release()

	snk, err := sink.Open(ctx, destination, a.logger)
	if err != nil {
		return err
	}
	w, err := writer.New(snk, cfg, writer.WithLogger(a.logger))
	if err != nil {
		_ = snk.Close(ctx)
		return err
	}

	tracker := metrics.NewThroughputTracker(metrics.Default(), "csv")
	var rows int64
	for rdr.Next() {
		rec := rdr.Record()
		if err := w.Write(ctx, table.FromRecord(rec)); err != nil {
			_, _ = w.Close(ctx, "")
			return fmt.Errorf("write failed after %d rows: %w", rows, err)
		}
		rows += rec.NumRows()
		tracker.Increment(rec.NumRows())
	}
	if err := rdr.Err(); err != nil {
		_, _ = w.Close(ctx, "")
		return fmt.Errorf("failed to read csv after %d rows: %w", rows, err)
	}

	chunkPath := ""
	if opts.metadataOut != "" {
		chunkPath = opts.metadataPath
		if chunkPath == "" {
			chunkPath = path.Base(destination)
		}
	}
	md, err := w.Close(ctx, chunkPath)
	if err != nil {
		return err
	}
	if opts.metadataOut != "" {
		if err := os.WriteFile(opts.metadataOut, md, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("failed to write metadata file: %w", err)
		}
	}

	a.logger.Info("conversion completed",
		zap.String("input", input),
		zap.String("destination", destination),
		zap.Int64("rows", rows),
		zap.Int64("bytes", snk.BytesWritten()),
		zap.Float64("rows_per_second", tracker.GetAndReset()))
	return nil
}
