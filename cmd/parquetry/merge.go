package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ajitpratap0/parquetry/pkg/writer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMergeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <output> <metadata>...",
		Short: "Merge standalone footer buffers into one metadata file",
		Long: `Merge combines the standalone footers written by convert --metadata-out (or
by any writer closed with a column chunk file path) into a single _metadata
file whose row groups reference every data file.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.merge(cmd.Context(), args[0], args[1:])
		},
	}
}

func (a *app) merge(ctx context.Context, output string, inputs []string) error {
	buffers := make([][]byte, 0, len(inputs))
	for _, in := range inputs {
		b, err := os.ReadFile(in) //nolint:gosec // G304: paths are command arguments
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", in, err)
		}
		buffers = append(buffers, b)
	}

	merged, err := writer.MergeRowGroupMetadata(ctx, buffers)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, merged, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	a.logger.Info("metadata merged",
		zap.Int("inputs", len(inputs)),
		zap.String("output", output),
		zap.Int("bytes", len(merged)))
	return nil
}
