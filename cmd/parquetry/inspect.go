package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ajitpratap0/parquetry/pkg/format"
	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newInspectCommand(a *app) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the footer of a Parquet file or metadata buffer as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspect(cmd.Context(), cmd.OutOrStdout(), args[0], summary)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print row, row group and column counts only")
	return cmd
}

func (a *app) inspect(ctx context.Context, out io.Writer, path string, summary bool) error {
	buf, err := readFooterBuffer(path)
	if err != nil {
		return err
	}
	md, err := format.ReadFileMetaData(ctx, buf)
	if err != nil {
		return err
	}

	if summary {
		createdBy := ""
		if md.CreatedBy != nil {
			createdBy = *md.CreatedBy
		}
		fmt.Fprintf(out, "rows:       %d\n", md.NumRows)
		fmt.Fprintf(out, "row groups: %d\n", len(md.RowGroups))
		fmt.Fprintf(out, "columns:    %d\n", md.NumLeaves())
		fmt.Fprintf(out, "created by: %s\n", createdBy)
		return nil
	}

	b, err := gojson.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

// readFooterBuffer reads the header magic and the footer of a file without
// loading its row groups, returning them as a standalone metadata buffer.
func readFooterBuffer(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is the command argument
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	minSize := int64(len(format.Magic) + format.TrailerSize)
	if size < minSize {
		return nil, fmt.Errorf("%s is too small to be a parquet file (%d bytes)", path, size)
	}

	head := make([]byte, len(format.Magic))
	if _, err := f.ReadAt(head, 0); err != nil {
		return nil, err
	}
	trailer := make([]byte, format.TrailerSize)
	if _, err := f.ReadAt(trailer, size-format.TrailerSize); err != nil {
		return nil, err
	}
	n := int64(binary.LittleEndian.Uint32(trailer))
	if n > size-minSize {
		n = size - minSize
	}
	footer := make([]byte, n)
	if _, err := f.ReadAt(footer, size-format.TrailerSize-n); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(head)+len(footer)+len(trailer))
	buf = append(buf, head...)
	buf = append(buf, footer...)
	return append(buf, trailer...), nil
}
