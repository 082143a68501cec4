package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/ingest"
)

func newIngestCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ingest NAME FILE",
		Short: "Load rows from a CSV or JSON lines file (\"-\" reads stdin)",
		Long: `Load rows into a collection. Every row needs an id column (id, video_id
or videoId) and an embedding column (embedding, vector, ...) holding a
vector literal such as "[0.1, 0.2]". Rows without a vector are embedded
from their transcript or title when an embedder is configured.

Rows that cannot be used are skipped and reported; the others are stored.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openInput(cmd, args[1])
			if err != nil {
				return err
			}
			defer closeFn()

			rows, readErr := readRows(r, format, args[1])
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				summary, err := db.Ingest(ctx, args[0], rows)
				if err != nil {
					return err
				}
				if err := readErr(); err != nil {
					return fmt.Errorf("read %s: %w (%d rows stored before the error)", args[1], err, summary.InsertedCount)
				}
				return printSummary(cmd.OutOrStdout(), summary, a.flags.jsonOut)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Input format: csv or jsonl (default from the file extension, else csv)")
	return cmd
}

func openInput(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// readRows returns a single-use row sequence and a function reporting the
// read error that ended it early, if any.
func readRows(r io.Reader, format, name string) (iter.Seq[ingest.Row], func() error) {
	if format == "" {
		format = "csv"
		if strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".ndjson") {
			format = "jsonl"
		}
	}

	var err error
	errFn := func() error { return err }

	switch format {
	case "csv":
		return func(yield func(ingest.Row) bool) {
			err = readCSV(r, yield)
		}, errFn
	case "jsonl":
		return func(yield func(ingest.Row) bool) {
			err = readJSONLines(r, yield)
		}, errFn
	default:
		err = fmt.Errorf("unknown format %q (want csv or jsonl)", format)
		return func(func(ingest.Row) bool) {}, errFn
	}
}

// readCSV yields one row per record keyed by the header line.
func readCSV(r io.Reader, yield func(ingest.Row) bool) error {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		row := make(ingest.Row, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		if !yield(row) {
			return nil
		}
	}
}

// readJSONLines yields one row per non-blank line.
func readJSONLines(r io.Reader, yield func(ingest.Row) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(strings.TrimSpace(string(b))) == 0 {
			continue
		}
		var row ingest.Row
		if err := json.Unmarshal(b, &row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !yield(row) {
			return nil
		}
	}
	return sc.Err()
}

func printSummary(w io.Writer, s ingest.Summary, asJSON bool) error {
	if asJSON {
		if s.Rejections == nil {
			s.Rejections = []ingest.Rejection{}
		}
		return printJSON(w, s)
	}
	fmt.Fprintf(w, "inserted %d, skipped %d\n", s.InsertedCount, s.SkippedCount)
	for _, r := range s.Rejections {
		fmt.Fprintf(w, "  %v\n", r)
	}
	return nil
}

func newGetCommand(a *app) *cobra.Command {
	var withVector bool
	cmd := &cobra.Command{
		Use:   "get NAME ID",
		Short: "Print a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				rec, err := db.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), viewRecord(rec, withVector))
			})
		},
	}
	cmd.Flags().BoolVar(&withVector, "vector", false, "Include the vector")
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME ID...",
		Short: "Delete records by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				n, err := db.Delete(ctx, args[0], args[1:])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d\n", n, len(args)-1)
				return nil
			})
		},
	}
}
