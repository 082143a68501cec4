package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/ingest"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

func newQueryCommand(a *app) *cobra.Command {
	var (
		vector  string
		text    string
		topK    int
		where   []string
		idsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "query NAME",
		Short: "Find the records most similar to a vector or a text",
		Example: `  vecsearch query videos --vector "[0.1, 0.2, 0.3]" -k 5
  vecsearch query videos --text "goroutines" --where "view_count>=1000" --where "channel_title=Go"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (vector == "") == (text == "") {
				return errors.New("exactly one of --vector or --text is required")
			}
			filters, err := parseFilters(where)
			if err != nil {
				return err
			}
			opts := []vecsearch.QueryOption{vecsearch.WithFilters(filters...)}
			if idsOnly {
				opts = append(opts, vecsearch.WithoutDocuments())
			}

			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				var results []model.Result
				if text != "" {
					results, err = db.QueryText(ctx, args[0], text, topK, opts...)
				} else {
					var q []float32
					q, err = ingest.ParseVector(vector)
					if err != nil {
						return fmt.Errorf("--vector: %w", err)
					}
					results, err = db.Query(ctx, args[0], q, topK, opts...)
				}
				if err != nil {
					return err
				}

				if a.flags.jsonOut {
					return printJSON(cmd.OutOrStdout(), viewResults(results))
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tID\tSCORE\tTITLE")
				for i, r := range results {
					fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", i+1, r.ID, r.Score, r.Metadata["title"].StringValue())
				}
				return tw.Flush()
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&vector, "vector", "", "Query vector literal, e.g. \"[0.1, 0.2]\"")
	f.StringVar(&text, "text", "", "Query text (requires an embedder)")
	f.IntVarP(&topK, "top-k", "k", vecsearch.DefaultTopK, "Number of results")
	f.StringArrayVar(&where, "where", nil, "Metadata filter KEY OP VALUE with OP one of = != > >= < <= ~ (repeatable, combined with AND)")
	f.BoolVar(&idsOnly, "no-documents", false, "Skip loading document text")
	return cmd
}

// filterOps is ordered so two-character operators match first.
var filterOps = []struct {
	token string
	op    metadata.Operator
}{
	{">=", metadata.OpGreaterEqual},
	{"<=", metadata.OpLessEqual},
	{"!=", metadata.OpNotEqual},
	{"=", metadata.OpEqual},
	{">", metadata.OpGreaterThan},
	{"<", metadata.OpLessThan},
	{"~", metadata.OpContains},
}

func parseFilters(exprs []string) ([]metadata.Filter, error) {
	out := make([]metadata.Filter, 0, len(exprs))
	for _, expr := range exprs {
		f, err := parseFilter(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func parseFilter(expr string) (metadata.Filter, error) {
	pos, width := -1, 0
	var op metadata.Operator
	for _, cand := range filterOps {
		i := strings.Index(expr, cand.token)
		if i < 0 {
			continue
		}
		if pos < 0 || i < pos || (i == pos && len(cand.token) > width) {
			pos, width, op = i, len(cand.token), cand.op
		}
	}
	if pos <= 0 {
		return metadata.Filter{}, fmt.Errorf("--where %q: want KEY OP VALUE", expr)
	}

	key := strings.TrimSpace(expr[:pos])
	raw := strings.TrimSpace(expr[pos+width:])
	if op == metadata.OpContains {
		return metadata.Contains(key, unquote(raw)), nil
	}
	return metadata.Filter{Key: key, Operator: op, Value: parseValue(raw)}, nil
}

func parseValue(raw string) metadata.Value {
	if q := unquote(raw); q != raw {
		return metadata.String(q)
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return metadata.Int(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return metadata.Float(f)
	}
	switch strings.ToLower(raw) {
	case "true":
		return metadata.Bool(true)
	case "false":
		return metadata.Bool(false)
	case "null":
		return metadata.Null()
	}
	return metadata.String(raw)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
