package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/model"
)

func newCreateCommand(a *app) *cobra.Command {
	var (
		dim    int
		metric string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a collection (idempotent for the same dimension and metric)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := vecsearch.ParseMetric(metric)
			if err != nil {
				return err
			}
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				c, err := db.CreateCollection(ctx, args[0], dim, m)
				if err != nil {
					return err
				}
				if a.flags.jsonOut {
					return printJSON(cmd.OutOrStdout(), c.Info())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "collection %s dimension=%d metric=%s\n", c.Name(), c.Dimension(), c.Metric())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension")
	cmd.Flags().StringVar(&metric, "metric", "cosine", "Similarity metric: cosine, l2 or dot")
	_ = cmd.MarkFlagRequired("dim")
	return cmd
}

func newDropCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop NAME",
		Short: "Delete a collection with all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				if err := db.DropCollection(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
				return nil
			})
		},
	}
}

func newListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				infos, err := db.ListCollections(ctx)
				if err != nil {
					return err
				}
				if a.flags.jsonOut {
					if infos == nil {
						infos = []model.CollectionInfo{}
					}
					return printJSON(cmd.OutOrStdout(), infos)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tDIMENSION\tMETRIC")
				for _, info := range infos {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.Dimension, info.Metric)
				}
				return tw.Flush()
			})
		},
	}
}

func newRebuildCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild NAME",
		Short: "Rebuild a collection's index from its record store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				c, err := db.Collection(ctx, args[0])
				if err != nil {
					return err
				}
				if err := c.Rebuild(ctx); err != nil {
					return err
				}
				n, err := c.Count(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s: %d records\n", c.Name(), n)
				return nil
			})
		},
	}
}

func newSnapshotCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot NAME",
		Short: "Write an index snapshot for faster startup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd, func(ctx context.Context, db *vecsearch.DB) error {
				c, err := db.Collection(ctx, args[0])
				if err != nil {
					return err
				}
				if err := c.Snapshot(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot written for %s\n", c.Name())
				return nil
			})
		},
	}
}
