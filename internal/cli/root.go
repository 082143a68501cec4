// Package cli implements the vecsearch command line tool.
package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/internal/config"
)

// version can be overridden at build time via:
// go build -ldflags "-X github.com/hupe1980/vecsearch/internal/cli.version=1.2.3"
var version = "dev"

type globalFlags struct {
	configPath string
	dir        string
	backend    string
	jsonOut    bool
}

// app carries the loaded configuration between the root command and its
// subcommands.
type app struct {
	flags globalFlags
	cfg   *config.Config
}

// NewRootCommand builds the vecsearch command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "vecsearch",
		Short:         "Vector similarity search over video transcript embeddings",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "Path to a YAML config file (default $"+config.EnvConfigFile+" or <dir>/"+config.DefaultFile+")")
	pf.StringVar(&a.flags.dir, "dir", "", "Data directory (overrides config)")
	pf.StringVar(&a.flags.backend, "backend", "", "Record store: memory, bolt, badger or sqlite (overrides config)")
	pf.BoolVar(&a.flags.jsonOut, "json", false, "Output machine-readable JSON")

	root.AddCommand(
		newCreateCommand(a),
		newDropCommand(a),
		newListCommand(a),
		newIngestCommand(a),
		newQueryCommand(a),
		newGetCommand(a),
		newDeleteCommand(a),
		newRebuildCommand(a),
		newSnapshotCommand(a),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

func (a *app) load() error {
	path := a.flags.configPath
	if path == "" && os.Getenv(config.EnvConfigFile) == "" && a.flags.dir != "" {
		if p := filepath.Join(a.flags.dir, config.DefaultFile); fileExists(p) {
			path = p
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.flags.dir != "" {
		cfg.Dir = a.flags.dir
	}
	if a.flags.backend != "" {
		b, err := vecsearch.ParseBackend(a.flags.backend)
		if err != nil {
			return err
		}
		cfg.Backend = string(b)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// withDB opens the database, runs fn and closes it again.
func (a *app) withDB(cmd *cobra.Command, fn func(ctx context.Context, db *vecsearch.DB) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openDB(ctx, a.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, db)
}

// Main is the entry point used by cmd/vecsearch.
func Main() int {
	if err := Execute(); err != nil {
		printError(os.Stderr, err)
		return 1
	}
	return 0
}
