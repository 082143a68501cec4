// Package config loads settings for the vecsearch command line tool.
//
// Values come from three layers, later ones winning: built-in defaults,
// an optional YAML file, and VECSEARCH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecsearch/codec"
)

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "VECSEARCH"
	// EnvConfigFile names the variable that points at a YAML config file.
	EnvConfigFile = "VECSEARCH_CONFIG"
	// DefaultFile is looked up in the data directory when no file is given.
	DefaultFile = "vecsearch.yaml"
)

// Backends accepted for Config.Backend.
var Backends = []string{"memory", "bolt", "badger", "sqlite"}

// Config is the complete CLI configuration.
type Config struct {
	Dir               string `yaml:"dir" envconfig:"DIR"`
	Backend           string `yaml:"backend" envconfig:"BACKEND"`
	Codec             string `yaml:"codec" envconfig:"CODEC"`
	Compression       string `yaml:"compression" envconfig:"COMPRESSION"`
	IngestConcurrency int    `yaml:"ingest_concurrency" envconfig:"INGEST_CONCURRENCY"`

	Log       LogConfig      `yaml:"log" envconfig:"LOG"`
	Snapshots SnapshotConfig `yaml:"snapshots" envconfig:"SNAPSHOTS"`
	Catalog   CatalogConfig  `yaml:"catalog" envconfig:"CATALOG"`
	Embed     EmbedConfig    `yaml:"embed" envconfig:"EMBED"`
	Resources ResourceConfig `yaml:"resources" envconfig:"RESOURCES"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"` // text or json
}

// SnapshotConfig selects where index snapshots are kept.
type SnapshotConfig struct {
	// Store is one of local, memory, s3, minio or none.
	Store     string `yaml:"store" envconfig:"STORE"`
	Bucket    string `yaml:"bucket" envconfig:"BUCKET"`
	Prefix    string `yaml:"prefix" envconfig:"PREFIX"`
	Region    string `yaml:"region" envconfig:"REGION"`
	Endpoint  string `yaml:"endpoint" envconfig:"ENDPOINT"`
	AccessKey string `yaml:"access_key" envconfig:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" envconfig:"USE_SSL"`
}

// CatalogConfig selects the collection registry.
type CatalogConfig struct {
	// Kind is one of file, memory or dynamodb.
	Kind     string `yaml:"kind" envconfig:"KIND"`
	Table    string `yaml:"table" envconfig:"TABLE"`
	Region   string `yaml:"region" envconfig:"REGION"`
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
}

// EmbedConfig configures the built-in hashing embedder used for text
// queries and for ingested rows without a vector. Dimension must match the
// collections it is used with.
type EmbedConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED"`
	Dimension      int     `yaml:"dimension" envconfig:"DIMENSION"`
	RequestsPerSec float64 `yaml:"requests_per_sec" envconfig:"REQUESTS_PER_SEC"`
	Concurrency    int     `yaml:"concurrency" envconfig:"CONCURRENCY"`
}

// ResourceConfig bounds memory and I/O.
type ResourceConfig struct {
	MemoryLimitBytes   int64 `yaml:"memory_limit_bytes" envconfig:"MEMORY_LIMIT_BYTES"`
	IOLimitBytesPerSec int64 `yaml:"io_limit_bytes_per_sec" envconfig:"IO_LIMIT_BYTES_PER_SEC"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Dir:               "./vecsearch-data",
		Backend:           "bolt",
		Codec:             codec.Default.Name(),
		Compression:       "lz4",
		IngestConcurrency: 4,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Snapshots: SnapshotConfig{Store: "local"},
		Catalog: CatalogConfig{
			Kind:  "file",
			Table: "vecsearch-collections",
		},
		Embed: EmbedConfig{Concurrency: 4},
	}
}

// Load builds a Config. path may be empty, in which case VECSEARCH_CONFIG
// is consulted. A missing file is only an error when it was named
// explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if env := strings.TrimSpace(os.Getenv(EnvConfigFile)); env != "" {
			path, explicit = env, true
		}
	}
	if path == "" {
		path = filepath.Join(cfg.Dir, DefaultFile)
	}

	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Backend) {
		return fmt.Errorf("config: unknown backend %q (want one of %s)", c.Backend, strings.Join(Backends, ", "))
	}
	if c.Backend != "memory" && c.Dir == "" {
		return fmt.Errorf("config: dir is required for backend %q", c.Backend)
	}
	if _, ok := codec.ByName(c.Codec); !ok {
		return fmt.Errorf("config: unknown codec %q", c.Codec)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if !slices.Contains([]string{"local", "memory", "s3", "minio", "none"}, c.Snapshots.Store) {
		return fmt.Errorf("config: unknown snapshot store %q", c.Snapshots.Store)
	}
	if (c.Snapshots.Store == "s3" || c.Snapshots.Store == "minio") && c.Snapshots.Bucket == "" {
		return fmt.Errorf("config: snapshots.bucket is required for %s", c.Snapshots.Store)
	}
	if c.Snapshots.Store == "minio" && c.Snapshots.Endpoint == "" {
		return errors.New("config: snapshots.endpoint is required for minio")
	}
	if !slices.Contains([]string{"file", "memory", "dynamodb"}, c.Catalog.Kind) {
		return fmt.Errorf("config: unknown catalog kind %q", c.Catalog.Kind)
	}
	if c.Catalog.Kind == "dynamodb" && c.Catalog.Table == "" {
		return errors.New("config: catalog.table is required for dynamodb")
	}
	if c.Embed.Enabled && c.Embed.Dimension < 1 {
		return fmt.Errorf("config: embed.dimension must be positive when embedding is enabled, got %d", c.Embed.Dimension)
	}
	if c.IngestConcurrency < 1 {
		return fmt.Errorf("config: ingest_concurrency must be positive, got %d", c.IngestConcurrency)
	}
	return nil
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return lvl, nil
}
