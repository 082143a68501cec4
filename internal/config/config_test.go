package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vecsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
dir: /var/lib/vecsearch
backend: sqlite
codec: go-json
log:
  level: debug
  format: json
snapshots:
  store: s3
  bucket: snaps
  prefix: prod/
catalog:
  kind: dynamodb
  table: collections
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vecsearch", cfg.Dir)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "go-json", cfg.Codec)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "s3", cfg.Snapshots.Store)
	assert.Equal(t, "snaps", cfg.Snapshots.Bucket)
	assert.Equal(t, "prod/", cfg.Snapshots.Prefix)
	assert.Equal(t, "dynamodb", cfg.Catalog.Kind)
	assert.Equal(t, "collections", cfg.Catalog.Table)

	// Unset keys keep their defaults.
	assert.Equal(t, "lz4", cfg.Compression)
	assert.Equal(t, 4, cfg.IngestConcurrency)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "backend: sqlite\ncompression: zstd\n")

	t.Setenv("VECSEARCH_BACKEND", "badger")
	t.Setenv("VECSEARCH_INGEST_CONCURRENCY", "8")
	t.Setenv("VECSEARCH_SNAPSHOTS_STORE", "memory")
	t.Setenv("VECSEARCH_EMBED_REQUESTS_PER_SEC", "2.5")
	t.Setenv("VECSEARCH_RESOURCES_MEMORY_LIMIT_BYTES", "1048576")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Backend)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.Equal(t, 8, cfg.IngestConcurrency)
	assert.Equal(t, "memory", cfg.Snapshots.Store)
	assert.InDelta(t, 2.5, cfg.Embed.RequestsPerSec, 1e-9)
	assert.Equal(t, int64(1<<20), cfg.Resources.MemoryLimitBytes)
}

func TestConfigFileFromEnvironment(t *testing.T) {
	path := writeFile(t, "backend: memory\n")
	t.Setenv(EnvConfigFile, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Backend)
}

func TestLoadErrors(t *testing.T) {
	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("BadYAML", func(t *testing.T) {
		_, err := Load(writeFile(t, "backend: [bolt"))
		require.Error(t, err)
	})

	t.Run("BadEnvironmentValue", func(t *testing.T) {
		t.Setenv("VECSEARCH_INGEST_CONCURRENCY", "many")
		_, err := Load(writeFile(t, "backend: memory\n"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Backend", func(c *Config) { c.Backend = "faiss" }},
		{"DirRequired", func(c *Config) { c.Dir = "" }},
		{"Codec", func(c *Config) { c.Codec = "protobuf" }},
		{"LogLevel", func(c *Config) { c.Log.Level = "loud" }},
		{"LogFormat", func(c *Config) { c.Log.Format = "xml" }},
		{"SnapshotStore", func(c *Config) { c.Snapshots.Store = "gcs" }},
		{"S3Bucket", func(c *Config) { c.Snapshots.Store = "s3" }},
		{"MinioEndpoint", func(c *Config) {
			c.Snapshots.Store = "minio"
			c.Snapshots.Bucket = "b"
		}},
		{"CatalogKind", func(c *Config) { c.Catalog.Kind = "etcd" }},
		{"CatalogTable", func(c *Config) {
			c.Catalog.Kind = "dynamodb"
			c.Catalog.Table = ""
		}},
		{"Concurrency", func(c *Config) { c.IngestConcurrency = 0 }},
		{"EmbedDimension", func(c *Config) { c.Embed.Enabled = true }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("MemoryWithoutDir", func(t *testing.T) {
		cfg := Default()
		cfg.Backend = "memory"
		cfg.Dir = ""
		assert.NoError(t, cfg.Validate())
	})
}
