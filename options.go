package vecsearch

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/vecsearch/blobstore"
	"github.com/hupe1980/vecsearch/catalog"
	"github.com/hupe1980/vecsearch/codec"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/resource"
)

// Backend selects the record store implementation used for collections.
type Backend string

const (
	// BackendMemory keeps records for the lifetime of the process.
	BackendMemory Backend = "memory"
	// BackendBolt stores each collection in a bbolt file.
	BackendBolt Backend = "bolt"
	// BackendBadger stores each collection in a badger directory.
	BackendBadger Backend = "badger"
	// BackendSQLite stores each collection in an SQLite database.
	BackendSQLite Backend = "sqlite"
)

// ParseBackend maps a backend name to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case BackendMemory, BackendBolt, BackendBadger, BackendSQLite:
		return b, nil
	case "bbolt":
		return BackendBolt, nil
	case "sqlite3":
		return BackendSQLite, nil
	default:
		return "", &ValidationError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", name)}
	}
}

// DefaultIngestConcurrency bounds concurrent embedding calls during ingestion.
const DefaultIngestConcurrency = 4

type options struct {
	dir               string
	backend           Backend
	codec             codec.Codec
	snapshots         blobstore.BlobStore
	snapshotsSet      bool
	snapshotOnClose   bool
	compression       index.Compression
	catalog           catalog.Catalog
	embedder          embed.Embedder
	ingestConcurrency int
	resources         *resource.Controller
	metricsCollector  MetricsCollector
	logger            *Logger
}

// Option configures Open.
type Option func(*options)

// WithDir sets the data directory. Each collection gets its own
// subdirectory holding the record store and, by default, the index
// snapshot. The collection registry lives in catalog.json.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// InMemory keeps everything in process memory. Nothing survives Close.
func InMemory() Option {
	return func(o *options) {
		o.dir = ""
		o.backend = BackendMemory
	}
}

// WithBackend selects the record store. The default is BackendBolt when a
// directory is configured and BackendMemory otherwise. BackendBadger
// without a directory runs badger in memory.
func WithBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithCodec configures the codec used for persisted records.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithSnapshotStore sets where index snapshots are written, for example
// an S3 or MinIO bucket. Pass nil to disable snapshots. By default
// snapshots go into the data directory.
func WithSnapshotStore(s blobstore.BlobStore) Option {
	return func(o *options) {
		o.snapshots = s
		o.snapshotsSet = true
	}
}

// WithSnapshotOnClose controls whether Close writes an index snapshot for
// every open collection. Default: true.
func WithSnapshotOnClose(enabled bool) Option {
	return func(o *options) {
		o.snapshotOnClose = enabled
	}
}

// WithSnapshotCompression sets the block compression of index snapshots.
// Default: LZ4.
func WithSnapshotCompression(c index.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithCatalog sets the collection registry. By default a catalog.json file
// in the data directory is used, or an in-memory catalog without one.
func WithCatalog(c catalog.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithEmbedder sets the function that turns text into vectors. It is used
// for text queries and for ingested rows that carry text but no vector.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) {
		o.embedder = e
	}
}

// WithIngestConcurrency bounds concurrent embedding calls during ingestion.
func WithIngestConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.ingestConcurrency = n
		}
	}
}

// WithResourceController bounds ingestion memory, embedding calls and
// snapshot I/O.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecsearch.BasicMetricsCollector{}
//	db, _ := vecsearch.Open(ctx, vecsearch.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Queries: %d, Avg latency: %dns\n", stats.QueryCount, stats.QueryAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel logs text to stderr at level and above.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:             codec.Default,
		snapshotOnClose:   true,
		compression:       index.CompressionLZ4,
		ingestConcurrency: DefaultIngestConcurrency,
		metricsCollector:  NoopMetricsCollector{},
		logger:            NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.backend == "" {
		o.backend = BackendMemory
		if o.dir != "" {
			o.backend = BackendBolt
		}
	}
	return o
}
