package vecsearch

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/vecsearch/blobstore"
	"github.com/hupe1980/vecsearch/catalog"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/ingest"
	"github.com/hupe1980/vecsearch/internal/fs"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
	"github.com/hupe1980/vecsearch/store/badgerstore"
	"github.com/hupe1980/vecsearch/store/boltstore"
	"github.com/hupe1980/vecsearch/store/memstore"
	"github.com/hupe1980/vecsearch/store/sqlstore"
)

// DB is a set of named collections sharing one data directory, catalog and
// snapshot store. It is safe for concurrent use.
type DB struct {
	mu          sync.Mutex
	opts        options
	catalog     catalog.Catalog
	snapshots   blobstore.BlobStore
	embedder    embed.Embedder
	collections map[string]*Collection
	closed      bool
}

// Open opens or creates a database.
//
//	db, err := vecsearch.Open(ctx, vecsearch.WithDir("./data"))
//	db, err := vecsearch.Open(ctx, vecsearch.InMemory())
func Open(ctx context.Context, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)

	switch o.backend {
	case BackendMemory, BackendBadger:
	case BackendBolt, BackendSQLite:
		if o.dir == "" {
			return nil, &ValidationError{Field: "dir", Reason: fmt.Sprintf("backend %s requires a data directory", o.backend)}
		}
	default:
		return nil, &ValidationError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", o.backend)}
	}

	if o.dir != "" {
		if err := fs.Default.MkdirAll(o.dir, 0o755); err != nil {
			return nil, fmt.Errorf("vecsearch: create data directory: %w", err)
		}
	}

	cat := o.catalog
	if cat == nil {
		if o.dir != "" {
			f, err := catalog.OpenFile(o.dir)
			if err != nil {
				return nil, translateError(err)
			}
			cat = f
		} else {
			cat = catalog.NewMemory()
		}
	}

	snaps := o.snapshots
	if !o.snapshotsSet && o.dir != "" {
		snaps = blobstore.NewLocalStore(o.dir)
	}

	emb := o.embedder
	if emb != nil && o.resources != nil {
		emb = embed.Limited(emb, o.resources)
	}

	o.logger.DebugContext(ctx, "database opened",
		"dir", o.dir,
		"backend", string(o.backend),
		"codec", o.codec.Name(),
		"snapshots", snaps != nil,
	)

	return &DB{
		opts:        o,
		catalog:     cat,
		snapshots:   snaps,
		embedder:    emb,
		collections: make(map[string]*Collection),
	}, nil
}

// ParseMetric parses a metric name (cosine, l2, dot and their aliases).
func ParseMetric(name string) (distance.Metric, error) {
	m, err := distance.ParseMetric(name)
	if err != nil {
		return 0, translateError(err)
	}
	return m, nil
}

// CreateCollection creates a collection. Calling it again with the same
// dimension and metric returns the existing collection; different values
// fail with a *ConflictError.
func (db *DB) CreateCollection(ctx context.Context, name string, dimension int, metric distance.Metric) (*Collection, error) {
	if dimension <= 0 {
		return nil, &ValidationError{Field: "dimension", Reason: fmt.Sprintf("must be positive, got %d", dimension)}
	}
	if !metric.Valid() {
		return nil, &InvalidMetricError{Name: metric.String()}
	}
	if err := catalog.ValidateName(name); err != nil {
		return nil, translateError(err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	info, created, err := db.catalog.Create(ctx, model.CollectionInfo{
		Name:      name,
		Dimension: dimension,
		Metric:    metric,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, translateError(err)
	}

	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	c, err := db.openCollection(ctx, info)
	if err != nil {
		if created {
			if derr := db.catalog.Delete(ctx, name); derr != nil {
				db.opts.logger.WarnContext(ctx, "rollback of collection create failed", "collection", name, "error", derr)
			}
		}
		return nil, err
	}
	db.collections[name] = c

	if created {
		db.opts.logger.InfoContext(ctx, "collection created",
			"collection", name,
			"dimension", dimension,
			"metric", metric.String(),
		)
	}
	return c, nil
}

// Collection returns the named collection or ErrNotFound.
func (db *DB) Collection(ctx context.Context, name string) (*Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}

	if c, ok := db.collections[name]; ok {
		return c, nil
	}

	info, err := db.catalog.Get(ctx, name)
	if err != nil {
		return nil, translateError(err)
	}
	c, err := db.openCollection(ctx, info)
	if err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

// ListCollections returns every collection sorted by name.
func (db *DB) ListCollections(ctx context.Context) ([]model.CollectionInfo, error) {
	if db.isClosed() {
		return nil, ErrClosed
	}
	infos, err := db.catalog.List(ctx)
	return infos, translateError(err)
}

// DropCollection closes the collection and removes its records, snapshot
// and catalog entry.
func (db *DB) DropCollection(ctx context.Context, name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	if _, err := db.catalog.Get(ctx, name); err != nil {
		return translateError(err)
	}

	if c, ok := db.collections[name]; ok {
		delete(db.collections, name)
		if err := c.close(ctx, false); err != nil {
			return err
		}
	}

	if db.opts.dir != "" {
		if err := fs.Default.RemoveAll(filepath.Join(db.opts.dir, name)); err != nil {
			return fmt.Errorf("vecsearch: drop %s: %w", name, err)
		}
	}
	if db.snapshots != nil {
		if err := blobstore.DeletePrefix(ctx, db.snapshots, name+"/"); err != nil {
			return fmt.Errorf("vecsearch: drop %s snapshot: %w", name, err)
		}
	}

	if err := db.catalog.Delete(ctx, name); err != nil {
		return translateError(err)
	}
	db.opts.logger.InfoContext(ctx, "collection dropped", "collection", name)
	return nil
}

// Ingest runs rows through the ingestion pipeline into the named collection.
func (db *DB) Ingest(ctx context.Context, name string, rows iter.Seq[ingest.Row]) (ingest.Summary, error) {
	c, err := db.Collection(ctx, name)
	if err != nil {
		return ingest.Summary{}, err
	}
	return c.Ingest(ctx, rows)
}

// Query runs a similarity query against the named collection.
func (db *DB) Query(ctx context.Context, name string, q []float32, topK int, opts ...QueryOption) ([]model.Result, error) {
	c, err := db.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q, topK, opts...)
}

// QueryText embeds text and queries the named collection with it.
func (db *DB) QueryText(ctx context.Context, name, text string, topK int, opts ...QueryOption) ([]model.Result, error) {
	c, err := db.Collection(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.QueryText(ctx, text, topK, opts...)
}

// Get returns a record of the named collection.
func (db *DB) Get(ctx context.Context, name, id string) (model.Record, error) {
	c, err := db.Collection(ctx, name)
	if err != nil {
		return model.Record{}, err
	}
	return c.Get(ctx, id)
}

// Delete removes records from the named collection.
func (db *DB) Delete(ctx context.Context, name string, ids []string) (int, error) {
	c, err := db.Collection(ctx, name)
	if err != nil {
		return 0, err
	}
	return c.Delete(ctx, ids)
}

func (db *DB) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

func (db *DB) openCollection(ctx context.Context, info model.CollectionInfo) (*Collection, error) {
	st, err := db.openStore(ctx, info)
	if err != nil {
		return nil, err
	}

	c := newCollection(db, info, st)
	if err := c.loadIndex(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return c, nil
}

func (db *DB) openStore(ctx context.Context, info model.CollectionInfo) (store.Store, error) {
	cfg := store.Config{Dimension: info.Dimension, Codec: db.opts.codec}

	dir := ""
	if db.opts.dir != "" {
		dir = filepath.Join(db.opts.dir, info.Name)
		if err := fs.Default.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("vecsearch: create collection directory: %w", err)
		}
	}

	var (
		st  store.Store
		err error
	)
	switch db.opts.backend {
	case BackendMemory:
		st, err = memstore.New(info.Dimension)
	case BackendBolt:
		st, err = boltstore.Open(filepath.Join(dir, boltstore.FileName), cfg)
	case BackendBadger:
		st, err = badgerstore.Open(cfg, badgerstore.Options{
			Dir:      filepath.Join(dir, badgerstore.DirName),
			InMemory: dir == "",
			Logger:   db.opts.logger.Logger,
		})
	case BackendSQLite:
		st, err = sqlstore.Open(ctx, filepath.Join(dir, sqlstore.FileName), cfg)
	default:
		err = fmt.Errorf("unknown backend %q", db.opts.backend)
	}
	if err != nil {
		return nil, fmt.Errorf("vecsearch: open %s records: %w", info.Name, translateError(err))
	}
	return st, nil
}
