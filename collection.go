package vecsearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vecsearch/blobstore"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/ingest"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/resource"
	"github.com/hupe1980/vecsearch/store"
)

// SnapshotFile is the blob name of a collection's index snapshot, relative
// to the collection prefix.
const SnapshotFile = "index.snap"

// recordOverhead approximates the per-record bookkeeping cost charged
// against the resource controller's memory budget.
const recordOverhead = 64

// Collection is a named set of records sharing one dimension and metric.
//
// Mutations hold the write lock across the store commit and the index
// update, so readers observe either the state before or after a mutation.
// The store is authoritative: if the index cannot be brought in line with
// a commit the collection is marked stale and rebuilt before the next read.
type Collection struct {
	mu     sync.RWMutex
	info   model.CollectionInfo
	store  store.Store
	index  *index.Flat
	stale  atomic.Bool
	closed bool

	db      *DB
	logger  *Logger
	metrics MetricsCollector
}

func newCollection(db *DB, info model.CollectionInfo, st store.Store) *Collection {
	return &Collection{
		info:    info,
		store:   st,
		db:      db,
		logger:  db.opts.logger.WithCollection(info.Name),
		metrics: db.opts.metricsCollector,
	}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

// Info returns the collection descriptor.
func (c *Collection) Info() model.CollectionInfo { return c.info }

// Dimension returns the vector dimension.
func (c *Collection) Dimension() int { return c.info.Dimension }

// Metric returns the similarity metric.
func (c *Collection) Metric() distance.Metric { return c.info.Metric }

// rlock takes the read lock, first rebuilding the index if it is stale.
func (c *Collection) rlock(ctx context.Context) error {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return ErrClosed
		}
		if !c.stale.Load() {
			return nil
		}
		c.mu.RUnlock()

		if err := c.lock(ctx); err != nil {
			return err
		}
		c.mu.Unlock()
	}
}

// lock takes the write lock, first rebuilding the index if it is stale.
func (c *Collection) lock(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.stale.Load() {
		if err := c.rebuildLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	return nil
}

// Ingest validates and normalises rows and upserts the accepted ones.
// Row level problems are reported in the summary; the returned error is
// reserved for failures of the whole batch.
func (c *Collection) Ingest(ctx context.Context, rows iter.Seq[ingest.Row]) (ingest.Summary, error) {
	start := time.Now()

	summary, err := c.ingest(ctx, rows)

	c.metrics.RecordIngest(summary.Rows(), summary.SkippedCount, time.Since(start))
	c.logger.LogIngest(ctx, summary.InsertedCount, summary.SkippedCount, err)
	return summary, err
}

func (c *Collection) ingest(ctx context.Context, rows iter.Seq[ingest.Row]) (ingest.Summary, error) {
	p, err := ingest.New(c.info.Dimension,
		ingest.WithEmbedder(c.db.embedder),
		ingest.WithConcurrency(c.db.opts.ingestConcurrency),
		ingest.WithLogger(c.logger.Logger),
	)
	if err != nil {
		return ingest.Summary{}, err
	}

	// Embedding runs here, outside the collection lock.
	summary, items, err := p.Run(ctx, rows)
	if err != nil {
		return ingest.Summary{}, translateError(err)
	}
	if len(items) == 0 {
		return summary, nil
	}

	recs := make([]model.Record, len(items))
	var reserve int64
	for i, it := range items {
		recs[i] = it.Record
		reserve += recordSize(it.Record)
	}

	rc := c.db.opts.resources
	if err := rc.AcquireMemory(ctx, reserve); err != nil {
		return ingest.Summary{}, err
	}
	defer rc.ReleaseMemory(reserve)

	errs, err := c.putBatch(ctx, recs)
	if err != nil {
		return ingest.Summary{}, err
	}
	summary.ApplyStoreResults(items, errs)
	return summary, nil
}

func recordSize(rec model.Record) int64 {
	return int64(4*len(rec.Vector)+len(rec.ID)+len(rec.Document)) + recordOverhead
}

// Put upserts a single record.
func (c *Collection) Put(ctx context.Context, rec model.Record) error {
	errs, err := c.PutBatch(ctx, []model.Record{rec})
	if err != nil {
		return err
	}
	return errs[0]
}

// PutBatch upserts recs. The returned slice is aligned to recs: nil for
// stored records, a validation error for rejected ones. A non-nil second
// return value means nothing was stored.
func (c *Collection) PutBatch(ctx context.Context, recs []model.Record) ([]error, error) {
	start := time.Now()

	errs, err := c.putBatch(ctx, recs)

	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	c.metrics.RecordPut(len(recs), failed, time.Since(start), err)
	return errs, err
}

func (c *Collection) putBatch(ctx context.Context, recs []model.Record) ([]error, error) {
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()

	errs, err := c.store.PutBatch(ctx, recs)
	if err != nil {
		return nil, translateError(err)
	}

	for i, rec := range recs {
		if errs[i] != nil {
			errs[i] = translateError(errs[i])
			continue
		}
		if err := c.index.Add(rec); err != nil {
			c.markStale(ctx, err)
		}
	}
	return errs, nil
}

// Get returns the record with the given id or ErrNotFound.
func (c *Collection) Get(ctx context.Context, id string) (model.Record, error) {
	if err := c.rlock(ctx); err != nil {
		return model.Record{}, err
	}
	defer c.mu.RUnlock()

	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return model.Record{}, translateError(err)
	}
	return rec, nil
}

// GetMany returns records aligned to ids; found[i] is false for missing ids.
func (c *Collection) GetMany(ctx context.Context, ids []string) ([]model.Record, []bool, error) {
	if err := c.rlock(ctx); err != nil {
		return nil, nil, err
	}
	defer c.mu.RUnlock()

	recs, found, err := c.store.GetMany(ctx, ids)
	return recs, found, translateError(err)
}

// Delete removes ids from the store and the index. Missing ids are
// ignored. It returns the number of records removed.
func (c *Collection) Delete(ctx context.Context, ids []string) (int, error) {
	start := time.Now()

	n, err := c.delete(ctx, ids)

	c.metrics.RecordDelete(n, time.Since(start), err)
	c.logger.LogDelete(ctx, len(ids), n, err)
	return n, err
}

func (c *Collection) delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if err := c.lock(ctx); err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	n, err := c.store.Delete(ctx, ids)
	if err != nil {
		return 0, translateError(err)
	}
	for _, id := range ids {
		c.index.Remove(id)
	}
	return n, nil
}

// Count returns the number of stored records.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := c.rlock(ctx); err != nil {
		return 0, err
	}
	defer c.mu.RUnlock()

	n, err := c.store.Count(ctx)
	return n, translateError(err)
}

// Query returns up to topK records most similar to q, best first. Scores
// are normalised so that higher is always more relevant: cosine similarity
// for cosine, the dot product for dot and 1/(1+d) for squared L2. Equal
// scores are ordered by id.
func (c *Collection) Query(ctx context.Context, q []float32, topK int, opts ...QueryOption) ([]model.Result, error) {
	start := time.Now()

	results, err := c.query(ctx, q, topK, applyQueryOptions(opts))

	c.metrics.RecordQuery(topK, time.Since(start), err)
	c.logger.LogQuery(ctx, topK, len(results), err)
	return results, err
}

// QueryText embeds text with the configured embedder and queries with the
// resulting vector.
func (c *Collection) QueryText(ctx context.Context, text string, topK int, opts ...QueryOption) ([]model.Result, error) {
	vec, err := c.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, vec, topK, opts...)
}

func (c *Collection) embed(ctx context.Context, text string) ([]float32, error) {
	e := c.db.embedder
	if e == nil {
		return nil, ErrNoEmbedder
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Field: "text", Err: embed.ErrEmptyText}
	}

	vec, err := embed.Checked(ctx, e, text)
	if err != nil {
		return nil, translateError(err)
	}
	if len(vec) != c.info.Dimension {
		return nil, &DimensionMismatchError{Expected: c.info.Dimension, Actual: len(vec)}
	}
	return vec, nil
}

func (c *Collection) query(ctx context.Context, q []float32, k int, qo queryOptions) ([]model.Result, error) {
	if k < 1 {
		return nil, &ValidationError{Field: "top_k", Reason: fmt.Sprintf("got %d", k), Err: ErrInvalidK}
	}
	if len(q) != c.info.Dimension {
		return nil, &DimensionMismatchError{Expected: c.info.Dimension, Actual: len(q)}
	}
	if i, ok := distance.Finite(q); !ok {
		return nil, &ValidationError{Field: "query_vector", Reason: fmt.Sprintf("non-finite value at index %d", i)}
	}
	if err := qo.filter.Validate(); err != nil {
		return nil, &ValidationError{Field: "filter", Err: err}
	}

	if err := c.rlock(ctx); err != nil {
		return nil, err
	}
	results, complete, err := c.searchLocked(ctx, q, k, qo)
	c.mu.RUnlock()
	if err != nil || complete {
		return results, err
	}

	// The index named records the store no longer has. lock rebuilds the
	// now stale index, and the search runs again against the fresh one.
	if err := c.lock(ctx); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	results, _, err = c.searchLocked(ctx, q, k, qo)
	return results, err
}

// searchLocked ranks candidates and resolves them against the store.
// complete is false when an indexed record was missing from the store.
func (c *Collection) searchLocked(ctx context.Context, q []float32, k int, qo queryOptions) ([]model.Result, bool, error) {
	var (
		cands []model.Candidate
		err   error
	)
	if p := qo.predicate; p != nil {
		pred := p
		if fs := qo.filter; fs != nil {
			pred = func(doc metadata.Document) bool { return fs.Matches(doc) && p(doc) }
		}
		cands, err = c.index.SearchPredicate(ctx, q, k, pred)
	} else {
		cands, err = c.index.SearchFilter(ctx, q, k, qo.filter)
	}
	if err != nil {
		return nil, false, translateError(err)
	}

	return c.resolveLocked(ctx, cands, qo)
}

// resolveLocked turns index candidates into results.
func (c *Collection) resolveLocked(ctx context.Context, cands []model.Candidate, qo queryOptions) ([]model.Result, bool, error) {
	results := make([]model.Result, 0, len(cands))
	metric := c.info.Metric

	if qo.withoutDocuments {
		for _, cand := range cands {
			doc, _ := c.index.Metadata(cand.ID)
			results = append(results, model.Result{
				ID:       cand.ID,
				Metadata: doc,
				Score:    metric.Score(cand.Distance),
			})
		}
		return results, true, nil
	}

	ids := make([]string, len(cands))
	for i, cand := range cands {
		ids[i] = cand.ID
	}
	recs, found, err := c.store.GetMany(ctx, ids)
	if err != nil {
		return nil, false, translateError(err)
	}

	complete := true
	for i, cand := range cands {
		if !found[i] {
			c.markStale(ctx, fmt.Errorf("indexed record %q missing from store", cand.ID))
			complete = false
			continue
		}
		results = append(results, model.Result{
			ID:       cand.ID,
			Document: recs[i].Document,
			Metadata: recs[i].Metadata,
			Score:    metric.Score(cand.Distance),
		})
	}
	return results, complete, nil
}

// Rebuild reconstructs the index from a full scan of the store.
func (c *Collection) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.rebuildLocked(ctx)
}

func (c *Collection) rebuildLocked(ctx context.Context) error {
	start := time.Now()

	err := c.index.Build(ctx, c.store.Scan(ctx))

	n := c.index.Len()
	c.metrics.RecordRebuild(n, time.Since(start), err)
	c.logger.LogRebuild(ctx, n, time.Since(start), err)
	if err != nil {
		c.stale.Store(true)
		return translateError(err)
	}
	c.stale.Store(false)
	return nil
}

func (c *Collection) markStale(ctx context.Context, cause error) {
	if !c.stale.Swap(true) {
		c.logger.WarnContext(ctx, "index diverged from store, scheduling rebuild", "error", cause)
	}
}

// Stale reports whether the index is waiting for a rebuild.
func (c *Collection) Stale() bool { return c.stale.Load() }

// Snapshot writes the index to the snapshot store. The snapshot records
// the store version it reflects; it is only used on open if the store has
// not changed since.
func (c *Collection) Snapshot(ctx context.Context) error {
	if c.db.snapshots == nil {
		return ErrSnapshotsDisabled
	}
	if err := c.rlock(ctx); err != nil {
		return err
	}
	defer c.mu.RUnlock()
	return c.snapshotLocked(ctx)
}

func (c *Collection) snapshotName() string {
	return path.Join(c.info.Name, SnapshotFile)
}

func (c *Collection) snapshotLocked(ctx context.Context) error {
	name := c.snapshotName()

	version, err := c.store.Version(ctx)
	if err != nil {
		c.logger.LogSnapshot(ctx, name, 0, err)
		return translateError(err)
	}

	var buf bytes.Buffer
	w := resource.Throttle(ctx, &buf, c.db.opts.resources)
	if err := c.index.WriteSnapshot(w, version, c.db.opts.compression); err != nil {
		c.logger.LogSnapshot(ctx, name, 0, err)
		return err
	}
	if err := c.db.snapshots.Put(ctx, name, buf.Bytes()); err != nil {
		c.logger.LogSnapshot(ctx, name, 0, err)
		return fmt.Errorf("vecsearch: write snapshot %s: %w", name, err)
	}

	c.logger.LogSnapshot(ctx, name, int(w.Written()), nil)
	return nil
}

// loadIndex installs the snapshot if it is current and rebuilds from the
// store otherwise.
func (c *Collection) loadIndex(ctx context.Context) error {
	if idx, ok := c.readSnapshot(ctx); ok {
		c.index = idx
		return nil
	}

	idx, err := index.NewFlat(c.info.Dimension, c.info.Metric)
	if err != nil {
		return translateError(err)
	}
	c.index = idx
	return c.rebuildLocked(ctx)
}

func (c *Collection) readSnapshot(ctx context.Context) (*index.Flat, bool) {
	if c.db.snapshots == nil {
		return nil, false
	}
	name := c.snapshotName()

	data, err := blobstore.ReadAll(ctx, c.db.snapshots, name)
	if err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			c.logger.WarnContext(ctx, "snapshot unreadable, rebuilding", "name", name, "error", err)
		}
		return nil, false
	}

	idx, h, err := index.DecodeSnapshot(data)
	if err != nil {
		c.logger.WarnContext(ctx, "snapshot corrupt, rebuilding", "name", name, "error", err)
		return nil, false
	}
	if h.Dimension != c.info.Dimension || h.Metric != c.info.Metric {
		c.logger.WarnContext(ctx, "snapshot shape differs from collection, rebuilding",
			"name", name,
			"dimension", h.Dimension,
			"metric", h.Metric.String(),
		)
		return nil, false
	}

	version, err := c.store.Version(ctx)
	if err != nil || version != h.StoreVersion {
		c.logger.DebugContext(ctx, "snapshot outdated, rebuilding",
			"name", name,
			"snapshot_version", h.StoreVersion,
			"store_version", version,
		)
		return nil, false
	}

	c.logger.DebugContext(ctx, "index loaded from snapshot", "name", name, "records", idx.Len())
	return idx, true
}
