package ingest

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// Row is one loosely typed input row, e.g. a CSV line keyed by header.
type Row = map[string]any

// Rejection reasons.
const (
	ReasonParseFailure      = "embedding parse failure"
	ReasonMissingEmbedding  = "embedding missing"
	ReasonDimensionMismatch = "dimension mismatch"
	ReasonNonFinite         = "non-finite embedding value"
	ReasonEmbedFailure      = "embedding failure"
	ReasonStoreRejected     = "store rejected record"
)

// Input column aliases, in lookup order.
var (
	IDColumns        = []string{"id", "video_id", "videoId"}
	EmbeddingColumns = []string{"embedding", "embeddings", "vector", "e_title_trans_tensor"}
	DocumentColumns  = []string{"document", "transcript", "cleaned_transcript", "text"}
	TitleColumns     = []string{"title"}
	ChannelColumns   = []string{"channel_title", "channelTitle", "channel"}
	ViewCountColumns = []string{"view_count", "viewCount", "views"}
	DurationColumns  = []string{"duration_seconds", "duration"}
)

// DefaultConcurrency bounds embedding calls when no option is given.
const DefaultConcurrency = 4

// Rejection describes a row that did not become a record.
type Rejection struct {
	// RowIndex is 1-based.
	RowIndex int    `json:"row_index"`
	ID       string `json:"id,omitempty"`
	Reason   string `json:"reason"`
	Field    string `json:"field,omitempty"`
	Err      error  `json:"-"`
}

func (r Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("row %d: %s: %v", r.RowIndex, r.Reason, r.Err)
	}
	return fmt.Sprintf("row %d: %s", r.RowIndex, r.Reason)
}

func (r Rejection) Unwrap() error { return r.Err }

// Summary reports the outcome of a batch.
type Summary struct {
	InsertedCount int         `json:"inserted_count"`
	SkippedCount  int         `json:"skipped_count"`
	Rejections    []Rejection `json:"rejections"`
}

// Rows returns the number of rows seen.
func (s Summary) Rows() int { return s.InsertedCount + s.SkippedCount }

func (s *Summary) reject(r Rejection) {
	s.SkippedCount++
	s.Rejections = append(s.Rejections, r)
}

// Item is an accepted row.
type Item struct {
	RowIndex int
	Record   model.Record
}

// ApplyStoreResults folds per-record store outcomes (aligned to items)
// into the summary. Rows the store refused move from inserted to skipped.
func (s *Summary) ApplyStoreResults(items []Item, errs []error) {
	for i, err := range errs {
		if err == nil || i >= len(items) {
			continue
		}
		s.InsertedCount--
		s.reject(Rejection{
			RowIndex: items[i].RowIndex,
			ID:       items[i].Record.ID,
			Reason:   ReasonStoreRejected,
			Err:      err,
		})
	}
	slices.SortStableFunc(s.Rejections, func(a, b Rejection) int { return a.RowIndex - b.RowIndex })
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEmbedder sets the embedder used for rows that carry text but no vector.
func WithEmbedder(e embed.Embedder) Option {
	return func(p *Pipeline) { p.embedder = e }
}

// WithConcurrency bounds concurrent embedding calls.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithIDGenerator overrides the generator used for blank ids.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithLogger sets the logger for rejected rows.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// Pipeline validates and normalises rows for a collection of a fixed dimension.
type Pipeline struct {
	dim         int
	embedder    embed.Embedder
	concurrency int
	newID       func() string
	logger      *slog.Logger
}

// New creates a Pipeline for vectors of dimension dim.
func New(dim int, opts ...Option) (*Pipeline, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("ingest: dimension must be positive, got %d", dim)
	}
	p := &Pipeline{
		dim:         dim,
		concurrency: DefaultConcurrency,
		newID:       uuid.NewString,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// entry is a row that parsed. id is the row's own id; collisions are
// resolved only once the row is known to be accepted.
type entry struct {
	rowIndex int
	id       string
	doc      string
	meta     metadata.Document
	vec      []float32

	// embed marks rows whose vector comes from the embedder.
	embed bool
	text  string
	err   error
}

// Run processes rows and returns the summary together with the accepted
// records in row order. InsertedCount counts accepted rows; callers that
// persist the items report store outcomes through ApplyStoreResults.
func (p *Pipeline) Run(ctx context.Context, rows iter.Seq[Row]) (Summary, []Item, error) {
	var (
		summary Summary
		entries []*entry
		waiting []*entry
	)

	idx := 0
	for row := range rows {
		idx++
		if err := ctx.Err(); err != nil {
			return Summary{}, nil, err
		}

		id := p.rowID(row)
		doc := firstString(row, DocumentColumns)
		meta := normalizeMetadata(row)

		raw, field := firstValue(row, EmbeddingColumns)
		if isBlank(raw) {
			text := doc
			if text == "" {
				text = meta["title"].StringValue()
			}
			if p.embedder == nil || strings.TrimSpace(text) == "" {
				p.rejectRow(&summary, Rejection{RowIndex: idx, ID: id, Reason: ReasonMissingEmbedding, Field: "embedding"})
				continue
			}
			e := &entry{rowIndex: idx, id: id, doc: doc, meta: meta, embed: true, text: text}
			entries = append(entries, e)
			waiting = append(waiting, e)
			continue
		}

		vec, err := toVector(raw)
		if err != nil {
			p.rejectRow(&summary, Rejection{RowIndex: idx, ID: id, Reason: ReasonParseFailure, Field: field, Err: err})
			continue
		}
		if rej, ok := p.checkVector(vec, idx, id, field); !ok {
			p.rejectRow(&summary, rej)
			continue
		}
		entries = append(entries, &entry{rowIndex: idx, id: id, doc: doc, meta: meta, vec: vec})
	}

	if len(waiting) > 0 {
		if err := p.embedAll(ctx, waiting); err != nil {
			return Summary{}, nil, err
		}
	}

	items := p.accept(&summary, entries)
	summary.InsertedCount = len(items)
	slices.SortStableFunc(summary.Rejections, func(a, b Rejection) int { return a.RowIndex - b.RowIndex })
	return summary, items, nil
}

func (p *Pipeline) rejectRow(s *Summary, r Rejection) {
	p.logger.Debug("row rejected", "row", r.RowIndex, "id", r.ID, "reason", r.Reason, "error", r.Err)
	s.reject(r)
}

func (p *Pipeline) checkVector(vec []float32, idx int, id, field string) (Rejection, bool) {
	if len(vec) != p.dim {
		return Rejection{
			RowIndex: idx, ID: id, Reason: ReasonDimensionMismatch, Field: field,
			Err: &embed.DimensionError{Expected: p.dim, Actual: len(vec)},
		}, false
	}
	if i, ok := distance.Finite(vec); !ok {
		return Rejection{
			RowIndex: idx, ID: id, Reason: ReasonNonFinite, Field: field,
			Err: fmt.Errorf("element %d is %v", i, vec[i]),
		}, false
	}
	return Rejection{}, true
}

// embedAll fills vec or err on every waiting row. Row failures are kept
// per row; only cancellation fails the batch.
func (p *Pipeline) embedAll(ctx context.Context, waiting []*entry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, e := range waiting {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.vec, e.err = p.embedder.Embed(gctx, e.text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// accept rejects failed embeddings and assigns final ids in row order.
// Only accepted rows take part in duplicate resolution.
func (p *Pipeline) accept(s *Summary, entries []*entry) []Item {
	taken := make(map[string]struct{}, len(entries))
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.embed {
			if e.err != nil {
				p.rejectRow(s, Rejection{RowIndex: e.rowIndex, ID: e.id, Reason: ReasonEmbedFailure, Field: "embedding", Err: e.err})
				continue
			}
			if rej, ok := p.checkVector(e.vec, e.rowIndex, e.id, "embedding"); !ok {
				p.rejectRow(s, rej)
				continue
			}
		}
		id := resolveID(e.id, e.rowIndex, taken)
		taken[id] = struct{}{}
		items = append(items, Item{RowIndex: e.rowIndex, Record: model.Record{ID: id, Vector: e.vec, Document: e.doc, Metadata: e.meta}})
	}
	return items
}

// rowID returns the row's trimmed id, generating one when blank.
func (p *Pipeline) rowID(row Row) string {
	if id := strings.TrimSpace(firstString(row, IDColumns)); id != "" {
		return id
	}
	return p.newID()
}

// resolveID suffixes the row index onto id while it collides with an
// earlier accepted row.
func resolveID(id string, idx int, taken map[string]struct{}) string {
	for {
		if _, dup := taken[id]; !dup {
			return id
		}
		id = id + "_" + strconv.Itoa(idx)
	}
}

func firstValue(row Row, keys []string) (any, string) {
	for _, k := range keys {
		if v, ok := row[k]; ok && !isBlank(v) {
			return v, k
		}
	}
	return nil, keys[0]
}

func firstString(row Row, keys []string) string {
	v, _ := firstValue(row, keys)
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return len(x) == 0
	}
	return false
}

// consumed lists every alias folded into a canonical field.
var consumed = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, group := range [][]string{IDColumns, EmbeddingColumns, DocumentColumns, TitleColumns, ChannelColumns, ViewCountColumns, DurationColumns} {
		for _, k := range group {
			m[k] = struct{}{}
		}
	}
	return m
}()

// normalizeMetadata maps aliases onto title, channel_title, view_count and
// duration_seconds. Counts that do not coerce to a non-negative integer
// become null. Other scalar columns are carried through unchanged.
func normalizeMetadata(row Row) metadata.Document {
	doc := metadata.Document{}

	if s := firstString(row, TitleColumns); s != "" {
		doc["title"] = metadata.String(s)
	}
	if s := firstString(row, ChannelColumns); s != "" {
		doc["channel_title"] = metadata.String(s)
	}
	if v, _ := firstValue(row, ViewCountColumns); v != nil {
		doc["view_count"] = countValue(v)
	} else if hasAny(row, ViewCountColumns) {
		doc["view_count"] = metadata.Null()
	}
	if v, _ := firstValue(row, DurationColumns); v != nil {
		doc["duration_seconds"] = countValue(v)
	} else if hasAny(row, DurationColumns) {
		doc["duration_seconds"] = metadata.Null()
	}

	for k, v := range row {
		if _, ok := consumed[k]; ok {
			continue
		}
		mv, err := metadata.FromAny(v)
		if err != nil || !mv.IsScalar() {
			continue
		}
		doc[k] = mv
	}
	return doc
}

func countValue(v any) metadata.Value {
	if n, ok := count(v); ok {
		return metadata.Int(n)
	}
	return metadata.Null()
}

func hasAny(row Row, keys []string) bool {
	for _, k := range keys {
		if _, ok := row[k]; ok {
			return true
		}
	}
	return false
}

