package vecsearch

import (
	"context"
	"iter"

	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// DefaultTopK is the number of results a SearchBuilder returns unless KNN
// is called.
const DefaultTopK = 10

type queryOptions struct {
	filter           *metadata.FilterSet
	predicate        func(metadata.Document) bool
	withoutDocuments bool
}

// QueryOption configures a single query.
type QueryOption func(*queryOptions)

// WithFilter restricts results to records whose metadata matches fs. The
// filter is applied before ranking, so results are never under-filled.
func WithFilter(fs *metadata.FilterSet) QueryOption {
	return func(o *queryOptions) {
		o.filter = fs
	}
}

// WithFilters is shorthand for WithFilter(metadata.NewFilterSet(filters...)).
func WithFilters(filters ...metadata.Filter) QueryOption {
	return WithFilter(metadata.NewFilterSet(filters...))
}

// WithPredicate restricts results to records whose metadata satisfies fn.
// Combined with WithFilter both must hold.
func WithPredicate(fn func(metadata.Document) bool) QueryOption {
	return func(o *queryOptions) {
		o.predicate = fn
	}
}

// WithoutDocuments skips loading document text from the record store.
// Results carry id, metadata and score only.
func WithoutDocuments() QueryOption {
	return func(o *queryOptions) {
		o.withoutDocuments = true
	}
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Search creates a fluent search builder for the given query vector.
//
// Example:
//
//	results, err := coll.Search(query).
//	    KNN(5).
//	    Filter(metadata.Gte("view_count", metadata.Int(1000))).
//	    Execute(ctx)
func (c *Collection) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{c: c, query: query, k: DefaultTopK}
}

// SearchText creates a fluent search builder that embeds text first.
func (c *Collection) SearchText(text string) *SearchBuilder {
	return &SearchBuilder{c: c, text: text, byText: true, k: DefaultTopK}
}

// SearchBuilder is a fluent builder for constructing queries.
type SearchBuilder struct {
	c      *Collection
	query  []float32
	text   string
	byText bool
	k      int

	filters []metadata.Filter
	opts    []QueryOption
}

// KNN sets the number of results to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// Filter adds metadata filters. Filters are combined with AND.
func (sb *SearchBuilder) Filter(filters ...metadata.Filter) *SearchBuilder {
	sb.filters = append(sb.filters, filters...)
	return sb
}

// Where restricts results with a metadata predicate.
func (sb *SearchBuilder) Where(fn func(metadata.Document) bool) *SearchBuilder {
	sb.opts = append(sb.opts, WithPredicate(fn))
	return sb
}

// WithoutDocuments skips loading document text.
func (sb *SearchBuilder) WithoutDocuments() *SearchBuilder {
	sb.opts = append(sb.opts, WithoutDocuments())
	return sb
}

func (sb *SearchBuilder) options() []QueryOption {
	opts := sb.opts
	if len(sb.filters) > 0 {
		opts = append([]QueryOption{WithFilters(sb.filters...)}, opts...)
	}
	return opts
}

// Execute runs the query and returns the results.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]model.Result, error) {
	if sb.byText {
		return sb.c.QueryText(ctx, sb.text, sb.k, sb.options()...)
	}
	return sb.c.Query(ctx, sb.query, sb.k, sb.options()...)
}

// MustExecute runs the query, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []model.Result {
	results, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return results
}

// Stream returns an iterator over the results, best first.
// The iterator supports early termination by breaking from the loop.
//
// Example:
//
//	for r, err := range coll.Search(q).KNN(100).Stream(ctx) {
//	    if err != nil { break }
//	    if r.Score < 0.5 { break }
//	    process(r)
//	}
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[model.Result, error] {
	return func(yield func(model.Result, error) bool) {
		results, err := sb.Execute(ctx)
		if err != nil {
			yield(model.Result{}, err)
			return
		}
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// First returns only the best result, or ErrNotFound if nothing matches.
func (sb *SearchBuilder) First(ctx context.Context) (model.Result, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return model.Result{}, err
	}
	if len(results) == 0 {
		return model.Result{}, ErrNotFound
	}
	return results[0], nil
}

// Exists reports whether at least one record matches.
func (sb *SearchBuilder) Exists(ctx context.Context) (bool, error) {
	sb.k = 1
	results, err := sb.Execute(ctx)
	if err != nil {
		return false, err
	}
	return len(results) > 0, nil
}
