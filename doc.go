// Package vecsearch is an embedded vector similarity search engine.
//
// A DB holds named collections. Every collection has a fixed vector
// dimension and similarity metric (cosine, squared L2 or dot product),
// chosen when it is created. Records carry an id, a vector, document text
// and scalar metadata.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vecsearch.Open(ctx, vecsearch.WithDir("./data"))
//	defer db.Close()
//
//	videos, _ := db.CreateCollection(ctx, "videos", 384, distance.MetricCosine)
//
//	summary, _ := videos.Ingest(ctx, slices.Values(rows))
//	fmt.Println(summary.InsertedCount, summary.SkippedCount)
//
//	results, _ := videos.Query(ctx, query, 5,
//	    vecsearch.WithFilters(metadata.Gte("view_count", metadata.Int(1000))))
//
// # Storage
//
// The record store is authoritative. Each collection lives in its own
// directory using one of several backends (bbolt, badger, SQLite or
// process memory). The similarity index is an exact in-memory index,
// rebuilt from the store on open unless a current snapshot exists.
// Snapshots are written on Close, or explicitly with Collection.Snapshot,
// to the data directory or any blobstore.BlobStore such as S3 or MinIO.
//
// # Ingestion
//
// Collection.Ingest accepts loosely typed rows, resolves ids, parses
// embeddings from strings or arrays, normalises metadata and reports every
// rejected row with its 1-based index and reason. Rows without a vector are
// embedded with the configured embed.Embedder.
//
// # Concurrency
//
// Queries and lookups run concurrently. Mutations of a collection are
// serialised and atomic from a reader's point of view.
package vecsearch
