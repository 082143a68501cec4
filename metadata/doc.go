// Package metadata provides typed record metadata and filtering.
//
// # Metadata Types
//
// Document values are scalars:
//
//   - String: metadata.String("tech")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//   - Null: metadata.Null()
//
// The canonical keys for transcript records are title, channel_title,
// view_count and duration_seconds.
//
// # Filter Operations
//
// A FilterSet is a conjunction of conditions:
//
//	fs := metadata.NewFilterSet(
//	    metadata.Eq("channel_title", metadata.String("Fireship")),
//	    metadata.Gte("view_count", metadata.Int(1000)),
//	)
//
// # Index
//
// Index keeps documents keyed by dense ordinals together with a Roaring
// Bitmap inverted index. CompileFilter turns a FilterSet into the bitmap of
// ordinals that pass, so similarity ranking only ever sees eligible rows.
package metadata
