// Package index provides the similarity index used by collections.
//
// Flat is an exact nearest neighbour index: every query is compared
// against every live vector, so results are deterministic and recall is
// always 100%.
//
// # Ordinals
//
// Each indexed record occupies a dense uint32 ordinal. Ordinals of removed
// records are reused. Metadata is kept in a metadata.Index keyed by the
// same ordinals, so a metadata.FilterSet compiles into a Roaring bitmap of
// eligible ordinals before any distance is computed.
//
// # Ranking
//
// Search returns at most k candidates best-first. For cosine and dot the
// largest value wins; for l2 the smallest squared distance wins. Equal
// values are ordered by ascending record id.
//
// # Snapshots
//
// WriteSnapshot serialises the index together with the store version it
// was built from. ReadSnapshot verifies magic, format version and a CRC32
// checksum before decoding. Payload blocks are LZ4 (default) or Zstandard
// compressed.
//
//	var buf bytes.Buffer
//	err := ix.WriteSnapshot(&buf, storeVersion, index.CompressionLZ4)
//	...
//	ix, version, err := index.ReadSnapshot(&buf)
package index
