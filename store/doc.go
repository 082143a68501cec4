// Package store defines the authoritative record storage of a collection.
//
// A Store holds every record of one collection keyed by id. It is the
// source of truth for record content: the similarity index is derived from
// Scan and can always be rebuilt from it.
//
// # Backends
//
//   - memstore: process-lifetime map
//   - boltstore: go.etcd.io/bbolt, one file per collection
//   - badgerstore: github.com/dgraph-io/badger/v4, one directory per collection
//   - sqlstore: modernc.org/sqlite through database/sql
//
// All backends validate records against the collection dimension, encode
// them with a codec.Codec, order Scan by id and bump Version on every
// committed mutation. The shared behaviour is checked by package storetest.
package store
