// Package boltstore implements store.Store on top of go.etcd.io/bbolt.
//
// Each collection owns one bolt file with two buckets: records, keyed by
// id, and meta, holding the codec name, dimension and mutation version.
// Every mutation is a single bolt transaction.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

// FileName is the conventional name of the bolt file inside a collection directory.
const FileName = "records.db"

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")

	keyCodec     = []byte("codec")
	keyDimension = []byte("dimension")
	keyVersion   = []byte("version")
)

// Store is a bbolt-backed store.Store.
type Store struct {
	db     *bbolt.DB
	cfg    store.Config
	closed atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the bolt file at path.
func Open(path string, cfg store.Config) (*Store, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRecords); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}

		if name := meta.Get(keyCodec); name != nil {
			dim, err := strconv.Atoi(string(meta.Get(keyDimension)))
			if err != nil {
				return fmt.Errorf("boltstore: corrupt dimension: %w", err)
			}
			return cfg.CheckPersisted(string(name), dim)
		}

		if err := meta.Put(keyCodec, []byte(cfg.Codec.Name())); err != nil {
			return err
		}
		if err := meta.Put(keyDimension, []byte(strconv.Itoa(cfg.Dimension))); err != nil {
			return err
		}
		return meta.Put(keyVersion, encodeVersion(0))
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, cfg: cfg}, nil
}

func encodeVersion(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeVersion(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func bumpVersion(tx *bbolt.Tx) error {
	meta := tx.Bucket(bucketMeta)
	return meta.Put(keyVersion, encodeVersion(decodeVersion(meta.Get(keyVersion))+1))
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return ctx.Err()
}

func (s *Store) Put(ctx context.Context, rec model.Record) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := store.Validate(rec, s.cfg.Dimension); err != nil {
		return err
	}
	data, err := store.EncodeRecord(s.cfg.Codec, rec)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketRecords).Put([]byte(rec.ID), data); err != nil {
			return err
		}
		return bumpVersion(tx)
	})
}

func (s *Store) PutBatch(ctx context.Context, recs []model.Record) ([]error, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	errs, valid := store.ValidateBatch(recs, s.cfg.Dimension)
	if len(valid) == 0 {
		return errs, nil
	}

	encoded := make([][]byte, len(valid))
	for j, i := range valid {
		data, err := store.EncodeRecord(s.cfg.Codec, recs[i])
		if err != nil {
			return nil, err
		}
		encoded[j] = data
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for j, i := range valid {
			if err := b.Put([]byte(recs[i].ID), encoded[j]); err != nil {
				return err
			}
		}
		return bumpVersion(tx)
	})
	if err != nil {
		return nil, err
	}
	return errs, nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Record, error) {
	if err := s.check(ctx); err != nil {
		return model.Record{}, err
	}

	var rec model.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRecords).Get([]byte(id))
		if data == nil {
			return store.ErrNotFound
		}
		var err error
		rec, err = store.DecodeRecord(s.cfg.Codec, data)
		return err
	})
	return rec, err
}

func (s *Store) GetMany(ctx context.Context, ids []string) ([]model.Record, []bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, nil, err
	}

	recs := make([]model.Record, len(ids))
	found := make([]bool, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for i, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			rec, err := store.DecodeRecord(s.cfg.Codec, data)
			if err != nil {
				return err
			}
			recs[i], found[i] = rec, true
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return recs, found, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		removed = 0
		b := tx.Bucket(bucketRecords)
		for _, id := range store.UniqueIDs(ids) {
			key := []byte(id)
			if b.Get(key) == nil {
				continue
			}
			if err := b.Delete(key); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return nil
		}
		return bumpVersion(tx)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Scan reads records in pages of store.ScanPageSize, one read transaction
// per page, resuming after the last key seen.
func (s *Store) Scan(ctx context.Context) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		var after []byte
		for {
			if err := s.check(ctx); err != nil {
				yield(model.Record{}, err)
				return
			}

			page := make([]model.Record, 0, store.ScanPageSize)
			err := s.db.View(func(tx *bbolt.Tx) error {
				c := tx.Bucket(bucketRecords).Cursor()
				var k, v []byte
				if after == nil {
					k, v = c.First()
				} else {
					k, v = c.Seek(after)
					if k != nil && bytes.Equal(k, after) {
						k, v = c.Next()
					}
				}
				for ; k != nil && len(page) < store.ScanPageSize; k, v = c.Next() {
					rec, err := store.DecodeRecord(s.cfg.Codec, v)
					if err != nil {
						return err
					}
					page = append(page, rec)
				}
				return nil
			})
			if err != nil {
				yield(model.Record{}, err)
				return
			}

			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < store.ScanPageSize {
				return
			}
			after = []byte(page[len(page)-1].ID)
		}
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) Version(ctx context.Context) (uint64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var v uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v = decodeVersion(tx.Bucket(bucketMeta).Get(keyVersion))
		return nil
	})
	return v, err
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil && !errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return err
	}
	return nil
}
