// Package badgerstore implements store.Store on top of BadgerDB v4.
//
// Records live under the "r/" key prefix, settings and the mutation
// version under "m/". Mutations run in a single badger transaction.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

// DirName is the conventional name of the badger directory inside a collection directory.
const DirName = "records"

var (
	prefixRecord = []byte("r/")

	keyCodec     = []byte("m/codec")
	keyDimension = []byte("m/dimension")
	keyVersion   = []byte("m/version")
)

// Options configures Open.
type Options struct {
	// Dir is the badger data directory. Ignored when InMemory is set.
	Dir string
	// InMemory runs badger without disk persistence.
	InMemory bool
	// Logger receives badger's internal log output. Nil silences it.
	Logger *slog.Logger
}

// Store is a badger-backed store.Store.
type Store struct {
	db     *badger.DB
	cfg    store.Config
	closed atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open opens or creates a badger store.
func Open(cfg store.Config, opts Options) (*Store, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerstore: Options.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(slogLogger{l: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", opts.Dir, err)
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.initMeta(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initMeta() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyCodec)
		switch {
		case err == nil:
			name, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			dimItem, err := txn.Get(keyDimension)
			if err != nil {
				return fmt.Errorf("badgerstore: missing dimension: %w", err)
			}
			raw, err := dimItem.ValueCopy(nil)
			if err != nil {
				return err
			}
			dim, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("badgerstore: corrupt dimension: %w", err)
			}
			return s.cfg.CheckPersisted(string(name), dim)
		case errors.Is(err, badger.ErrKeyNotFound):
			if err := txn.Set(keyCodec, []byte(s.cfg.Codec.Name())); err != nil {
				return err
			}
			if err := txn.Set(keyDimension, []byte(strconv.Itoa(s.cfg.Dimension))); err != nil {
				return err
			}
			return txn.Set(keyVersion, encodeVersion(0))
		default:
			return err
		}
	})
}

func recordKey(id string) []byte {
	k := make([]byte, 0, len(prefixRecord)+len(id))
	k = append(k, prefixRecord...)
	return append(k, id...)
}

func encodeVersion(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func readVersion(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(keyVersion)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) == 8 {
			v = binary.BigEndian.Uint64(val)
		}
		return nil
	})
	return v, err
}

func bumpVersion(txn *badger.Txn) error {
	v, err := readVersion(txn)
	if err != nil {
		return err
	}
	return txn.Set(keyVersion, encodeVersion(v+1))
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
	return s.commit([]model.Record{rec})
}

func (s *Store) PutBatch(ctx context.Context, recs []model.Record) ([]error, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	errs, valid := store.ValidateBatch(recs, s.cfg.Dimension)
	if len(valid) == 0 {
		return errs, nil
	}

	batch := make([]model.Record, len(valid))
	for j, i := range valid {
		batch[j] = recs[i]
	}
	if err := s.commit(batch); err != nil {
		return nil, err
	}
	return errs, nil
}

// commit writes already validated records in one transaction.
func (s *Store) commit(recs []model.Record) error {
	encoded := make([][]byte, len(recs))
	for i, rec := range recs {
		data, err := store.EncodeRecord(s.cfg.Codec, rec)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for i, rec := range recs {
			if err := txn.Set(recordKey(rec.ID), encoded[i]); err != nil {
				return err
			}
		}
		return bumpVersion(txn)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: commit: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Record, error) {
	if err := s.check(ctx); err != nil {
		return model.Record{}, err
	}

	var rec model.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = store.DecodeRecord(s.cfg.Codec, val)
			return err
		})
	})
	return rec, err
}

func (s *Store) GetMany(ctx context.Context, ids []string) ([]model.Record, []bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, nil, err
	}

	recs := make([]model.Record, len(ids))
	found := make([]bool, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for i, id := range ids {
			item, err := txn.Get(recordKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				rec, err := store.DecodeRecord(s.cfg.Codec, val)
				if err != nil {
					return err
				}
				recs[i], found[i] = rec, true
				return nil
			})
			if err != nil {
				return err
			}
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
	err := s.db.Update(func(txn *badger.Txn) error {
		removed = 0
		for _, id := range store.UniqueIDs(ids) {
			key := recordKey(id)
			if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
				continue
			} else if err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		if removed == 0 {
			return nil
		}
		return bumpVersion(txn)
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: commit: %w", err)
	}
	return removed, nil
}

// Scan iterates the record prefix in pages, one read transaction per page.
func (s *Store) Scan(ctx context.Context) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		seek := prefixRecord
		skipFirst := false
		for {
			if err := s.check(ctx); err != nil {
				yield(model.Record{}, err)
				return
			}

			page := make([]model.Record, 0, store.ScanPageSize)
			err := s.db.View(func(txn *badger.Txn) error {
				opts := badger.DefaultIteratorOptions
				opts.Prefix = prefixRecord
				it := txn.NewIterator(opts)
				defer it.Close()

				for it.Seek(seek); it.ValidForPrefix(prefixRecord) && len(page) < store.ScanPageSize; it.Next() {
					item := it.Item()
					if skipFirst && bytes.Equal(item.Key(), seek) {
						continue
					}
					err := item.Value(func(val []byte) error {
						rec, err := store.DecodeRecord(s.cfg.Codec, val)
						if err != nil {
							return err
						}
						page = append(page, rec)
						return nil
					})
					if err != nil {
						return err
					}
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
			seek = recordKey(page[len(page)-1].ID)
			skipFirst = true
		}
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefixRecord
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) Version(ctx context.Context) (uint64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var v uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = readVersion(txn)
		return err
	})
	return v, err
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
