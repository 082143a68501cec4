// Package sqlstore implements store.Store on SQLite through database/sql,
// using the pure-Go modernc.org/sqlite driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

// FileName is the conventional name of the database file inside a collection directory.
const FileName = "records.sqlite"

// Schema is applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is a SQLite-backed store.Store.
type Store struct {
	db     *sql.DB
	cfg    store.Config
	closed atomic.Bool
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the SQLite database at path.
func Open(ctx context.Context, path string, cfg store.Config) (*Store, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	// SQLite serializes writers anyway; one connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.initMeta(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initMeta(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'codec'`).Scan(&name)
	switch {
	case err == nil:
		var raw string
		if err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&raw); err != nil {
			return fmt.Errorf("sqlstore: read dimension: %w", err)
		}
		dim, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("sqlstore: corrupt dimension: %w", err)
		}
		return s.cfg.CheckPersisted(name, dim)
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('codec', ?), ('dimension', ?), ('version', '0')`,
			s.cfg.Codec.Name(), strconv.Itoa(s.cfg.Dimension))
		if err != nil {
			return err
		}
		return tx.Commit()
	default:
		return err
	}
}

func bumpVersion(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `UPDATE meta SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = 'version'`)
	return err
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
	return s.commit(ctx, []model.Record{rec})
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
	if err := s.commit(ctx, batch); err != nil {
		return nil, err
	}
	return errs, nil
}

func (s *Store) commit(ctx context.Context, recs []model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		data, err := store.EncodeRecord(s.cfg.Codec, rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, data); err != nil {
			return fmt.Errorf("sqlstore: upsert %q: %w", rec.ID, err)
		}
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Get(ctx context.Context, id string) (model.Record, error) {
	if err := s.check(ctx); err != nil {
		return model.Record{}, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, store.ErrNotFound
	}
	if err != nil {
		return model.Record{}, err
	}
	return store.DecodeRecord(s.cfg.Codec, data)
}

func (s *Store) GetMany(ctx context.Context, ids []string) ([]model.Record, []bool, error) {
	if err := s.check(ctx); err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `SELECT data FROM records WHERE id = ?`)
	if err != nil {
		return nil, nil, err
	}
	defer stmt.Close()

	recs := make([]model.Record, len(ids))
	found := make([]bool, len(ids))
	for i, id := range ids {
		var data []byte
		err := stmt.QueryRowContext(ctx, id).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		rec, err := store.DecodeRecord(s.cfg.Codec, data)
		if err != nil {
			return nil, nil, err
		}
		recs[i], found[i] = rec, true
	}
	return recs, found, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	removed := 0
	for _, id := range store.UniqueIDs(ids) {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		if err != nil {
			return 0, fmt.Errorf("sqlstore: delete %q: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += int(n)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := bumpVersion(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// Scan uses keyset pagination; rows are closed before any record is yielded.
func (s *Store) Scan(ctx context.Context) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		after := ""
		first := true
		for {
			if err := s.check(ctx); err != nil {
				yield(model.Record{}, err)
				return
			}

			page, err := s.scanPage(ctx, after, first)
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
			after, first = page[len(page)-1].ID, false
		}
	}
}

func (s *Store) scanPage(ctx context.Context, after string, first bool) ([]model.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if first {
		rows, err = s.db.QueryContext(ctx, `SELECT data FROM records ORDER BY id LIMIT ?`, store.ScanPageSize)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT data FROM records WHERE id > ? ORDER BY id LIMIT ?`, after, store.ScanPageSize)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := make([]model.Record, 0, store.ScanPageSize)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec, err := store.DecodeRecord(s.cfg.Codec, data)
		if err != nil {
			return nil, err
		}
		page = append(page, rec)
	}
	return page, rows.Err()
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

func (s *Store) Version(ctx context.Context) (uint64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&raw); err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
