package vecsearch

import (
	"context"
	"errors"
	"fmt"
)

// Close writes advisory index snapshots (unless disabled) and closes every
// open collection. Further calls are no-ops.
func (db *DB) Close() error {
	if db == nil {
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	ctx := context.Background()
	var errs []error
	for name, c := range db.collections {
		if err := c.close(ctx, db.opts.snapshotOnClose); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	db.collections = nil
	return errors.Join(errs...)
}

func (c *Collection) close(ctx context.Context, snapshot bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if snapshot && c.db.snapshots != nil && !c.stale.Load() {
		// Logged by snapshotLocked.
		_ = c.snapshotLocked(ctx)
	}
	return translateError(c.store.Close())
}
