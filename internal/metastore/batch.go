package metastore

import (
	"context"
	"database/sql"
	"fmt"
)

// batchFlushInterval is the default number of SetBlock calls between
// flushes (spec.md: "writes to meta are batched (_commit=False) and
// flushed periodically (every N≈1000 rows) and finally at close").
const batchFlushInterval = 1000

// Batch accumulates block writes in a single long-lived transaction,
// flushing periodically instead of committing on every call. It is used by
// the backup loop, which would otherwise pay an fsync per block.
//
// A Batch is not safe for concurrent use.
type Batch struct {
	store         *Store
	ctx           context.Context
	tx            *sql.Tx
	flushInterval int
	pending       int
}

// NewBatch starts a batch with the default flush interval.
func (s *Store) NewBatch(ctx context.Context) (*Batch, error) {
	return s.NewBatchWithInterval(ctx, batchFlushInterval)
}

// NewBatchWithInterval starts a batch that flushes every n SetBlock calls.
func (s *Store) NewBatchWithInterval(ctx context.Context, n int) (*Batch, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if n <= 0 {
		n = batchFlushInterval
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("metastore: batch: begin: %w", err)
	}

	return &Batch{store: s, ctx: ctx, tx: tx, flushInterval: n}, nil
}

// SetBlock stages a block write in the batch's open transaction, flushing
// first if the transaction is nil (i.e. was just flushed) and flushing again
// once flushInterval writes have accumulated.
func (b *Batch) SetBlock(p SetBlockParams, upsert bool) error {
	if b.tx == nil {
		tx, err := b.store.db.BeginTx(b.ctx, nil)
		if err != nil {
			return fmt.Errorf("metastore: batch: begin: %w", err)
		}

		b.tx = tx
	}

	if err := setBlockTx(b.ctx, b.tx, p, upsert); err != nil {
		_ = b.tx.Rollback()
		b.tx = nil

		return err
	}

	b.pending++

	if b.pending >= b.flushInterval {
		return b.Flush()
	}

	return nil
}

// Flush commits the batch's pending writes. It is a no-op if nothing is
// pending. Callers should call Flush (directly or via Close) after the last
// SetBlock to guarantee durability of the final partial batch.
func (b *Batch) Flush() error {
	if b.tx == nil {
		return nil
	}

	tx := b.tx
	b.tx = nil
	b.pending = 0

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metastore: batch: flush: %w", err)
	}

	return nil
}

// Close flushes any pending writes. It is safe to call multiple times.
func (b *Batch) Close() error {
	return b.Flush()
}

// Abort discards any pending writes without committing them.
func (b *Batch) Abort() error {
	if b.tx == nil {
		return nil
	}

	tx := b.tx
	b.tx = nil
	b.pending = 0

	return tx.Rollback()
}
