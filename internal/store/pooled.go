package store

import (
	"context"

	"github.com/dreamware/kvserve/internal/dbpool"
)

// Pooled implements Store by borrowing a session from the pool for the
// duration of each call.
//
// The caller's context bounds only the acquire wait: a deadline there
// means "the request gave up queueing for a session". Once a session is
// held the operation runs on a detached context, so a caller that
// abandons its result does not cancel an in-flight store mutation —
// the session's own read/write timeouts bound the call instead.
type Pooled struct {
	pool  *dbpool.Pool
	table *Table
}

// NewPooled composes a pool and a table adapter into a Store.
func NewPooled(pool *dbpool.Pool, table *Table) *Pooled {
	return &Pooled{pool: pool, table: table}
}

func (p *Pooled) SelectValue(ctx context.Context, key int64) ([]byte, error) {
	sess, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.pool.Release(sess)
	return p.table.SelectValue(context.WithoutCancel(ctx), sess, key)
}

func (p *Pooled) Upsert(ctx context.Context, key int64, value []byte) error {
	sess, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.pool.Release(sess)
	return p.table.Upsert(context.WithoutCancel(ctx), sess, key, value)
}

func (p *Pooled) Delete(ctx context.Context, key int64) (int64, error) {
	sess, err := p.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer p.pool.Release(sess)
	return p.table.Delete(context.WithoutCancel(ctx), sess, key)
}
