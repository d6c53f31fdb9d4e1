package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/bulkship/internal/domain"
)

// Accumulator defaults and bounds.
const (
	DefaultBulkSize      = 1000
	DefaultMaxBatchBytes = 10 << 20
	DefaultFlushInterval = 10 * time.Second

	minBulkSize      = 1
	maxBulkSize      = 10000
	minMaxBatchBytes = 1 << 10
	maxMaxBatchBytes = 100 << 20
	minFlushInterval = 100 * time.Millisecond
	maxFlushInterval = 10 * time.Minute
)

// BatcherConfig controls when the accumulator flushes.
type BatcherConfig struct {
	BulkSize      int
	MaxBatchBytes int
	FlushInterval time.Duration
}

// SetDefaults fills zero values and clamps the rest into range.
func (c *BatcherConfig) SetDefaults() {
	if c.BulkSize <= 0 {
		c.BulkSize = DefaultBulkSize
	}
	if c.MaxBatchBytes <= 0 {
		c.MaxBatchBytes = DefaultMaxBatchBytes
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	c.BulkSize = min(max(c.BulkSize, minBulkSize), maxBulkSize)
	c.MaxBatchBytes = min(max(c.MaxBatchBytes, minMaxBatchBytes), maxMaxBatchBytes)
	c.FlushInterval = min(max(c.FlushInterval, minFlushInterval), maxFlushInterval)
}

// FlushFunc receives ownership of a detached, non-empty batch.
type FlushFunc func(b *domain.Batch)

// Batcher accumulates encoded records and detaches them as batches when
// the count, byte or idle trigger fires.
type Batcher struct {
	cfg   BatcherConfig
	flush FlushFunc
	now   func() time.Time

	mu        sync.Mutex
	batch     *domain.Batch
	lastFlush time.Time
}

// NewBatcher creates a batcher that hands flushed batches to fn.
func NewBatcher(cfg BatcherConfig, fn FlushFunc) *Batcher {
	cfg.SetDefaults()
	if fn == nil {
		fn = func(*domain.Batch) {}
	}
	return &Batcher{
		cfg:       cfg,
		flush:     fn,
		now:       time.Now,
		batch:     domain.NewBatch(),
		lastFlush: time.Now(),
	}
}

// Config returns the effective configuration.
func (b *Batcher) Config() BatcherConfig {
	return b.cfg
}

// Append adds a record to the open batch. Any batch detached by a trigger
// is passed to the flush callback after the lock is released.
func (b *Batcher) Append(rec domain.Record) {
	var ready []*domain.Batch

	b.mu.Lock()
	// A record that does not fit next to the pending ones closes the batch.
	if !b.batch.Empty() && b.batch.Bytes()+rec.Len() > b.cfg.MaxBatchBytes {
		ready = append(ready, b.detachLocked())
	}
	b.batch.Add(rec)
	// Oversized records end up alone and leave immediately.
	if b.batch.Count() >= b.cfg.BulkSize || b.batch.Bytes() >= b.cfg.MaxBatchBytes {
		ready = append(ready, b.detachLocked())
	}
	b.mu.Unlock()

	for _, batch := range ready {
		b.flush(batch)
	}
}

// Flush detaches the open batch and returns it, or nil when nothing is
// pending. The caller owns the result; the callback is not invoked.
func (b *Batcher) Flush() *domain.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.batch.Empty() {
		return nil
	}
	return b.detachLocked()
}

// Tick applies the idle trigger: pending records are flushed once a full
// interval has passed since the previous flush.
func (b *Batcher) Tick(now time.Time) bool {
	b.mu.Lock()
	if b.batch.Empty() || now.Sub(b.lastFlush) < b.cfg.FlushInterval {
		b.mu.Unlock()
		return false
	}
	batch := b.detachLocked()
	b.mu.Unlock()

	b.flush(batch)
	return true
}

// Run drives the idle trigger until ctx is done.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Tick(b.now())
		}
	}
}

// Pending returns the number of records waiting in the open batch.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batch.Count()
}

func (b *Batcher) detachLocked() *domain.Batch {
	out := b.batch
	b.batch = domain.NewBatch()
	b.lastFlush = b.now()
	return out
}
