package engine

import (
	"context"
	"log/slog"
	"time"

	"portfolio-enginev1/internal/model"
)

const (
	defaultMaxBatch   = 100
	defaultFlushDelay = 100 * time.Millisecond
)

// Batcher coalesces the inbound tick stream into batches so a burst of ticks
// is committed under a single lock window and produces a single notification.
// Flushes every maxBatch ticks OR every flushDelay, whichever first.
type Batcher struct {
	engine     *Engine
	maxBatch   int
	flushDelay time.Duration

	// OnFlush is an optional metrics hook called with the batch size and
	// the commit duration.
	OnFlush func(n int, took time.Duration)
}

// NewBatcher creates a Batcher. Zero values select the defaults.
func NewBatcher(e *Engine, maxBatch int, flushDelay time.Duration) *Batcher {
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	if flushDelay <= 0 {
		flushDelay = defaultFlushDelay
	}
	return &Batcher{engine: e, maxBatch: maxBatch, flushDelay: flushDelay}
}

// Run consumes ticks from tickCh and applies them in batches.
// Blocks until ctx is cancelled or tickCh is closed; pending ticks are
// flushed on the way out.
func (b *Batcher) Run(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, b.maxBatch)
	timer := time.NewTimer(b.flushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		changed := b.engine.ApplyBatch(ctx, batch)
		took := time.Since(start)
		if b.OnFlush != nil {
			b.OnFlush(len(batch), took)
		}
		slog.Debug("batch committed",
			"ticks", len(batch), "applied", len(changed), "took", took)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case tick, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tick)
			if len(batch) >= b.maxBatch {
				flush()
				timer.Reset(b.flushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(b.flushDelay)
		}
	}
}
