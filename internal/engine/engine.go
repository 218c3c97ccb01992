// Package engine ties the position store to the notification hub.
//
// All mutations flow through the Engine: the store commit happens first,
// under the store's lock, and observers are notified after the lock has
// been released.
package engine

import (
	"context"

	"portfolio-enginev1/internal/hub"
	"portfolio-enginev1/internal/model"
	"portfolio-enginev1/internal/portfolio"
)

// Engine applies mutations to the store and triggers post-commit notification.
type Engine struct {
	store *portfolio.Store
	hub   *hub.Hub

	// Metrics hooks (optional, set externally)
	OnApplied func(n int)
	OnSkipped func(n int)
	OnNotify  func(changed int)
	OnInsert  func()
	OnRemove  func()
}

// New creates an Engine over the given store and hub.
func New(store *portfolio.Store, h *hub.Hub) *Engine {
	return &Engine{store: store, hub: h}
}

// Store returns the underlying store for read-path callers.
func (e *Engine) Store() *portfolio.Store { return e.store }

// ApplyTick applies a single price tick. Returns true if a position was
// updated; false for unknown tickers. Invalid ticks surface a typed error.
func (e *Engine) ApplyTick(ctx context.Context, t model.Tick) (bool, error) {
	ok, err := e.store.UpdatePrice(t.Ticker, t.Price, t.ChangeRate)
	if err != nil {
		return false, err
	}
	if !ok {
		if e.OnSkipped != nil {
			e.OnSkipped(1)
		}
		return false, nil
	}
	if e.OnApplied != nil {
		e.OnApplied(1)
	}
	e.notify(ctx, []string{t.Ticker})
	return true, nil
}

// ApplyBatch applies a batch of ticks in one lock window and notifies once
// with every ticker that actually changed.
func (e *Engine) ApplyBatch(ctx context.Context, ticks []model.Tick) []string {
	changed := e.store.BatchUpdate(ticks)
	if e.OnApplied != nil {
		e.OnApplied(len(changed))
	}
	if e.OnSkipped != nil {
		e.OnSkipped(len(ticks) - len(changed))
	}
	e.notify(ctx, changed)
	return changed
}

// AddPosition inserts a position and notifies observers of the new ticker.
func (e *Engine) AddPosition(ctx context.Context, ticker, name string, qty, avgPrice int64) error {
	if err := e.store.Insert(ticker, name, qty, avgPrice); err != nil {
		return err
	}
	if e.OnInsert != nil {
		e.OnInsert()
	}
	e.notify(ctx, []string{ticker})
	return nil
}

// RemovePosition removes a position and notifies observers if it existed.
func (e *Engine) RemovePosition(ctx context.Context, ticker string) bool {
	if !e.store.Remove(ticker) {
		return false
	}
	if e.OnRemove != nil {
		e.OnRemove()
	}
	e.notify(ctx, []string{ticker})
	return true
}

func (e *Engine) notify(ctx context.Context, changed []string) {
	if len(changed) == 0 {
		return
	}
	if e.OnNotify != nil {
		e.OnNotify(len(changed))
	}
	e.hub.Notify(ctx, changed)
}
