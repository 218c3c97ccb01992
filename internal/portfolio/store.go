// Package portfolio owns the in-memory position store.
//
// The store is a mutex-guarded map keyed by ticker. Every read or write of
// the map goes through the lock, batch updates hold it for the whole batch,
// and reads copy records out before releasing it so callers never observe a
// record mid-mutation.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"portfolio-enginev1/internal/model"
)

// ErrInvalidInput is returned when an insert or update carries economically
// invalid values (negative cost basis, negative price, empty ticker).
var ErrInvalidInput = errors.New("invalid input")

// Store maps ticker -> position with O(1) lookup and update.
type Store struct {
	mu      sync.RWMutex
	records map[string]*model.Position
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*model.Position),
	}
}

// Insert creates a position with no price data yet. Inserting an existing
// ticker replaces the prior record (last writer wins). Derived fields start
// at zero because LastPrice starts at zero.
func (s *Store) Insert(ticker, name string, qty, avgPrice int64) error {
	if ticker == "" {
		return fmt.Errorf("insert: empty ticker: %w", ErrInvalidInput)
	}
	if avgPrice < 0 {
		return fmt.Errorf("insert %s: negative avg price %d: %w", ticker, avgPrice, ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ticker] = &model.Position{
		Ticker:   ticker,
		Name:     name,
		Qty:      qty,
		AvgPrice: avgPrice,
	}
	return nil
}

// Get returns a snapshot copy of the position for ticker.
// Absence is a normal outcome, signalled by the bool.
func (s *Store) Get(ticker string) (model.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.records[ticker]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// UpdatePrice applies one tick to the position for ticker and recomputes its
// derived fields atomically. Returns false when the ticker is unknown — the
// feed may reference tickers that were never added, which is not an error.
func (s *Store) UpdatePrice(ticker string, price int64, changeRate float64) (bool, error) {
	if price < 0 {
		return false, fmt.Errorf("update %s: negative price %d: %w", ticker, price, ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[ticker]
	if !ok {
		return false, nil
	}
	p.LastPrice = price
	p.ChangeRate = changeRate
	p.Recalc()
	return true, nil
}

// BatchUpdate applies every tick under a single lock window so concurrent
// readers never see a half-applied batch. Ticks for unknown tickers or with
// negative prices are skipped. Returns the tickers that were actually
// updated, in application order.
func (s *Store) BatchUpdate(ticks []model.Tick) []string {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := make([]string, 0, len(ticks))
	for _, t := range ticks {
		if t.Price < 0 {
			continue
		}
		p, ok := s.records[t.Ticker]
		if !ok {
			continue
		}
		p.LastPrice = t.Price
		p.ChangeRate = t.ChangeRate
		p.Recalc()
		applied = append(applied, t.Ticker)
	}
	return applied
}

// Remove deletes the position for ticker. Returns false if it was absent.
func (s *Store) Remove(ticker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[ticker]; !ok {
		return false
	}
	delete(s.records, ticker)
	return true
}

// Positions returns a snapshot of all positions at a single instant,
// sorted by ticker for stable output.
func (s *Store) Positions() []model.Position {
	s.mu.RLock()
	result := make([]model.Position, 0, len(s.records))
	for _, p := range s.records {
		result = append(result, *p)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Ticker < result[j].Ticker })
	return result
}

// Summary scans all positions once under the read lock and returns
// portfolio-wide totals consistent with a single instant.
func (s *Store) Summary() model.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum model.Summary
	for _, p := range s.records {
		sum.TotalCost += p.Cost()
		sum.TotalValue += p.MarketValue()
	}
	sum.TotalProfit = sum.TotalValue - sum.TotalCost
	if sum.TotalCost > 0 {
		sum.TotalReturn = (float64(sum.TotalValue)/float64(sum.TotalCost) - 1) * 100
	}
	sum.Count = len(s.records)
	return sum
}

// Len returns the number of tracked positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
