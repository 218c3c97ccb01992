package model

// Position represents one tracked holding, keyed by ticker.
// Prices are stored as int64 in the smallest currency unit to avoid float drift.
type Position struct {
	Ticker     string  `json:"ticker"`      // unique identifier, immutable after insert
	Name       string  `json:"name"`        // display name, immutable after insert
	Qty        int64   `json:"qty"`         // positive = long, negative = short
	AvgPrice   int64   `json:"avg_price"`   // average acquisition price per unit
	LastPrice  int64   `json:"last_price"`  // last observed market price, 0 = no data yet
	ChangeRate float64 `json:"change_rate"` // last tick-over-tick change percentage
	ProfitRate float64 `json:"profit_rate"` // derived, see Derive
	ProfitLoss int64   `json:"profit_loss"` // derived, see Derive
}

// Derive recomputes the derived fields of a position from its cost basis,
// current price, and quantity. Total over its domain: a zero cost basis
// yields profitRate 0 rather than a division error, and profitLoss stays
// well-defined for any input.
func Derive(avgPrice, lastPrice, qty int64) (profitRate float64, profitLoss int64) {
	if avgPrice > 0 {
		profitRate = (float64(lastPrice)/float64(avgPrice) - 1) * 100
	}
	profitLoss = (lastPrice - avgPrice) * qty
	return profitRate, profitLoss
}

// Recalc applies Derive to the position in place.
func (p *Position) Recalc() {
	p.ProfitRate, p.ProfitLoss = Derive(p.AvgPrice, p.LastPrice, p.Qty)
}

// MarketValue returns the position's value at the last observed price.
func (p *Position) MarketValue() int64 {
	return p.LastPrice * p.Qty
}

// Cost returns the position's total acquisition cost.
func (p *Position) Cost() int64 {
	return p.AvgPrice * p.Qty
}
