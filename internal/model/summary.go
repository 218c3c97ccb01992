package model

// Summary holds portfolio-wide totals computed by a single scan of the store.
// It is derived on demand, never stored.
type Summary struct {
	TotalCost   int64   `json:"total_cost"`
	TotalValue  int64   `json:"total_value"`
	TotalProfit int64   `json:"total_profit"`
	TotalReturn float64 `json:"total_return"` // percentage, 0 when TotalCost <= 0
	Count       int     `json:"count"`
}
