package model

import "time"

// Tick represents a single price update from the market data feed.
type Tick struct {
	Ticker     string    `json:"ticker"`
	Price      int64     `json:"price"`       // smallest currency unit
	ChangeRate float64   `json:"change_rate"` // tick-over-tick change percentage
	TickTS     time.Time `json:"tick_ts"`     // UTC timestamp
}
