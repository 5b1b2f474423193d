// Package domain contains the core types shared across modules.
// It has no infrastructure dependencies.
package domain

// Position is one portfolio's holding of one ticker.
//
// Identity within a portfolio is the ticker symbol: at most one active
// position per ticker. Quantity 0 marks a fully sold-out position that
// stays on the books (with its audit trail) until an explicit prune.
//
// The derived fields are not authoritative - they are recomputed from
// live prices on every refresh and zeroed when the price is unknown.
type Position struct {
	StockName     string  `json:"stock_name"`
	Ticker        string  `json:"ticker"`
	Quantity      int64   `json:"quantity"`
	PurchasePrice float64 `json:"purchase_avg_price"` // quantity-weighted average across buys
	PurchaseDate  string  `json:"purchase_date,omitempty"`
	Sector        string  `json:"sector,omitempty"`

	// Derived fields, recomputed on every refresh.
	CurrentPrice    float64 `json:"current_price"`
	CurrentValue    float64 `json:"current_value"`
	InvestmentValue float64 `json:"investment_value"`
	ProfitLoss      float64 `json:"profit_loss"`
	ProfitLossPct   float64 `json:"profit_loss_pct"`
	DailyPL         float64 `json:"daily_pl"`
	DailyReturnPct  float64 `json:"daily_return_pct"`
}

// Active reports whether the position still holds shares.
func (p Position) Active() bool {
	return p.Quantity > 0
}

// Portfolio is a named, ordered collection of positions.
// Names are case-insensitively unique across the store.
type Portfolio struct {
	Name      string     `json:"name"`
	Positions []Position `json:"positions"`
}

// PortfolioMetrics holds portfolio-level aggregates over active positions.
type PortfolioMetrics struct {
	Positions       int     `json:"positions"` // active positions only
	InvestmentValue float64 `json:"investment_value"`
	CurrentValue    float64 `json:"current_value"`
	ProfitLoss      float64 `json:"profit_loss"`
	ProfitLossPct   float64 `json:"profit_loss_pct"`
	DailyPL         float64 `json:"daily_pl"`
}

// Quote is a resolved price pair for one ticker.
// Either leg may be nil when the provider could not supply it.
type Quote struct {
	Current  *float64
	Previous *float64
}
