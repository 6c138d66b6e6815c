package models

// MPortfolioPosition is one valued lot of a holdings document.
type MPortfolioPosition struct {
	Symbol       string  `json:"symbol"`
	Quantity     int64   `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	LastPrice    float64 `json:"last_price"`
	Change       float64 `json:"change"`
	PChange      float64 `json:"pChange"`
	HoldingValue float64 `json:"holding_value"`
	ChangeValue  float64 `json:"day_pnl"`
	Invested     float64 `json:"invested"`
	Error        string  `json:"error,omitempty"`
}

// MPortfolioSummary values a holdings document against live quotes.
// DayChangePercent is nil when the previous-day value is zero.
type MPortfolioSummary struct {
	HoldingID        string               `json:"HoldingId"`
	Positions        []MPortfolioPosition `json:"positions"`
	TotalValue       float64              `json:"total_value"`
	TotalInvested    float64              `json:"total_invested"`
	TotalChangeValue float64              `json:"total_day_pnl"`
	DayChangePercent *float64             `json:"day_change_percent"`
	DayChangeDefined bool                 `json:"day_change_defined"`
	GeneratedAt      int64                `json:"generated_at"`
}
