package models

// MMarketStatus is the exchange session state at a point in time.
type MMarketStatus struct {
	MIC        string `json:"mic"`
	Open       bool   `json:"is_open"`
	TradingDay bool   `json:"trading_day"`
	Timezone   string `json:"timezone"`
	LocalTime  string `json:"local_time"`
	Source     string `json:"source"` // "calendar" or "fallback"
}
