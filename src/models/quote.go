package models

import "time"

// MHighLow is a price range. Dates are only set for the 52-week range.
type MHighLow struct {
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	MaxDate string  `json:"maxDate,omitempty"`
	MinDate string  `json:"minDate,omitempty"`
}

// MQuote is a point-in-time snapshot of one symbol. A newer quote supersedes it; it is never edited.
type MQuote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	LastPrice     float64   `json:"lastPrice"`
	Change        float64   `json:"change"`
	PChange       float64   `json:"pChange"`
	PreviousClose float64   `json:"previousClose"`
	Open          float64   `json:"open"`
	Close         float64   `json:"close"`
	VWAP          float64   `json:"vwap"`
	IntraDay      MHighLow  `json:"intraDayHighLow"`
	Week          MHighLow  `json:"weekHighLow"`
	UpperCP       float64   `json:"upperCP"`
	LowerCP       float64   `json:"lowerCP"`
	PriceBand     string    `json:"pPriceBand"`
	BasePrice     float64   `json:"basePrice"`
	TickSize      float64   `json:"tickSize"`
	Source        string    `json:"source"`
	FetchedAt     time.Time `json:"fetchedAt"`
}
