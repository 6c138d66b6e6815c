package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeBuy  = "BUY"
	OrderTypeSell = "SELL"

	OrderStatusExecuted = "EXECUTED"
)

// MOrderRequest is the order placement payload. Field names follow the public API.
type MOrderRequest struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	OrderType   string          `json:"order_type"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Email       string          `json:"Email"`
	OrderID     string          `json:"OrderId"`
	HoldingID   string          `json:"HoldingId"`
}

// MOrder is an executed order. Orders are insert-only; corrections are new orders.
type MOrder struct {
	ID            string          `json:"OrderId"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	OrderType     string          `json:"order_type"`
	TargetPrice   decimal.Decimal `json:"target_price"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Status        string          `json:"status"`
	Email         string          `json:"Email"`
	HoldingID     string          `json:"HoldingId"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MOrderFilter narrows order listings. Empty fields match everything.
type MOrderFilter struct {
	Status string
	Symbol string
	Email  string
}

// MAccount is a user's cash account.
type MAccount struct {
	Email       string          `json:"Email"`
	Name        string          `json:"Name"`
	Balance     decimal.Decimal `json:"Balance"`
	HoldingID   string          `json:"HoldingId"`
	WatchlistID string          `json:"WatchlistId"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MHoldingLot is the aggregated position of one symbol inside a holdings document.
type MHoldingLot struct {
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"` // average cost basis
	UpdatedAt time.Time       `json:"updated_at"`
}

// MHoldings is the holdings document of a holding account.
type MHoldings struct {
	HoldingID string        `json:"HoldingId"`
	Lots      []MHoldingLot `json:"Holdings"`
}

// Lot returns the lot for symbol, if present.
func (h *MHoldings) Lot(symbol string) (MHoldingLot, bool) {
	if h == nil {
		return MHoldingLot{}, false
	}
	for _, l := range h.Lots {
		if l.Symbol == symbol {
			return l, true
		}
	}
	return MHoldingLot{}, false
}

// MWatchlist is a named list of symbols.
type MWatchlist struct {
	WatchlistID string   `json:"WatchlistId"`
	Symbols     []string `json:"Names"`
}
