package ledger

import (
	"fmt"
	"strings"

	"stock-exchange/src/helpers"
	"stock-exchange/src/models"

	"github.com/shopspring/decimal"
)

// ValidateRequest normalizes req in place and rejects malformed input.
func ValidateRequest(req *models.MOrderRequest) error {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	req.OrderType = strings.ToUpper(strings.TrimSpace(req.OrderType))
	req.Email = strings.TrimSpace(req.Email)
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.HoldingID = strings.TrimSpace(req.HoldingID)

	switch {
	case req.Symbol == "":
		return helpers.NewValidationError("Symbol cannot be empty")
	case req.Quantity <= 0:
		return helpers.NewValidationError("Quantity must be positive")
	case !req.TargetPrice.IsPositive():
		return helpers.NewValidationError("Price must be positive")
	case req.OrderType != models.OrderTypeBuy && req.OrderType != models.OrderTypeSell:
		return helpers.NewValidationError("Order type must be BUY or SELL")
	case req.Email == "":
		return helpers.NewValidationError("Email cannot be empty")
	case req.OrderID == "":
		return helpers.NewValidationError("OrderId cannot be empty")
	case req.HoldingID == "":
		return helpers.NewValidationError("HoldingId cannot be empty")
	}
	return nil
}

// -----------------------------------------------------------------------------

// TotalAmount is quantity * target price.
func TotalAmount(req *models.MOrderRequest) decimal.Decimal {
	return req.TargetPrice.Mul(decimal.NewFromInt(req.Quantity))
}

// -----------------------------------------------------------------------------

// CheckOrder runs the business checks against a snapshot, stopping at the first
// failure: account, then holdings for a SELL, then balance for a BUY.
func CheckOrder(req *models.MOrderRequest, account *models.MAccount, holdings *models.MHoldings) error {
	if account == nil {
		return helpers.NewNotFoundError("User not found")
	}

	if req.OrderType == models.OrderTypeSell {
		if holdings == nil {
			return helpers.NewNotFoundError("Holding not found")
		}
		lot, ok := holdings.Lot(req.Symbol)
		if !ok {
			return helpers.NewNotFoundError("No holdings found for symbol %s", req.Symbol)
		}
		if lot.Quantity < req.Quantity {
			return &helpers.InsufficientHoldingsError{
				ExchangeError: helpers.ExchangeError{
					Message: fmt.Sprintf("Insufficient holdings. Available: %d, Requested: %d", lot.Quantity, req.Quantity),
				},
				Symbol:    req.Symbol,
				Available: lot.Quantity,
				Requested: req.Quantity,
			}
		}
	}

	if req.OrderType == models.OrderTypeBuy {
		total := TotalAmount(req)
		if account.Balance.LessThan(total) {
			return &helpers.InsufficientFundsError{
				ExchangeError: helpers.ExchangeError{
					Message: fmt.Sprintf("Insufficient balance. Required: $%s, Available: $%s", total.StringFixed(2), account.Balance.StringFixed(2)),
				},
				Required:  total.StringFixed(2),
				Available: account.Balance.StringFixed(2),
			}
		}
	}

	return nil
}
