package interfaces

import (
	"context"

	"stock-exchange/src/models"
)

// -----------------------------------------------------------------------------
// IQuoteSource returns a point-in-time quote for a symbol or fails.
// -----------------------------------------------------------------------------

type IQuoteSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// GetQuote fetches the current quote. Implementations must honour ctx cancellation.
	GetQuote(ctx context.Context, symbol string) (*models.MQuote, error)
}
