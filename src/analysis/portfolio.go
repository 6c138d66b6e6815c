package analysis

import (
	"context"
	"time"

	"stock-exchange/src/analysis/core"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// QuoteResolver is the slice of quotes.QuoteResolver the valuation needs.
type QuoteResolver interface {
	Resolve(ctx context.Context, symbol string) (*models.MQuote, error)
}

// PortfolioAnalyzer values holdings documents against live quotes.
type PortfolioAnalyzer struct {
	Quotes      QuoteResolver
	Concurrency int
	Logger      *logger.Logger
}

type lotTotals struct {
	invested, value, pnl decimal.Decimal
}

// -----------------------------------------------------------------------------

func NewPortfolioAnalyzer(quotes QuoteResolver, concurrency int, log *logger.Logger) *PortfolioAnalyzer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PortfolioAnalyzer{Quotes: quotes, Concurrency: concurrency, Logger: log}
}

// -----------------------------------------------------------------------------

// Summarize resolves every lot's quote and totals the result. A lot whose quote
// fails is reported with its error and left out of the totals.
func (a *PortfolioAnalyzer) Summarize(ctx context.Context, holdings *models.MHoldings) *models.MPortfolioSummary {
	positions := make([]models.MPortfolioPosition, len(holdings.Lots))
	// Money stays decimal until it is written into the float view.
	exact := make([]lotTotals, len(holdings.Lots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Concurrency)

	for i, lot := range holdings.Lots {
		g.Go(func() error {
			invested := lot.Price.Mul(decimal.NewFromInt(lot.Quantity))
			pos := models.MPortfolioPosition{
				Symbol:   lot.Symbol,
				Quantity: lot.Quantity,
				AvgPrice: lot.Price.InexactFloat64(),
				Invested: invested.InexactFloat64(),
			}
			exact[i].invested = invested

			q, err := a.Quotes.Resolve(gctx, lot.Symbol)
			if err != nil {
				a.Logger.Warning("Portfolio %s: no quote for %s: %v", holdings.HoldingID, lot.Symbol, err)
				pos.Error = err.Error()
			} else {
				pos.LastPrice = q.LastPrice
				pos.Change = q.Change
				pos.PChange = q.PChange
				value, pnl := core.PositionValueDecimal(q.LastPrice, q.Change, lot.Quantity)
				pos.HoldingValue, pos.ChangeValue = value.InexactFloat64(), pnl.InexactFloat64()
				exact[i].value, exact[i].pnl = value, pnl
			}

			positions[i] = pos
			return nil
		})
	}
	_ = g.Wait()

	summary := &models.MPortfolioSummary{
		HoldingID:   holdings.HoldingID,
		Positions:   positions,
		GeneratedAt: time.Now().UnixMilli(),
	}

	var totalValue, totalPnL, totalInvested decimal.Decimal
	for i, p := range positions {
		if p.Error != "" {
			continue
		}
		totalValue = totalValue.Add(exact[i].value)
		totalPnL = totalPnL.Add(exact[i].pnl)
		totalInvested = totalInvested.Add(exact[i].invested)
	}
	summary.TotalValue = totalValue.InexactFloat64()
	summary.TotalChangeValue = totalPnL.InexactFloat64()
	summary.TotalInvested = totalInvested.InexactFloat64()

	if pct, ok := core.DayChangePercent(summary.TotalValue, summary.TotalChangeValue); ok {
		summary.DayChangePercent = &pct
		summary.DayChangeDefined = true
	}
	return summary
}
