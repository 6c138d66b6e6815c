package quotes

import (
	"context"
	"strings"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
)

// QuoteResolver serves quotes from the cache or, on a miss, from the upstream
// source. Concurrent misses for the same symbol each go upstream.
type QuoteResolver struct {
	Cache   *PriceCache
	Source  interfaces.IQuoteSource
	Timeout time.Duration
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// -----------------------------------------------------------------------------

func NewQuoteResolver(cache *PriceCache, source interfaces.IQuoteSource, timeout time.Duration, log *logger.Logger, m *metrics.Metrics) *QuoteResolver {
	return &QuoteResolver{
		Cache:   cache,
		Source:  source,
		Timeout: timeout,
		Logger:  log,
		Metrics: m,
	}
}

// -----------------------------------------------------------------------------

// NormalizeSymbol trims and upper-cases a symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// -----------------------------------------------------------------------------

// Resolve returns a fresh quote for symbol. Failures are *helpers.UpstreamError;
// nothing is cached for a failed fetch.
func (r *QuoteResolver) Resolve(ctx context.Context, symbol string) (*models.MQuote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, helpers.NewValidationError("symbol is required")
	}

	if q, ok := r.Cache.Get(symbol); ok {
		r.Metrics.CacheHit()
		return q, nil
	}
	r.Metrics.CacheMiss()

	fetchCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	start := time.Now()
	q, err := r.Source.GetQuote(fetchCtx, symbol)
	r.Metrics.ObserveFetch(time.Since(start).Seconds())

	if err == nil && q == nil {
		err = helpers.NewNotFoundError("no quote for %s", symbol)
	}
	if err != nil {
		r.Metrics.FetchFailed(symbol)
		r.Logger.Warning("Error fetching price for %s: %v", symbol, err)
		return nil, helpers.NewUpstreamError(symbol, err)
	}

	r.Cache.Put(symbol, q)
	return q, nil
}
