package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"
)

const (
	quotePath   = "/api/quote-equity"
	cookieTTL   = 5 * time.Minute
	defaultBase = "https://www.nseindia.com"
)

// ErrInvalidSymbol is returned when the exchange has no price info for a symbol.
type ErrInvalidSymbol struct {
	Symbol string
}

func (e *ErrInvalidSymbol) Error() string {
	return fmt.Sprintf("no price info for %s", e.Symbol)
}

// NSESource reads equity quotes from the exchange's public quote API. The API
// requires session cookies, so the home page is visited before the first quote
// and again once the cookies are stale.
type NSESource struct {
	SourceConfig models.MSourceConfig
	Network      interfaces.INetworkManager
	Logger       *logger.Logger

	mu       sync.Mutex
	warmedAt time.Time
}

// -----------------------------------------------------------------------------

func NewNSESource(sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *NSESource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = defaultBase
	}
	return &NSESource{
		SourceConfig: sourceCfg,
		Network:      netMgr,
		Logger:       log,
	}
}

// -----------------------------------------------------------------------------

func (s *NSESource) Name() string {
	return s.SourceConfig.Name
}

// -----------------------------------------------------------------------------

// warmUp refreshes the session cookies when stale. The caller that finds them
// stale claims the refresh under the lock and makes the request without it, so
// concurrent quotes never queue behind the home page.
func (s *NSESource) warmUp(ctx context.Context) {
	s.mu.Lock()
	if time.Since(s.warmedAt) < cookieTTL {
		s.mu.Unlock()
		return
	}
	claimed := time.Now()
	s.warmedAt = claimed
	s.mu.Unlock()

	base := strings.TrimRight(s.SourceConfig.BaseURL, "/")
	headers := map[string]string{"Accept": "text/html,application/xhtml+xml"}
	if _, err := s.Network.Get(ctx, base+"/", nil, headers); err != nil {
		s.Logger.Warning("Cookie warm-up failed: %v", err)
		s.mu.Lock()
		if s.warmedAt.Equal(claimed) {
			s.warmedAt = time.Time{}
		}
		s.mu.Unlock()
	}
}

// -----------------------------------------------------------------------------

// GetQuote fetches the current quote for symbol.
func (s *NSESource) GetQuote(ctx context.Context, symbol string) (*models.MQuote, error) {
	s.warmUp(ctx)

	base := strings.TrimRight(s.SourceConfig.BaseURL, "/")
	headers := map[string]string{"Referer": base + "/get-quotes/equity?symbol=" + symbol}

	body, err := s.Network.Get(ctx, base+quotePath, map[string]string{"symbol": symbol}, headers)
	if err != nil {
		// A rejected session usually means expired cookies.
		s.mu.Lock()
		s.warmedAt = time.Time{}
		s.mu.Unlock()
		return nil, err
	}

	return parseQuote(symbol, body)
}

// -----------------------------------------------------------------------------

type highLow struct {
	Max     flexFloat `json:"max"`
	Min     flexFloat `json:"min"`
	MaxDate string    `json:"maxDate"`
	MinDate string    `json:"minDate"`
}

type quoteResponse struct {
	Info *struct {
		Symbol      string `json:"symbol"`
		CompanyName string `json:"companyName"`
	} `json:"info"`
	PriceInfo *struct {
		LastPrice     flexFloat `json:"lastPrice"`
		Change        flexFloat `json:"change"`
		PChange       flexFloat `json:"pChange"`
		PreviousClose flexFloat `json:"previousClose"`
		Open          flexFloat `json:"open"`
		Close         flexFloat `json:"close"`
		VWAP          flexFloat `json:"vwap"`
		LowerCP       flexFloat `json:"lowerCP"`
		UpperCP       flexFloat `json:"upperCP"`
		PPriceBand    string    `json:"pPriceBand"`
		BasePrice     flexFloat `json:"basePrice"`
		TickSize      flexFloat `json:"tickSize"`
		IntraDay      highLow   `json:"intraDayHighLow"`
		Week          highLow   `json:"weekHighLow"`
	} `json:"priceInfo"`
}

func parseQuote(symbol string, data []byte) (*models.MQuote, error) {
	var resp quoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}

	if resp.PriceInfo == nil {
		return nil, &ErrInvalidSymbol{Symbol: symbol}
	}

	p := resp.PriceInfo
	q := &models.MQuote{
		Symbol:        symbol,
		LastPrice:     float64(p.LastPrice),
		Change:        float64(p.Change),
		PChange:       float64(p.PChange),
		PreviousClose: float64(p.PreviousClose),
		Open:          float64(p.Open),
		Close:         float64(p.Close),
		VWAP:          float64(p.VWAP),
		IntraDay:      models.MHighLow{Max: float64(p.IntraDay.Max), Min: float64(p.IntraDay.Min)},
		Week: models.MHighLow{
			Max:     float64(p.Week.Max),
			Min:     float64(p.Week.Min),
			MaxDate: p.Week.MaxDate,
			MinDate: p.Week.MinDate,
		},
		UpperCP:   float64(p.UpperCP),
		LowerCP:   float64(p.LowerCP),
		PriceBand: p.PPriceBand,
		BasePrice: float64(p.BasePrice),
		TickSize:  float64(p.TickSize),
		Source:    "nse",
		FetchedAt: time.Now(),
	}
	if q.PriceBand == "" {
		q.PriceBand = "N/A"
	}
	if resp.Info != nil {
		q.Name = resp.Info.CompanyName
	}
	return q, nil
}

// -----------------------------------------------------------------------------

// flexFloat accepts numbers, numeric strings and "-" (as zero). The exchange
// sends circuit limits as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flexFloat: %w", err)
	}
	*f = flexFloat(v)
	return nil
}
