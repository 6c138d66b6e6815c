package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"
)

const defaultBase = "https://query1.finance.yahoo.com"

type YahooFinanceSource struct {
	SourceConfig models.MSourceConfig // Store specific source config (Generic settings)
	Network      interfaces.INetworkManager
	Logger       *logger.Logger
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) Name() string {
	return s.SourceConfig.Name
}

// -----------------------------------------------------------------------------

func NewYahooFinanceSource(sourceCfg models.MSourceConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *YahooFinanceSource {
	if sourceCfg.BaseURL == "" {
		sourceCfg.BaseURL = defaultBase
	}
	return &YahooFinanceSource{
		SourceConfig: sourceCfg,
		Network:      netMgr,
		Logger:       log,
	}
}

// -----------------------------------------------------------------------------

// GetQuote builds a quote from the chart endpoint's meta block. The exchange
// suffix (e.g. ".NS") is appended for the request and stripped from the result.
func (s *YahooFinanceSource) GetQuote(ctx context.Context, symbol string) (*models.MQuote, error) {
	params := map[string]string{
		"interval":       "1d",
		"range":          "1d",
		"includePrePost": "false",
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s%s", strings.TrimRight(s.SourceConfig.BaseURL, "/"), symbol, s.SourceConfig.SymbolSuffix)

	respBytes, err := s.Network.Get(ctx, url, params, nil)
	if err != nil {
		return nil, fmt.Errorf("network error for %s: %w", symbol, err)
	}

	return s.parseChartResponse(symbol, respBytes)
}

// -----------------------------------------------------------------------------

type YahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string  `json:"currency"`
				Symbol               string  `json:"symbol"`
				ExchangeName         string  `json:"exchangeName"`
				LongName             string  `json:"longName"`
				ShortName            string  `json:"shortName"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
				ExchangeTimezoneName string  `json:"exchangeTimezoneName"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				FiftyTwoWeekHigh     float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow      float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open []*float64 `json:"open"` // Use pointers to handle null
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// -----------------------------------------------------------------------------

func (s *YahooFinanceSource) parseChartResponse(symbol string, data []byte) (*models.MQuote, error) {
	var resp YahooChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}

	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no data found for %s", symbol)
	}

	result := resp.Chart.Result[0]
	meta := result.Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("no market price for %s", symbol)
	}

	prevClose := meta.PreviousClose
	if meta.ChartPreviousClose > 0 {
		prevClose = meta.ChartPreviousClose
	}

	var open float64
	if len(result.Indicators.Quote) > 0 {
		for _, o := range result.Indicators.Quote[0].Open {
			if o != nil {
				open = *o
				break
			}
		}
	}

	change := meta.RegularMarketPrice - prevClose
	var pChange float64
	if prevClose > 0 {
		pChange = change / prevClose * 100
	}

	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}

	return &models.MQuote{
		Symbol:        symbol,
		Name:          name,
		LastPrice:     meta.RegularMarketPrice,
		Change:        change,
		PChange:       pChange,
		PreviousClose: prevClose,
		Open:          open,
		IntraDay:      models.MHighLow{Max: meta.RegularMarketDayHigh, Min: meta.RegularMarketDayLow},
		Week:          models.MHighLow{Max: meta.FiftyTwoWeekHigh, Min: meta.FiftyTwoWeekLow},
		PriceBand:     "N/A",
		BasePrice:     prevClose,
		Source:        s.Name(),
		FetchedAt:     time.Now(),
	}, nil
}
