package datasource

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stock-exchange/src/data_source/nse"
	"stock-exchange/src/data_source/yahoo"
	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/models"
)

// MultiSourceManager tries its sources in order and returns the first quote.
// It satisfies IQuoteSource itself, so callers never know how many sources exist.
type MultiSourceManager struct {
	Sources []interfaces.IQuoteSource
	Logger  *logger.Logger
	mu      sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IQuoteSource, log *logger.Logger) *MultiSourceManager {
	return &MultiSourceManager{
		Sources: sources,
		Logger:  log,
	}
}

// -----------------------------------------------------------------------------

// NewFromConfig builds a source per configured entry. Unknown names are rejected.
func NewFromConfig(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) (*MultiSourceManager, error) {
	sources := make([]interfaces.IQuoteSource, 0, len(cfg.DataSource.Sources))

	for _, sc := range cfg.DataSource.Sources {
		switch sc.Name {
		case "nse":
			sources = append(sources, nse.NewNSESource(sc, netMgr, log.Named("NSESource")))
		case "yahoo":
			sources = append(sources, yahoo.NewYahooFinanceSource(sc, netMgr, log.Named("YahooFinanceSource")))
		default:
			return nil, fmt.Errorf("unknown quote source: %s", sc.Name)
		}
	}

	if len(sources) == 0 {
		return nil, errors.New("no quote sources configured")
	}

	return NewMultiSourceManager(sources, log), nil
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) Name() string {
	return "multi"
}

// -----------------------------------------------------------------------------

// AddSource appends a source at the lowest priority.
func (m *MultiSourceManager) AddSource(source interfaces.IQuoteSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.Sources {
		if s.Name() == source.Name() {
			return fmt.Errorf("source %s already exists", source.Name())
		}
	}

	m.Sources = append(m.Sources, source)
	m.Logger.Info("Added source: %s", source.Name())
	return nil
}

// -----------------------------------------------------------------------------

// GetSource retrieves a source by name
func (m *MultiSourceManager) GetSource(name string) (interfaces.IQuoteSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.Sources {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("source %s not found", name)
}

// -----------------------------------------------------------------------------

// GetQuote asks each source in priority order. A symbol the primary source reports
// as unknown is not retried elsewhere. The last error is returned when all fail.
func (m *MultiSourceManager) GetQuote(ctx context.Context, symbol string) (*models.MQuote, error) {
	m.mu.RLock()
	sources := append([]interfaces.IQuoteSource(nil), m.Sources...)
	m.mu.RUnlock()

	var lastErr error
	for _, s := range sources {
		q, err := s.GetQuote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		lastErr = err

		var invalid *nse.ErrInvalidSymbol
		if errors.As(err, &invalid) || ctx.Err() != nil {
			break
		}
		m.Logger.Warning("Source %s failed for %s: %v", s.Name(), symbol, err)
	}

	if lastErr == nil {
		lastErr = errors.New("no quote sources configured")
	}
	return nil, lastErr
}
