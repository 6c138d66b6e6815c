package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stock-exchange/src/analysis"
	"stock-exchange/src/interfaces"
	"stock-exchange/src/ledger"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
	"stock-exchange/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// APIServer
// -----------------------------------------------------------------------------

// APIServer exposes the order ledger over REST and the quote feed over /ws.
type APIServer struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	Gateway   *Gateway
	Broadcast *BroadcastLoop
	Ledger    *ledger.OrderLedger
	Quotes    QuoteResolver
	Portfolio *analysis.PortfolioAnalyzer
	Market    *utils.MarketClock
	Store     interfaces.ILedgerStore
	Metrics   *metrics.Metrics

	engine *gin.Engine
	http   *http.Server
}

// Deps groups what the API server routes to.
type Deps struct {
	Gateway   *Gateway
	Broadcast *BroadcastLoop
	Ledger    *ledger.OrderLedger
	Quotes    QuoteResolver
	Portfolio *analysis.PortfolioAnalyzer
	Market    *utils.MarketClock
	Store     interfaces.ILedgerStore
	Metrics   *metrics.Metrics
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, deps Deps, log *logger.Logger) *APIServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:    cfg,
		Logger:    log,
		Gateway:   deps.Gateway,
		Broadcast: deps.Broadcast,
		Ledger:    deps.Ledger,
		Quotes:    deps.Quotes,
		Portfolio: deps.Portfolio,
		Market:    deps.Market,
		Store:     deps.Store,
		Metrics:   deps.Metrics,
		engine:    gin.New(),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.engine.Use(gin.Recovery())
	if cfg.LogLevel == "DEBUG" {
		s.engine.Use(gin.Logger())
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")

	// Orders and accounts
	api.POST("/place-order", s.placeOrder)
	api.POST("/accounts", s.openAccount)
	api.GET("/accounts/:email", s.getAccount)
	api.GET("/holdings/:holdingId", s.getHoldings)
	api.GET("/orders", s.listOrders)
	api.GET("/orders/:email", s.listAccountOrders)
	api.GET("/portfolio/:holdingId", s.getPortfolio)

	// Watchlists
	api.GET("/watchlist/:watchlistId", s.getWatchlist)
	api.POST("/watchlist", s.addToWatchlist)
	api.DELETE("/watchlist", s.removeFromWatchlist)

	// Market data
	api.GET("/stock-quote/:symbol", s.getQuote)
	api.GET("/market-status", s.getMarketStatus)

	// Operations
	api.GET("/health", s.getHealth)
	api.GET("/metrics", s.getMetrics)
	s.engine.GET("/metrics", gin.WrapH(s.Metrics.Handler()))

	// WebSocket endpoint
	s.engine.GET("/ws", s.Gateway.handleWebSocket)
}

// Handler exposes the router, mainly for tests.
func (s *APIServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start serves until Stop is called.
func (s *APIServer) Start() error {
	s.Logger.Info("Starting server on %s", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop closes the websocket clients and drains in-flight requests.
func (s *APIServer) Stop(ctx context.Context) error {
	s.Gateway.Shutdown()
	return s.http.Shutdown(ctx)
}
