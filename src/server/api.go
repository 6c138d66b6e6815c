package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/models"
	"stock-exchange/src/quotes"

	"github.com/gin-gonic/gin"
)

// healthMaxAge is how stale the last broadcast cycle may be before /api/health degrades.
const healthMaxAge = 30 * time.Second

// -----------------------------------------------------------------------------
// Request bodies
// -----------------------------------------------------------------------------

type openAccountRequest struct {
	Name  string `json:"Name"`
	Email string `json:"Email"`
}

type watchlistRequest struct {
	WatchlistID string `json:"WatchlistId"`
	Symbol      string `json:"symbol"`
	StockName   string `json:"stockName"`
}

func (r watchlistRequest) symbol() string {
	if r.Symbol != "" {
		return quotes.NormalizeSymbol(r.Symbol)
	}
	return quotes.NormalizeSymbol(r.StockName)
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

func (s *APIServer) placeOrder(c *gin.Context) {
	var req models.MOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, helpers.NewValidationError("invalid request body: %v", err))
		return
	}

	order, err := s.Ledger.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  order.OrderType + " order placed successfully",
		"order_id": order.ID,
		"order":    orderView(order),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) listOrders(c *gin.Context) {
	orders, err := s.Ledger.Orders(c.Request.Context(), models.MOrderFilter{
		Status: c.Query("status"),
		Symbol: c.Query("symbol"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// -----------------------------------------------------------------------------

func (s *APIServer) listAccountOrders(c *gin.Context) {
	email := c.Param("email")
	if _, err := s.Ledger.Account(c.Request.Context(), email); err != nil {
		s.writeError(c, err)
		return
	}

	orders, err := s.Ledger.Orders(c.Request.Context(), models.MOrderFilter{
		Email:  email,
		Status: c.Query("status"),
		Symbol: c.Query("symbol"),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// -----------------------------------------------------------------------------
// Accounts and holdings
// -----------------------------------------------------------------------------

func (s *APIServer) openAccount(c *gin.Context) {
	var req openAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, helpers.NewValidationError("invalid request body: %v", err))
		return
	}

	account, err := s.Ledger.OpenAccount(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getAccount(c *gin.Context) {
	account, err := s.Ledger.Account(c.Request.Context(), c.Param("email"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getHoldings(c *gin.Context) {
	holdings, err := s.Ledger.Holdings(c.Request.Context(), c.Param("holdingId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, holdings)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getPortfolio(c *gin.Context) {
	holdings, err := s.Ledger.Holdings(c.Request.Context(), c.Param("holdingId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Portfolio.Summarize(c.Request.Context(), holdings))
}

// -----------------------------------------------------------------------------
// Watchlists
// -----------------------------------------------------------------------------

func (s *APIServer) getWatchlist(c *gin.Context) {
	list, err := s.Store.GetWatchlist(c.Request.Context(), strings.TrimSpace(c.Param("watchlistId")))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		s.writeError(c, helpers.NewNotFoundError("Watchlist not found"))
		return
	}
	c.JSON(http.StatusOK, list)
}

// -----------------------------------------------------------------------------

func (s *APIServer) bindWatchlist(c *gin.Context) (watchlistRequest, bool) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, helpers.NewValidationError("invalid request body: %v", err))
		return req, false
	}
	req.WatchlistID = strings.TrimSpace(req.WatchlistID)
	if req.WatchlistID == "" {
		s.writeError(c, helpers.NewValidationError("WatchlistId cannot be empty"))
		return req, false
	}
	if req.symbol() == "" {
		s.writeError(c, helpers.NewValidationError("Symbol cannot be empty"))
		return req, false
	}
	return req, true
}

// -----------------------------------------------------------------------------

func (s *APIServer) addToWatchlist(c *gin.Context) {
	req, ok := s.bindWatchlist(c)
	if !ok {
		return
	}

	added, err := s.Store.AddToWatchlist(c.Request.Context(), req.WatchlistID, req.symbol())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !added {
		s.writeError(c, helpers.NewConflictError("Stock already in watchlist"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock added to watchlist", "symbol": req.symbol()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) removeFromWatchlist(c *gin.Context) {
	req, ok := s.bindWatchlist(c)
	if !ok {
		return
	}

	removed, err := s.Store.RemoveFromWatchlist(c.Request.Context(), req.WatchlistID, req.symbol())
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !removed {
		s.writeError(c, helpers.NewNotFoundError("Stock not found in watchlist"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock removed from watchlist", "symbol": req.symbol()})
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

func (s *APIServer) getQuote(c *gin.Context) {
	q, err := s.Quotes.Resolve(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getMarketStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Market.Status(time.Now()))
}

// -----------------------------------------------------------------------------
// Operations
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{
		"status":      "healthy",
		"connections": s.Gateway.Connections(),
		"database":    "ok",
		"broadcast":   "ok",
	}

	if err := s.Store.Ping(ctx); err != nil {
		s.Logger.Warning("Health check: store ping failed: %v", err)
		body["database"] = "unreachable"
		body["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if last, ok := s.Broadcast.LastCycle(); ok {
		body["last_cycle"] = last.CompletedAt.Format(time.RFC3339)
	}
	if !s.Broadcast.Healthy(healthMaxAge) {
		body["broadcast"] = "stale"
		if status == http.StatusOK {
			body["status"] = "degraded"
		}
	}

	c.JSON(status, body)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getMetrics(c *gin.Context) {
	connections, symbols := s.Gateway.Registry.Stats()
	last, ok := s.Broadcast.LastCycle()

	body := gin.H{
		"connections":        s.Gateway.Connections(),
		"subscribed_clients": connections,
		"subscribed_symbols": symbols,
	}
	if ok {
		body["last_cycle"] = last
	}
	body["recent_cycles"] = s.Broadcast.Recent(10)
	c.JSON(http.StatusOK, body)
}
