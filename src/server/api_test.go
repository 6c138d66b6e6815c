package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stock-exchange/src/analysis"
	"stock-exchange/src/ledger"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
	"stock-exchange/src/storage"
	"stock-exchange/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*APIServer, *stubResolver) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &models.MConfig{Host: "127.0.0.1", Port: 0, LogLevel: "INFO"}
	cfg.Storage.DBType = "sqlite"
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "api.db")
	cfg.Accounts.DefaultBalance = "10000"
	cfg.Market = models.MMarketConfig{MIC: "none", Timezone: "UTC", OpenTime: "00:00", CloseTime: "23:59"}

	log := logger.NewDiscardLogger("api")
	m := metrics.New()

	store, err := storage.New(cfg, log)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })

	clock, err := utils.NewMarketClock(cfg.Market, log)
	require.NoError(t, err)

	l, err := ledger.NewOrderLedger(cfg, store, clock, log, m)
	require.NoError(t, err)

	q := newStubResolver()
	registry := NewSubscriptionRegistry()
	gateway := NewGateway(registry, q, 16, log, m)
	t.Cleanup(gateway.Shutdown)

	s := NewAPIServer(cfg, Deps{
		Gateway:   gateway,
		Broadcast: NewBroadcastLoop(registry, q, time.Second, time.Second, 2, log, m),
		Ledger:    l,
		Quotes:    q,
		Portfolio: analysis.NewPortfolioAnalyzer(q, 2, log),
		Market:    clock,
		Store:     store,
		Metrics:   m,
	}, log)
	return s, q
}

func call(t *testing.T, s *APIServer, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func openTestAccount(t *testing.T, s *APIServer, email string) map[string]interface{} {
	t.Helper()
	code, body := call(t, s, http.MethodPost, "/api/accounts", gin.H{"Name": "Asha", "Email": email})
	require.Equal(t, http.StatusCreated, code, body)
	return body
}

func orderBody(account map[string]interface{}, side, symbol string, qty int, price string) gin.H {
	return gin.H{
		"symbol":       symbol,
		"quantity":     qty,
		"order_type":   side,
		"target_price": price,
		"Email":        account["Email"],
		"OrderId":      "ord-1",
		"HoldingId":    account["HoldingId"],
	}
}

// -----------------------------------------------------------------------------

func TestAccountsAPI(t *testing.T) {
	s, _ := newTestAPI(t)
	account := openTestAccount(t, s, "asha@example.com")
	assert.Equal(t, "10000", account["Balance"])
	assert.NotEmpty(t, account["HoldingId"])
	assert.NotEmpty(t, account["WatchlistId"])

	code, body := call(t, s, http.MethodPost, "/api/accounts", gin.H{"Name": "Asha", "Email": "asha@example.com"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", body["reason"])

	code, body = call(t, s, http.MethodGet, "/api/accounts/asha@example.com", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Asha", body["Name"])

	code, body = call(t, s, http.MethodGet, "/api/accounts/nobody@example.com", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "User not found", body["error"])
}

func TestPlaceOrderAPI(t *testing.T) {
	s, _ := newTestAPI(t)
	account := openTestAccount(t, s, "asha@example.com")

	t.Run("buy", func(t *testing.T) {
		code, body := call(t, s, http.MethodPost, "/api/place-order", orderBody(account, "buy", "infy", 10, "100"))
		require.Equal(t, http.StatusOK, code, body)
		assert.Equal(t, "BUY order placed successfully", body["message"])
		assert.NotEmpty(t, body["order_id"])

		order := body["order"].(map[string]interface{})
		assert.Equal(t, "INFY", order["symbol"])
		assert.Equal(t, "1000", order["total_amount"])
		assert.Equal(t, models.OrderStatusExecuted, order["status"])
		_, err := time.Parse(time.RFC3339Nano, order["created_at"].(string))
		assert.NoError(t, err)

		_, acct := call(t, s, http.MethodGet, "/api/accounts/asha@example.com", nil)
		assert.Equal(t, "9000", acct["Balance"])
	})

	t.Run("rejections", func(t *testing.T) {
		cases := []struct {
			name   string
			body   gin.H
			status int
			reason string
		}{
			{"zero quantity", orderBody(account, "BUY", "INFY", 0, "100"), http.StatusUnprocessableEntity, "validation_failed"},
			{"bad side", orderBody(account, "HOLD", "INFY", 1, "100"), http.StatusUnprocessableEntity, "validation_failed"},
			{"insufficient funds", orderBody(account, "BUY", "TCS", 100, "1000"), http.StatusBadRequest, "insufficient_funds"},
			{"insufficient holdings", orderBody(account, "SELL", "INFY", 11, "100"), http.StatusBadRequest, "insufficient_holdings"},
			{"unknown lot", orderBody(account, "SELL", "TCS", 1, "100"), http.StatusNotFound, "not_found"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				code, body := call(t, s, http.MethodPost, "/api/place-order", tc.body)
				assert.Equal(t, tc.status, code, body)
				assert.Equal(t, tc.reason, body["reason"])
			})
		}

		code, body := call(t, s, http.MethodPost, "/api/place-order", orderBody(account, "BUY", "INFY", 0, "100"))
		require.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, "Validation failed: Quantity must be positive", body["error"])
	})

	t.Run("unknown user", func(t *testing.T) {
		ghost := map[string]interface{}{"Email": "ghost@example.com", "HoldingId": "h-ghost"}
		code, body := call(t, s, http.MethodPost, "/api/place-order", orderBody(ghost, "BUY", "INFY", 1, "1"))
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "User not found", body["error"])
	})

	t.Run("sell everything removes the holdings", func(t *testing.T) {
		code, _ := call(t, s, http.MethodPost, "/api/place-order", orderBody(account, "SELL", "INFY", 10, "120"))
		require.Equal(t, http.StatusOK, code)

		code, body := call(t, s, http.MethodGet, "/api/holdings/"+account["HoldingId"].(string), nil)
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "not_found", body["reason"])

		_, acct := call(t, s, http.MethodGet, "/api/accounts/asha@example.com", nil)
		assert.Equal(t, "10200", acct["Balance"])
	})

	t.Run("orders", func(t *testing.T) {
		code, body := call(t, s, http.MethodGet, "/api/orders/asha@example.com", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(2), body["count"])

		code, body = call(t, s, http.MethodGet, "/api/orders?symbol=infy&status=executed", nil)
		require.Equal(t, http.StatusOK, code)
		orders := body["orders"].([]interface{})
		require.Len(t, orders, 2)
		assert.Equal(t, "SELL", orders[0].(map[string]interface{})["order_type"], "newest first")

		code, _ = call(t, s, http.MethodGet, "/api/orders/ghost@example.com", nil)
		assert.Equal(t, http.StatusNotFound, code)
	})
}

func TestHoldingsAndPortfolioAPI(t *testing.T) {
	s, q := newTestAPI(t)
	account := openTestAccount(t, s, "asha@example.com")
	holdingID := account["HoldingId"].(string)

	code, _ := call(t, s, http.MethodPost, "/api/place-order", orderBody(account, "BUY", "INFY", 2, "1400"))
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, s, http.MethodPost, "/api/place-order", orderBody(account, "BUY", "TCS", 1, "3000"))
	require.Equal(t, http.StatusOK, code)

	code, body := call(t, s, http.MethodGet, "/api/holdings/"+holdingID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["Holdings"], 2)

	code, body = call(t, s, http.MethodGet, "/api/portfolio/"+holdingID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 2*1500.0+3200.0, body["total_value"], 1e-9)
	assert.Equal(t, true, body["day_change_defined"])

	q.setFailing("TCS", true)
	code, body = call(t, s, http.MethodGet, "/api/portfolio/"+holdingID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.InDelta(t, 3000.0, body["total_value"], 1e-9)
}

func TestWatchlistAPI(t *testing.T) {
	s, _ := newTestAPI(t)
	account := openTestAccount(t, s, "asha@example.com")
	id := account["WatchlistId"].(string)

	code, body := call(t, s, http.MethodPost, "/api/watchlist", gin.H{"WatchlistId": id, "stockName": "infy"})
	require.Equal(t, http.StatusOK, code, body)

	code, body = call(t, s, http.MethodPost, "/api/watchlist", gin.H{"WatchlistId": id, "symbol": "INFY"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "Stock already in watchlist", body["error"])

	code, body = call(t, s, http.MethodGet, "/api/watchlist/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"INFY"}, body["Names"])

	code, _ = call(t, s, http.MethodDelete, "/api/watchlist", gin.H{"WatchlistId": id, "symbol": "INFY"})
	assert.Equal(t, http.StatusOK, code)

	code, body = call(t, s, http.MethodDelete, "/api/watchlist", gin.H{"WatchlistId": id, "symbol": "INFY"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Stock not found in watchlist", body["error"])

	code, body = call(t, s, http.MethodPost, "/api/watchlist", gin.H{"WatchlistId": id})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "validation_failed", body["reason"])

	code, _ = call(t, s, http.MethodGet, "/api/watchlist/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMarketDataAPI(t *testing.T) {
	s, q := newTestAPI(t)

	code, body := call(t, s, http.MethodGet, "/api/stock-quote/infy", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "INFY", body["symbol"])
	assert.Equal(t, 1500.0, body["lastPrice"])

	q.setFailing("INFY", true)
	code, body = call(t, s, http.MethodGet, "/api/stock-quote/INFY", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "upstream_unavailable", body["reason"])

	code, body = call(t, s, http.MethodGet, "/api/market-status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "NONE", body["mic"])
	assert.Contains(t, body, "is_open")
}

func TestOperationsAPI(t *testing.T) {
	s, _ := newTestAPI(t)

	code, body := call(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "degraded", body["status"], "no broadcast cycle has run yet")

	_, err := s.Broadcast.RunCycle(context.Background())
	require.NoError(t, err)
	code, body = call(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = call(t, s, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "last_cycle")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "exchange_ws_connections")
}
