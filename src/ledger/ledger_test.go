package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stock-exchange/src/helpers"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
	"stock-exchange/src/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedMarket bool

func (m fixedMarket) IsOpen(time.Time) bool { return bool(m) }

func newTestLedger(t *testing.T) *OrderLedger {
	t.Helper()
	cfg := &models.MConfig{}
	cfg.Storage.DBType = "sqlite"
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "ledger.db")
	cfg.Accounts.DefaultBalance = "10000"

	log := logger.NewDiscardLogger("ledger")
	store, err := storage.New(cfg, log)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })

	l, err := NewOrderLedger(cfg, store, fixedMarket(true), log, metrics.New())
	require.NoError(t, err)
	return l
}

func openAccount(t *testing.T, l *OrderLedger, email string) *models.MAccount {
	t.Helper()
	a, err := l.OpenAccount(context.Background(), "Trader", email)
	require.NoError(t, err)
	return a
}

func order(a *models.MAccount, side, symbol string, qty int64, price string) models.MOrderRequest {
	return models.MOrderRequest{
		Symbol:      symbol,
		Quantity:    qty,
		OrderType:   side,
		TargetPrice: decimal.RequireFromString(price),
		Email:       a.Email,
		OrderID:     "client-1",
		HoldingID:   a.HoldingID,
	}
}

func TestBuyBuy_WeightedAverage(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "avg@x.io")

	_, err := l.PlaceOrder(ctx, order(a, "BUY", "INFY", 10, "100"))
	require.NoError(t, err)
	o, err := l.PlaceOrder(ctx, order(a, "buy", " infy ", 10, "200"))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusExecuted, o.Status)
	assert.Equal(t, "2000", o.TotalAmount.String())

	h, err := l.Holdings(ctx, a.HoldingID)
	require.NoError(t, err)
	lot, ok := h.Lot("INFY")
	require.True(t, ok)
	assert.Equal(t, int64(20), lot.Quantity)
	assert.True(t, lot.Price.Equal(decimal.NewFromInt(150)), lot.Price.String())

	acc, err := l.Account(ctx, a.Email)
	require.NoError(t, err)
	assert.Equal(t, "7000", acc.Balance.String())
}

func TestSell_KeepsAverageAndRemovesEmptyDocument(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "sell@x.io")

	_, err := l.PlaceOrder(ctx, order(a, "BUY", "TCS", 3, "100"))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, order(a, "BUY", "TCS", 1, "120"))
	require.NoError(t, err)

	_, err = l.PlaceOrder(ctx, order(a, "SELL", "TCS", 2, "500"))
	require.NoError(t, err)

	h, err := l.Holdings(ctx, a.HoldingID)
	require.NoError(t, err)
	lot, _ := h.Lot("TCS")
	assert.Equal(t, int64(2), lot.Quantity)
	assert.True(t, lot.Price.Equal(decimal.NewFromInt(105)), lot.Price.String())

	_, err = l.PlaceOrder(ctx, order(a, "SELL", "TCS", 2, "50"))
	require.NoError(t, err)

	_, err = l.Holdings(ctx, a.HoldingID)
	var nf *helpers.NotFoundError
	assert.True(t, errors.As(err, &nf), "empty holdings document must be deleted")

	acc, err := l.Account(ctx, a.Email)
	require.NoError(t, err)
	// 10000 - 300 - 120 + 1000 + 100
	assert.Equal(t, "10680", acc.Balance.String())
}

func TestSell_OtherLotsSurvive(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "multi@x.io")

	_, err := l.PlaceOrder(ctx, order(a, "BUY", "TCS", 1, "10"))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, order(a, "BUY", "INFY", 1, "10"))
	require.NoError(t, err)
	_, err = l.PlaceOrder(ctx, order(a, "SELL", "TCS", 1, "10"))
	require.NoError(t, err)

	h, err := l.Holdings(ctx, a.HoldingID)
	require.NoError(t, err)
	require.Len(t, h.Lots, 1)
	assert.Equal(t, "INFY", h.Lots[0].Symbol)
}

func TestBuy_ExactBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "exact@x.io")

	_, err := l.PlaceOrder(ctx, order(a, "BUY", "INFY", 4, "2500"))
	require.NoError(t, err)

	acc, err := l.Account(ctx, a.Email)
	require.NoError(t, err)
	assert.True(t, acc.Balance.IsZero())

	_, err = l.PlaceOrder(ctx, order(a, "BUY", "INFY", 1, "0.01"))
	var funds *helpers.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, "0.01", funds.Required)
	assert.Equal(t, "0.00", funds.Available)
}

func TestRejections(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "reject@x.io")

	cases := []struct {
		name   string
		req    models.MOrderRequest
		reason string
	}{
		{"zero quantity", order(a, "BUY", "INFY", 0, "10"), "validation_failed"},
		{"zero price", order(a, "BUY", "INFY", 1, "0"), "validation_failed"},
		{"negative price", order(a, "BUY", "INFY", 1, "-5"), "validation_failed"},
		{"bad side", order(a, "HOLD", "INFY", 1, "10"), "validation_failed"},
		{"blank symbol", order(a, "BUY", "   ", 1, "10"), "validation_failed"},
		{"unknown account", func() models.MOrderRequest {
			r := order(a, "BUY", "INFY", 1, "10")
			r.Email = "ghost@x.io"
			return r
		}(), "not_found"},
		{"sell without holdings", order(a, "SELL", "INFY", 1, "10"), "not_found"},
		{"buy beyond balance", order(a, "BUY", "INFY", 1, "10000.01"), "insufficient_funds"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.PlaceOrder(ctx, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.reason, helpers.ErrorReason(err))
		})
	}

	orders, err := l.Orders(ctx, models.MOrderFilter{Email: a.Email})
	require.NoError(t, err)
	assert.Empty(t, orders, "rejected orders must not be recorded")

	acc, err := l.Account(ctx, a.Email)
	require.NoError(t, err)
	assert.Equal(t, "10000", acc.Balance.String())
}

func TestSell_InsufficientHoldings(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "short@x.io")

	_, err := l.PlaceOrder(ctx, order(a, "BUY", "INFY", 5, "10"))
	require.NoError(t, err)

	_, err = l.PlaceOrder(ctx, order(a, "SELL", "INFY", 6, "10"))
	var short *helpers.InsufficientHoldingsError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, int64(5), short.Available)
	assert.Equal(t, int64(6), short.Requested)
	assert.Equal(t, "Insufficient holdings. Available: 5, Requested: 6", short.Error())

	_, err = l.PlaceOrder(ctx, order(a, "SELL", "TCS", 1, "10"))
	assert.Equal(t, "not_found", helpers.ErrorReason(err))
}

func TestConcurrentSells_NoOverselling(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	a := openAccount(t, l, "race@x.io")

	_, err := l.PlaceOrder(ctx, order(a, "BUY", "INFY", 10, "10"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.PlaceOrder(ctx, order(a, "SELL", "INFY", 7, "10")); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)

	h, err := l.Holdings(ctx, a.HoldingID)
	require.NoError(t, err)
	lot, _ := h.Lot("INFY")
	assert.Equal(t, int64(3), lot.Quantity)
	assert.Equal(t, 0, l.Locks.Len())
}

func TestMarketGate(t *testing.T) {
	l := newTestLedger(t)
	a := openAccount(t, l, "gate@x.io")
	l.Market = fixedMarket(false)

	_, err := l.PlaceOrder(context.Background(), order(a, "BUY", "INFY", 1, "10"))
	require.NoError(t, err, "gate is off by default")

	l.EnforceHours = true
	_, err = l.PlaceOrder(context.Background(), order(a, "BUY", "INFY", 1, "10"))
	assert.Equal(t, "market_closed", helpers.ErrorReason(err))
}

func TestOpenAccount(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	a := openAccount(t, l, "new@x.io")
	assert.Equal(t, "10000", a.Balance.String())
	assert.NotEmpty(t, a.HoldingID)
	assert.NotEqual(t, a.HoldingID, a.WatchlistID)

	_, err := l.OpenAccount(ctx, "Again", "new@x.io")
	assert.Equal(t, "conflict", helpers.ErrorReason(err))

	_, err = l.OpenAccount(ctx, "", "x@x.io")
	assert.Equal(t, "validation_failed", helpers.ErrorReason(err))

	_, err = l.Account(ctx, "missing@x.io")
	assert.Equal(t, "not_found", helpers.ErrorReason(err))
}

func TestWeightedAverage(t *testing.T) {
	got := WeightedAverage(10, decimal.NewFromInt(100), 10, decimal.NewFromInt(200))
	assert.True(t, got.Equal(decimal.NewFromInt(150)))

	got = WeightedAverage(1, decimal.NewFromInt(1), 2, decimal.NewFromInt(2))
	assert.Equal(t, "1.66666667", got.String())
}

func TestPlaceOrderHonoursContextWhileWaiting(t *testing.T) {
	l := newTestLedger(t)
	a := openAccount(t, l, "waiter@x.io")

	unlock, err := l.Locks.Lock(context.Background(), "account:"+a.Email)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.PlaceOrder(ctx, order(a, "BUY", "INFY", 1, "10"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, l.Locks.Len())

	_, err = l.PlaceOrder(context.Background(), order(a, "BUY", "INFY", 1, "10"))
	require.NoError(t, err)
}
