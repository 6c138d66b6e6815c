package server

import (
	"context"
	"testing"
	"time"

	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(r *SubscriptionRegistry, q QuoteResolver) *BroadcastLoop {
	return NewBroadcastLoop(r, q, 20*time.Millisecond, 10*time.Millisecond, 4, logger.NewDiscardLogger("broadcast"), metrics.New())
}

func TestRunCycleDeliversQuotes(t *testing.T) {
	r := NewSubscriptionRegistry()
	q := newStubResolver()
	a, b := newFakeConn("a"), newFakeConn("b")
	r.Subscribe(a, "INFY")
	r.Subscribe(b, "INFY")
	r.Subscribe(b, "TCS")

	loop := newTestLoop(r, q)
	stats, err := loop.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Symbols)
	assert.Equal(t, 3, stats.Deliveries)
	assert.Zero(t, stats.FailedSymbols)
	assert.Equal(t, int32(2), q.calls.Load(), "one resolve per symbol per cycle")

	require.Len(t, a.sent(), 1)
	msg, ok := a.sent()[0].(models.MQuoteMessage)
	require.True(t, ok)
	assert.Equal(t, models.MessageTypeQuote, msg.Type)
	assert.Equal(t, "INFY", msg.Symbol)
	assert.Equal(t, 1500.0, msg.LastPrice)
	assert.NotZero(t, msg.Timestamp)

	assert.Len(t, b.sent(), 2)
	assert.Equal(t, float64(1), testutil.ToFloat64(loop.Metrics.BroadcastCycles))
}

func TestRunCycleSendsErrorOnResolveFailure(t *testing.T) {
	r := NewSubscriptionRegistry()
	q := newStubResolver()
	q.setFailing("INFY", true)
	a := newFakeConn("a")
	r.Subscribe(a, "INFY")
	r.Subscribe(a, "TCS")

	stats, err := newTestLoop(r, q).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedSymbols)

	var errs, quotes int
	for _, m := range a.sent() {
		switch v := m.(type) {
		case models.MErrorMessage:
			errs++
			assert.Equal(t, "error", v.Type)
			assert.Equal(t, "INFY", v.Symbol)
			assert.Contains(t, v.Message, "Error fetching data: ")
		case models.MQuoteMessage:
			quotes++
			assert.Equal(t, "TCS", v.Symbol)
		}
	}
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, quotes)

	// The subscription survives the failure.
	assert.Equal(t, []string{"INFY", "TCS"}, r.SymbolsOf(a))
}

func TestRunCyclePrunesFailedConnections(t *testing.T) {
	r := NewSubscriptionRegistry()
	q := newStubResolver()
	good, dead := newFakeConn("good"), newFakeConn("dead")
	dead.setFailing(true)
	r.Subscribe(good, "INFY")
	r.Subscribe(dead, "INFY")

	stats, err := newTestLoop(r, q).RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.PrunedClients)
	assert.Equal(t, 1, stats.Deliveries)
	assert.True(t, dead.closed.Load())
	assert.False(t, good.closed.Load())
	assert.Empty(t, r.SymbolsOf(dead))
	assert.Len(t, r.Subscribers("INFY"), 1)
}

func TestRunCycleWithoutSubscribers(t *testing.T) {
	q := newStubResolver()
	stats, err := newTestLoop(NewSubscriptionRegistry(), q).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Symbols)
	assert.Zero(t, q.calls.Load())
}

func TestRunCycleIsolatesPanickingSymbol(t *testing.T) {
	r := NewSubscriptionRegistry()
	q := newStubResolver()
	q.panics["BOOM"] = true
	q.prices["WIPRO"] = 450
	q.prices["HDFC"] = 1600
	boom, others := newFakeConn("boom"), newFakeConn("others")
	r.Subscribe(boom, "BOOM")
	for _, s := range []string{"INFY", "TCS", "WIPRO", "HDFC"} {
		r.Subscribe(others, s)
	}

	// Serial cycle: symbols scheduled after the panic must still resolve.
	loop := NewBroadcastLoop(r, q, 20*time.Millisecond, 10*time.Millisecond, 1, logger.NewDiscardLogger("broadcast"), metrics.New())
	stats, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Symbols)
	assert.Equal(t, 1, stats.FailedSymbols)
	assert.Equal(t, 5, stats.Deliveries)

	t.Run("panicking symbol gets an error message", func(t *testing.T) {
		require.Len(t, boom.sent(), 1)
		msg, ok := boom.sent()[0].(models.MErrorMessage)
		require.True(t, ok)
		assert.Equal(t, "BOOM", msg.Symbol)
		assert.Contains(t, msg.Message, "panic resolving BOOM")
	})

	t.Run("other symbols get quotes", func(t *testing.T) {
		require.Len(t, others.sent(), 4)
		for _, m := range others.sent() {
			_, ok := m.(models.MQuoteMessage)
			assert.True(t, ok, "unexpected message %T", m)
		}
	})

	t.Run("cycle is recorded", func(t *testing.T) {
		last, ok := loop.LastCycle()
		require.True(t, ok)
		assert.Equal(t, 1, last.FailedSymbols)
		assert.Len(t, loop.Recent(10), 1)
		assert.True(t, loop.Healthy(time.Second))
	})
}

func TestRunKeepsCyclingWithPanickingSymbol(t *testing.T) {
	r := NewSubscriptionRegistry()
	q := newStubResolver()
	q.panics["BOOM"] = true
	a := newFakeConn("a")
	r.Subscribe(a, "BOOM")
	r.Subscribe(a, "TCS")

	loop := newTestLoop(r, q)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, loop.Run(ctx))

	assert.Zero(t, testutil.ToFloat64(loop.Metrics.BroadcastFailures))
	assert.GreaterOrEqual(t, len(loop.Recent(100)), 2)
	assert.True(t, loop.Healthy(time.Second))
}

func TestHealthyBeforeFirstCycle(t *testing.T) {
	loop := newTestLoop(NewSubscriptionRegistry(), newStubResolver())
	_, ok := loop.LastCycle()
	assert.False(t, ok)
	assert.False(t, loop.Healthy(time.Hour))

	_, err := loop.RunCycle(context.Background())
	require.NoError(t, err)
	last, ok := loop.LastCycle()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), last.CompletedAt, time.Second)
	assert.True(t, loop.Healthy(time.Hour))
}

func TestRecentCycles(t *testing.T) {
	r := NewSubscriptionRegistry()
	r.Subscribe(newFakeConn("a"), "INFY")
	loop := newTestLoop(r, newStubResolver())

	for i := 0; i < historySize+5; i++ {
		_, err := loop.RunCycle(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, loop.Recent(3), 3)
	all := loop.Recent(1000)
	require.Len(t, all, historySize)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CompletedAt.Before(all[i-1].CompletedAt))
	}
}
