package server

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"stock-exchange/src/interfaces"
	"stock-exchange/src/logger"
	"stock-exchange/src/metrics"
	"stock-exchange/src/models"
	"stock-exchange/src/utils"

	"golang.org/x/sync/errgroup"
)

// BroadcastLoop pushes a fresh quote for every subscribed symbol on a fixed
// cadence. Failures stay local to one symbol or one connection.
type BroadcastLoop struct {
	Registry    *SubscriptionRegistry
	Quotes      QuoteResolver
	Interval    time.Duration
	Backoff     time.Duration
	Concurrency int
	Logger      *logger.Logger
	Metrics     *metrics.Metrics

	// ConnectionCount, when set, reports open connections including unsubscribed ones.
	ConnectionCount func() int

	last atomic.Pointer[models.MBroadcastMetrics]

	historyMu sync.Mutex
	history   *utils.RingBuffer[models.MBroadcastMetrics]
}

// historySize is how many completed cycles Recent can return.
const historySize = 64

func NewBroadcastLoop(registry *SubscriptionRegistry, resolver QuoteResolver, interval, backoff time.Duration, concurrency int, log *logger.Logger, m *metrics.Metrics) *BroadcastLoop {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BroadcastLoop{
		Registry:    registry,
		Quotes:      resolver,
		Interval:    interval,
		Backoff:     backoff,
		Concurrency: concurrency,
		Logger:      log,
		Metrics:     m,
		history:     utils.NewRingBuffer[models.MBroadcastMetrics](historySize),
	}
}

// -----------------------------------------------------------------------------

// Run loops until ctx is done. A failed cycle waits Backoff instead of Interval.
func (b *BroadcastLoop) Run(ctx context.Context) error {
	b.Logger.Info("Broadcast loop started (interval %v)", b.Interval)

	for {
		wait := b.Interval
		if _, err := b.safeCycle(ctx); err != nil {
			b.Metrics.CycleFailed()
			b.Logger.Error("Error in broadcast loop: %v", err)
			wait = b.Backoff
		}

		select {
		case <-ctx.Done():
			b.Logger.Info("Broadcast loop stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// -----------------------------------------------------------------------------

func (b *BroadcastLoop) safeCycle(ctx context.Context) (stats models.MBroadcastMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in broadcast cycle: %v", r)
		}
	}()
	return b.RunCycle(ctx)
}

// -----------------------------------------------------------------------------

// RunCycle resolves each subscribed symbol once and delivers the result to its
// subscribers. Connections whose send fails are unsubscribed and closed.
func (b *BroadcastLoop) RunCycle(ctx context.Context) (models.MBroadcastMetrics, error) {
	start := time.Now()
	symbols := slices.Collect(b.Registry.SymbolsWithSubscribers())

	var failed, delivered, pruned atomic.Int64

	// Plain group: one symbol's failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(b.Concurrency)

	for _, symbol := range symbols {
		g.Go(func() error {
			var msg interface{}
			q, resolveErr := b.safeResolve(ctx, symbol)
			if resolveErr != nil {
				failed.Add(1)
				b.Logger.Warning("Error fetching %s: %v", symbol, resolveErr)
				msg = errorMessage(symbol, resolveErr)
			} else {
				msg = quoteMessage(q)
			}

			var dead []interfaces.IConnection
			for _, conn := range b.Registry.Subscribers(symbol) {
				if err := conn.Send(msg); err != nil {
					b.Logger.Warning("Error sending to client %s: %v", conn.ID(), err)
					dead = append(dead, conn)
					continue
				}
				delivered.Add(1)
			}

			for _, conn := range dead {
				b.Registry.Unsubscribe(conn, symbol)
				conn.Close()
			}
			pruned.Add(int64(len(dead)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return models.MBroadcastMetrics{}, err
	}

	conns, syms := b.Registry.Stats()
	stats := models.MBroadcastMetrics{
		CycleSeconds:   time.Since(start).Seconds(),
		Symbols:        len(symbols),
		FailedSymbols:  int(failed.Load()),
		Deliveries:     int(delivered.Load()),
		PrunedClients:  int(pruned.Load()),
		CompletedAt:    time.Now(),
		Connections:    conns,
		SubscribedSyms: syms,
	}
	if b.ConnectionCount != nil {
		stats.Connections = b.ConnectionCount()
	}

	b.last.Store(&stats)
	b.historyMu.Lock()
	b.history.Append(stats)
	b.historyMu.Unlock()
	b.Metrics.CycleCompleted(stats.CycleSeconds, stats.Deliveries, stats.PrunedClients)
	return stats, nil
}

// -----------------------------------------------------------------------------

// safeResolve turns a panicking resolver into an error for that symbol only.
func (b *BroadcastLoop) safeResolve(ctx context.Context, symbol string) (q *models.MQuote, err error) {
	defer func() {
		if r := recover(); r != nil {
			q, err = nil, fmt.Errorf("panic resolving %s: %v", symbol, r)
		}
	}()
	return b.Quotes.Resolve(ctx, symbol)
}

// -----------------------------------------------------------------------------

// LastCycle returns the stats of the most recent completed cycle.
func (b *BroadcastLoop) LastCycle() (models.MBroadcastMetrics, bool) {
	p := b.last.Load()
	if p == nil {
		return models.MBroadcastMetrics{}, false
	}
	return *p, true
}

// -----------------------------------------------------------------------------

// Healthy reports whether a cycle completed within maxAge.
func (b *BroadcastLoop) Healthy(maxAge time.Duration) bool {
	stats, ok := b.LastCycle()
	return ok && time.Since(stats.CompletedAt) <= maxAge
}

// -----------------------------------------------------------------------------

// Recent returns up to n of the latest completed cycles, oldest first.
func (b *BroadcastLoop) Recent(n int) []models.MBroadcastMetrics {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	return b.history.Latest(n)
}
