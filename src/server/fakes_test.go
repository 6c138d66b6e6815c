package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"stock-exchange/src/helpers"
	"stock-exchange/src/models"
)

// fakeConn records everything sent to it.
type fakeConn struct {
	id string

	mu       sync.Mutex
	messages []interface{}
	failSend bool
	closed   atomic.Bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend || c.closed.Load() {
		return helpers.NewTransportError(c.id, errSendBuffer)
	}
	c.messages = append(c.messages, message)
	return nil
}

func (c *fakeConn) Close() { c.closed.Store(true) }

func (c *fakeConn) sent() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.messages...)
}

func (c *fakeConn) setFailing(v bool) {
	c.mu.Lock()
	c.failSend = v
	c.mu.Unlock()
}

// stubResolver returns a quote priced by symbol, or fails for the listed symbols.
type stubResolver struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	panics map[string]bool
	calls  atomic.Int32
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		prices: map[string]float64{"INFY": 1500, "TCS": 3200},
		fail:   map[string]bool{},
		panics: map[string]bool{},
	}
}

func (r *stubResolver) Resolve(ctx context.Context, symbol string) (*models.MQuote, error) {
	r.calls.Add(1)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := ctx.Err(); err != nil {
		return nil, helpers.NewUpstreamError(symbol, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panics[symbol] {
		panic("resolver exploded")
	}
	if r.fail[symbol] {
		return nil, helpers.NewUpstreamError(symbol, errors.New("source down"))
	}
	price, ok := r.prices[symbol]
	if !ok {
		return nil, helpers.NewUpstreamError(symbol, errors.New("unknown symbol"))
	}
	return &models.MQuote{Symbol: symbol, LastPrice: price, Change: 10, PChange: 0.5, Source: "stub"}, nil
}

func (r *stubResolver) setFailing(symbol string, v bool) {
	r.mu.Lock()
	r.fail[symbol] = v
	r.mu.Unlock()
}
