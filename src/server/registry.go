package server

import (
	"iter"
	"slices"
	"sync"

	"stock-exchange/src/interfaces"
)

// SubscriptionRegistry maps symbols to subscriber connections and connections to
// their symbols. Both indexes change together under one mutex, and a symbol with
// no subscribers is removed.
type SubscriptionRegistry struct {
	mu       sync.Mutex
	bySymbol map[string]map[string]interfaces.IConnection
	byConn   map[string]map[string]struct{}
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		bySymbol: make(map[string]map[string]interfaces.IConnection),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// Subscribe adds the edge. Repeating it changes nothing.
func (r *SubscriptionRegistry) Subscribe(conn interfaces.IConnection, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	subs, ok := r.bySymbol[symbol]
	if !ok {
		subs = make(map[string]interfaces.IConnection)
		r.bySymbol[symbol] = subs
	}
	subs[id] = conn

	syms, ok := r.byConn[id]
	if !ok {
		syms = make(map[string]struct{})
		r.byConn[id] = syms
	}
	syms[symbol] = struct{}{}
}

// -----------------------------------------------------------------------------

// Unsubscribe removes the edge if present.
func (r *SubscriptionRegistry) Unsubscribe(conn interfaces.IConnection, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeEdge(conn.ID(), symbol)
}

func (r *SubscriptionRegistry) removeEdge(id, symbol string) {
	if subs, ok := r.bySymbol[symbol]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(r.bySymbol, symbol)
		}
	}
	if syms, ok := r.byConn[id]; ok {
		delete(syms, symbol)
		if len(syms) == 0 {
			delete(r.byConn, id)
		}
	}
}

// -----------------------------------------------------------------------------

// Drop removes every edge of conn and reports the symbols it held.
func (r *SubscriptionRegistry) Drop(conn interfaces.IConnection) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	syms := r.byConn[id]
	dropped := make([]string, 0, len(syms))
	for symbol := range syms {
		dropped = append(dropped, symbol)
	}
	for _, symbol := range dropped {
		r.removeEdge(id, symbol)
	}
	slices.Sort(dropped)
	return dropped
}

// -----------------------------------------------------------------------------

// SymbolsWithSubscribers returns the symbols that had subscribers when it was
// called. The snapshot is taken under the lock; iterating it does not lock.
func (r *SubscriptionRegistry) SymbolsWithSubscribers() iter.Seq[string] {
	r.mu.Lock()
	symbols := make([]string, 0, len(r.bySymbol))
	for symbol := range r.bySymbol {
		symbols = append(symbols, symbol)
	}
	r.mu.Unlock()

	slices.Sort(symbols)
	return slices.Values(symbols)
}

// -----------------------------------------------------------------------------

// Subscribers returns a snapshot of the connections subscribed to symbol.
func (r *SubscriptionRegistry) Subscribers(symbol string) []interfaces.IConnection {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.bySymbol[symbol]
	conns := make([]interfaces.IConnection, 0, len(subs))
	for _, c := range subs {
		conns = append(conns, c)
	}
	return conns
}

// -----------------------------------------------------------------------------

// SymbolsOf returns the sorted symbols conn is subscribed to.
func (r *SubscriptionRegistry) SymbolsOf(conn interfaces.IConnection) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	syms := r.byConn[conn.ID()]
	out := make([]string, 0, len(syms))
	for s := range syms {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// -----------------------------------------------------------------------------

// Stats counts subscribed connections and symbols.
func (r *SubscriptionRegistry) Stats() (connections, symbols int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConn), len(r.bySymbol)
}
