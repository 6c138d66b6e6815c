package quotes

import (
	"time"

	"stock-exchange/src/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// PriceCache is a bounded symbol -> quote map whose entries expire after a fixed
// TTL. When full, the least recently used entry is evicted. Safe for concurrent use.
type PriceCache struct {
	lru *expirable.LRU[string, *models.MQuote]
	ttl time.Duration
}

// -----------------------------------------------------------------------------

func NewPriceCache(size int, ttl time.Duration) *PriceCache {
	return &PriceCache{
		lru: expirable.NewLRU[string, *models.MQuote](size, nil, ttl),
		ttl: ttl,
	}
}

// -----------------------------------------------------------------------------

// Get returns the quote if it was stored less than TTL ago.
func (c *PriceCache) Get(symbol string) (*models.MQuote, bool) {
	return c.lru.Get(symbol)
}

// Put stores the quote, replacing any previous entry and restarting its TTL.
func (c *PriceCache) Put(symbol string, quote *models.MQuote) {
	c.lru.Add(symbol, quote)
}

// Len counts entries, expired ones not yet reaped included.
func (c *PriceCache) Len() int {
	return c.lru.Len()
}

func (c *PriceCache) TTL() time.Duration {
	return c.ttl
}
