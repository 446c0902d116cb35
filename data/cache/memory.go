package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/KotFed0t/crypto_portfolio_tracker/internal/model"
	"github.com/KotFed0t/crypto_portfolio_tracker/utils"
)

type QuoteSource interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
}

// MemoryCache maps symbols to quotes with a TTL. Stablecoins bypass both
// the cache store and the quote source entirely. Entries live only for the
// lifetime of the process.
type MemoryCache struct {
	mu      sync.Mutex
	source  QuoteSource
	ttl     time.Duration
	now     func() time.Time
	entries map[string]model.Quote
}

func NewMemoryCache(source QuoteSource, ttl time.Duration, now func() time.Time) *MemoryCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		source:  source,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]model.Quote),
	}
}

// Quotes resolves a batch of symbols. Fresh cached entries are served from
// memory; every unresolved symbol goes to the quote source in a single
// batch call. The result may be partial: symbols the source cannot price
// are simply absent. A source failure still returns whatever resolved from
// the cache, alongside the error.
func (c *MemoryCache) Quotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "MemoryCache.Quotes"

	now := c.now()
	quotes := make(map[string]model.Quote, len(symbols))
	var missing []string

	c.mu.Lock()
	for _, symbol := range symbols {
		key := strings.ToLower(symbol)

		if model.IsStablecoin(key) {
			quotes[key] = model.StablecoinQuote(key, now)
			continue
		}

		if entry, ok := c.entries[key]; ok && now.Sub(entry.AsOf) < c.ttl {
			quotes[key] = entry
			continue
		}

		missing = append(missing, key)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return quotes, nil
	}

	slog.Debug("fetching quotes", slog.String("rqID", rqID), slog.String("op", op), slog.Any("symbols", missing))

	fetched, err := c.source.GetQuotes(ctx, missing)
	if err != nil {
		slog.Error("quote source failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return quotes, err
	}

	c.mu.Lock()
	for symbol, quote := range fetched {
		key := strings.ToLower(symbol)
		quote.Symbol = key
		quote.AsOf = now
		c.entries[key] = quote
		quotes[key] = quote
	}
	c.mu.Unlock()

	return quotes, nil
}

// Invalidate drops every non-stablecoin entry so the next Quotes call
// refetches regardless of TTL.
func (c *MemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for symbol := range c.entries {
		if !model.IsStablecoin(symbol) {
			delete(c.entries, symbol)
		}
	}
}
