package book

import (
	"sync"

	"indexflow/logger"
	"indexflow/models"
)

// notifyBuffer is the per-subscriber buffer for update notifications. Slow
// subscribers drop notifications rather than block writers.
const notifyBuffer = 1000

// Cache is the process-wide latest-snapshot orderbook store. It is created
// once at startup and shared by reference with every feed connection (writer)
// and every stream session (reader). Keys are never removed once inserted.
type Cache struct {
	mu    sync.RWMutex
	books map[string]*models.AssetOrderbook

	subMu sync.Mutex
	subs  []chan string

	log *logger.Log
}

// NewCache creates an empty orderbook cache.
func NewCache() *Cache {
	return &Cache{
		books: make(map[string]*models.AssetOrderbook),
		log:   logger.GetLogger(),
	}
}

// Update replaces the full book for a symbol and recomputes its derived mid
// price and spread. Only the map mutation happens under the lock; the update
// notification is sent after the lock is released.
func (c *Cache) Update(symbol string, bids, asks []models.PriceLevel) {
	c.mu.Lock()
	ob, ok := c.books[symbol]
	if !ok {
		ob = models.NewAssetOrderbook(symbol)
		c.books[symbol] = ob
	}
	ob.Update(bids, asks)
	total := len(c.books)
	c.mu.Unlock()

	if !ok {
		c.log.WithComponent("book_cache").WithFields(logger.Fields{
			"symbol": symbol,
			"total":  total,
		}).Debug("new symbol in cache")
	}
	logger.IncrementBookUpdate(len(bids) + len(asks))

	c.notify(symbol)
}

// Get returns a copy of the latest book for a symbol, so callers never hold
// the cache lock during computation. The second return value reports whether
// the symbol has ever been observed.
func (c *Cache) Get(symbol string) (models.AssetOrderbook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ob, ok := c.books[symbol]
	if !ok {
		return models.AssetOrderbook{}, false
	}
	return copyBook(ob), true
}

// Symbols enumerates all known symbols, for diagnostics.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.books))
	for sym := range c.books {
		out = append(out, sym)
	}
	return out
}

// Count returns the number of symbols in the cache.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.books)
}

// Has reports whether a symbol has ever been observed.
func (c *Cache) Has(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.books[symbol]
	return ok
}

// Notify registers a subscriber for "symbol updated" notifications. The
// returned channel receives the symbol of every update; notifications to a
// full channel are dropped.
func (c *Cache) Notify() <-chan string {
	ch := make(chan string, notifyBuffer)
	c.subMu.Lock()
	c.subs = append(c.subs, ch)
	c.subMu.Unlock()
	return ch
}

func (c *Cache) notify(symbol string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- symbol:
		default:
		}
	}
}

func copyBook(ob *models.AssetOrderbook) models.AssetOrderbook {
	out := *ob
	out.Bids = make([]models.PriceLevel, len(ob.Bids))
	copy(out.Bids, ob.Bids)
	out.Asks = make([]models.PriceLevel, len(ob.Asks))
	copy(out.Asks, ob.Asks)
	return out
}
