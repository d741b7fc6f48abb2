// Package ordercache implements the per-service order snapshot cache named
// in spec.md §4.5 (component E): a write-behind convenience populated by
// whichever stage just read an order from the target, consulted by later
// stages in the same test. Grounded on
// internal/storage/memory/order_repository.go's sync.RWMutex-guarded map.
package ordercache

import (
	"sync"

	"github.com/vladislavdragonenkov/bombardier/internal/domain"
)

// Cache holds the last-seen snapshot of each order for one service. The
// target is always the source of truth: a miss here simply means nothing
// has been cached yet, never that the order does not exist.
type Cache struct {
	mu    sync.RWMutex
	items map[string]domain.Order
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{items: make(map[string]domain.Order)}
}

// Put records order as the latest snapshot for its id. A read that raced
// with a newer one and lost carries a lower Version; Put drops it instead
// of clobbering the snapshot a later read already installed.
func (c *Cache) Put(order domain.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.items[order.ID]; ok && existing.Version > order.Version {
		return
	}
	c.items[order.ID] = order
}

// Get returns the last-cached snapshot for orderID, or false on a miss.
func (c *Cache) Get(orderID string) (domain.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	order, ok := c.items[orderID]
	return order, ok
}
