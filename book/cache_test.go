package book

import (
	"testing"

	"indexflow/models"
)

func levels(pairs ...float64) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.PriceLevel{Price: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}

func TestCacheUpdateAndGet(t *testing.T) {
	c := NewCache()

	if _, ok := c.Get("BTCUSDC"); ok {
		t.Fatalf("expected miss on empty cache")
	}

	c.Update("BTCUSDC", levels(99, 1), levels(101, 1))
	ob, ok := c.Get("BTCUSDC")
	if !ok {
		t.Fatalf("expected hit after update")
	}
	if ob.MidPrice != 100 {
		t.Errorf("expected mid 100, got %f", ob.MidPrice)
	}
	if c.Count() != 1 {
		t.Errorf("expected 1 symbol, got %d", c.Count())
	}
}

func TestCacheGetReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Update("ETHUSDC", levels(49, 1), levels(51, 1))

	ob, _ := c.Get("ETHUSDC")
	ob.Bids[0].Price = 1

	fresh, _ := c.Get("ETHUSDC")
	if fresh.Bids[0].Price != 49 {
		t.Fatalf("caller mutation leaked into cache: %f", fresh.Bids[0].Price)
	}
}

func TestCacheLastWriteWins(t *testing.T) {
	c := NewCache()
	c.Update("BTCUSDC", levels(99, 1), levels(101, 1))
	c.Update("BTCUSDC", levels(199, 1), levels(201, 1))

	ob, _ := c.Get("BTCUSDC")
	if ob.MidPrice != 200 {
		t.Fatalf("expected latest snapshot mid 200, got %f", ob.MidPrice)
	}
	if c.Count() != 1 {
		t.Fatalf("re-updating a symbol must not add keys, got %d", c.Count())
	}
}

func TestCacheKeysNeverRemoved(t *testing.T) {
	c := NewCache()
	c.Update("BTCUSDC", levels(99, 1), levels(101, 1))
	// A degenerate empty snapshot still keeps the key present.
	c.Update("BTCUSDC", nil, nil)

	if !c.Has("BTCUSDC") {
		t.Fatalf("key removed by empty update")
	}
	ob, ok := c.Get("BTCUSDC")
	if !ok || len(ob.Bids) != 0 {
		t.Fatalf("expected empty latest snapshot, got %+v", ob)
	}
}

func TestCacheNotify(t *testing.T) {
	c := NewCache()
	ch := c.Notify()

	c.Update("BTCUSDC", levels(99, 1), levels(101, 1))

	select {
	case sym := <-ch:
		if sym != "BTCUSDC" {
			t.Fatalf("unexpected notification: %s", sym)
		}
	default:
		t.Fatalf("expected a buffered notification")
	}
}
