package book

import (
	"math"
	"reflect"
	"testing"

	"indexflow/models"
)

// seedBook installs a tight symmetric book around mid with the given number of
// levels per side.
func seedBook(c *Cache, symbol string, mid float64, depth int) {
	bids := make([]models.PriceLevel, 0, depth)
	asks := make([]models.PriceLevel, 0, depth)
	for i := 0; i < depth; i++ {
		step := float64(i+1) * mid * 0.001
		bids = append(bids, models.PriceLevel{Price: mid - step, Quantity: 1})
		asks = append(asks, models.PriceLevel{Price: mid + step, Quantity: 1})
	}
	c.Update(symbol, bids, asks)
}

func TestAggregateWeightedMid(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 5)
	seedBook(c, "ETHUSDC", 50, 5)

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC", "ETH"},
		Weights: []uint32{6000, 4000},
		Levels:  10,
	})

	if math.Abs(agg.MidPrice-80) > 1e-9 {
		t.Fatalf("expected weighted mid 80, got %f", agg.MidPrice)
	}
	if agg.AssetsIncluded != 2 {
		t.Errorf("expected 2 assets included, got %d", agg.AssetsIncluded)
	}
	if len(agg.AssetsFailed) != 0 {
		t.Errorf("expected no failed assets, got %v", agg.AssetsFailed)
	}
}

func TestAggregateSingleAssetIdentity(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 5)
	raw, _ := c.Get("BTCUSDC")

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC"},
		Weights: []uint32{10000},
		Levels:  5,
	})

	if math.Abs(agg.MidPrice-raw.MidPrice) > 1e-9 {
		t.Fatalf("single asset index mid %f != asset mid %f", agg.MidPrice, raw.MidPrice)
	}
	if len(agg.Bids) != len(raw.Bids) {
		t.Fatalf("expected %d bid levels, got %d", len(raw.Bids), len(agg.Bids))
	}
	for i, lvl := range agg.Bids {
		if math.Abs(lvl.Price-raw.Bids[i].Price) > 1e-9 {
			t.Errorf("bid %d price %f != %f", i, lvl.Price, raw.Bids[i].Price)
		}
		if math.Abs(lvl.Quantity-raw.Bids[i].Quantity) > 1e-9 {
			t.Errorf("bid %d quantity %f != %f", i, lvl.Quantity, raw.Bids[i].Quantity)
		}
	}
}

func TestAggregateQuoteResolution(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDT", 100, 3)

	// No USDC book exists, so the bare symbol falls back to the USDT book.
	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC"},
		Weights: []uint32{10000},
		Levels:  3,
	})
	if agg.AssetsIncluded != 1 {
		t.Fatalf("expected USDT fallback resolution, failed: %v", agg.AssetsFailed)
	}

	// Once a USDC book appears it takes precedence.
	seedBook(c, "BTCUSDC", 200, 3)
	agg = c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC"},
		Weights: []uint32{10000},
		Levels:  3,
	})
	if math.Abs(agg.MidPrice-200) > 1e-9 {
		t.Fatalf("expected preferred quote book mid 200, got %f", agg.MidPrice)
	}

	// A symbol already carrying a quote suffix is used as-is.
	agg = c.Aggregate(AggregateRequest{
		Symbols: []string{"BTCUSDT"},
		Weights: []uint32{10000},
		Levels:  3,
	})
	if math.Abs(agg.MidPrice-100) > 1e-9 {
		t.Fatalf("expected explicit USDT book mid 100, got %f", agg.MidPrice)
	}
}

func TestAggregateMissingSymbol(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 3)

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC", "DOGE"},
		Weights: []uint32{6000, 4000},
		Levels:  5,
	})

	if agg.AssetsIncluded != 1 {
		t.Errorf("expected 1 included asset, got %d", agg.AssetsIncluded)
	}
	if len(agg.AssetsFailed) != 1 || agg.AssetsFailed[0] != "DOGE" {
		t.Errorf("expected DOGE to fail, got %v", agg.AssetsFailed)
	}
	// Missing constituents contribute zero to the weighted mid.
	if math.Abs(agg.MidPrice-60) > 1e-9 {
		t.Errorf("expected mid 60, got %f", agg.MidPrice)
	}
}

func TestAggregateAllMissing(t *testing.T) {
	c := NewCache()

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC", "ETH"},
		Weights: []uint32{5000, 5000},
		Levels:  5,
	})

	if agg.MidPrice != 0 || agg.AssetsIncluded != 0 {
		t.Errorf("expected empty result, got mid %f included %d", agg.MidPrice, agg.AssetsIncluded)
	}
	if !reflect.DeepEqual(agg.AssetsFailed, []string{"BTC", "ETH"}) {
		t.Errorf("expected every symbol in assets_failed, got %v", agg.AssetsFailed)
	}
	if len(agg.Bids) != 0 || len(agg.Asks) != 0 {
		t.Errorf("expected empty sides, got %d/%d", len(agg.Bids), len(agg.Asks))
	}
}

func TestAggregateBaseMidOverride(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 3)

	base := 500.0
	agg := c.Aggregate(AggregateRequest{
		Symbols:      []string{"BTC"},
		Weights:      []uint32{10000},
		Levels:       3,
		BaseMidPrice: &base,
	})

	if agg.MidPrice != 500 {
		t.Fatalf("expected overridden mid 500, got %f", agg.MidPrice)
	}
	// Best bid sits at the same relative distance from the new mid.
	wantBest := 500 * (99.9 / 100.0)
	if math.Abs(agg.Bids[0].Price-wantBest) > 1e-6 {
		t.Errorf("expected best bid %f, got %f", wantBest, agg.Bids[0].Price)
	}
}

func TestAggregateZeroBpsNoMerge(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 10)

	agg := c.Aggregate(AggregateRequest{
		Symbols:        []string{"BTC"},
		Weights:        []uint32{10000},
		Levels:         10,
		AggregationBps: 0,
	})

	if len(agg.Bids) != 10 {
		t.Fatalf("zero bps must not merge levels, got %d bids", len(agg.Bids))
	}
	for i := 1; i < len(agg.Bids); i++ {
		if agg.Bids[i].Price >= agg.Bids[i-1].Price {
			t.Fatalf("bids not strictly descending at %d", i)
		}
	}
}

func TestAggregateHugeBpsCollapses(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 10)

	agg := c.Aggregate(AggregateRequest{
		Symbols:        []string{"BTC"},
		Weights:        []uint32{10000},
		Levels:         10,
		AggregationBps: 1000000,
	})

	if len(agg.Bids) != 1 || len(agg.Asks) != 1 {
		t.Fatalf("expected full collapse to one level per side, got %d/%d", len(agg.Bids), len(agg.Asks))
	}
	var wantUSD float64
	for i := 0; i < 10; i++ {
		step := float64(i+1) * 0.1
		wantUSD += (100 - step) * 1
	}
	if math.Abs(agg.Bids[0].USDValue-wantUSD) > 1e-6 {
		t.Errorf("merged level lost notional: want %f got %f", wantUSD, agg.Bids[0].USDValue)
	}
}

func TestAggregateNoPadding(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 3)

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC"},
		Weights: []uint32{10000},
		Levels:  10,
	})

	if len(agg.Bids) != 3 || len(agg.Asks) != 3 {
		t.Fatalf("result must not be padded: got %d/%d levels", len(agg.Bids), len(agg.Asks))
	}
}

func TestAggregateTruncatesToLevels(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 20)

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC"},
		Weights: []uint32{10000},
		Levels:  5,
	})

	if len(agg.Bids) != 5 || len(agg.Asks) != 5 {
		t.Fatalf("expected truncation to 5 levels, got %d/%d", len(agg.Bids), len(agg.Asks))
	}
}

func TestAggregateZeroWeightSkipped(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 3)
	seedBook(c, "ETHUSDC", 50, 3)

	agg := c.Aggregate(AggregateRequest{
		Symbols: []string{"BTC", "ETH"},
		Weights: []uint32{10000, 0},
		Levels:  10,
	})

	// The zero weight asset contributes no mid and no levels but still counts
	// as included.
	if math.Abs(agg.MidPrice-100) > 1e-9 {
		t.Errorf("expected mid 100, got %f", agg.MidPrice)
	}
	if agg.AssetsIncluded != 2 {
		t.Errorf("expected 2 included, got %d", agg.AssetsIncluded)
	}
	if len(agg.Bids) != 3 {
		t.Errorf("zero weight asset should project no levels, got %d bids", len(agg.Bids))
	}
}

func TestAggregateDeterministic(t *testing.T) {
	c := NewCache()
	seedBook(c, "BTCUSDC", 100, 8)
	seedBook(c, "ETHUSDC", 50, 8)

	req := AggregateRequest{
		Symbols:        []string{"BTC", "ETH"},
		Weights:        []uint32{7000, 3000},
		Levels:         6,
		AggregationBps: 10,
	}

	a := c.Aggregate(req)
	b := c.Aggregate(req)
	a.Timestamp, b.Timestamp = 0, 0
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("aggregation is not deterministic:\n%+v\n%+v", a, b)
	}
}
