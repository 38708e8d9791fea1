package book

import (
	"sort"
	"strings"
	"time"

	"indexflow/logger"
	"indexflow/models"
)

const (
	// quotePreferred and quoteFallback are the quote suffixes tried, in order,
	// when a basket symbol does not already name its quote currency.
	quotePreferred = "USDC"
	quoteFallback  = "USDT"

	// minInputLevels is the per-constituent depth pulled from each book before
	// bucketing, so the synthetic book stays deep even for small level counts.
	minInputLevels = 50
)

// AggregateRequest holds the parameters of one synthetic orderbook
// computation. Weights are basis points; a weight of 10000 is the whole
// basket. AggregationBps is the bucket width for the greedy level merge;
// zero disables merging.
type AggregateRequest struct {
	Symbols        []string
	Weights        []uint32
	Levels         int
	AggregationBps uint32
	BaseMidPrice   *float64
}

// Aggregate computes the synthetic weighted orderbook for a basket from the
// current cache contents. It is a pure function of the cache snapshot and the
// request: identical inputs produce identical output. Each symbol lookup is
// independently consistent; the basket as a whole is not a single atomic view.
func (c *Cache) Aggregate(req AggregateRequest) models.AggregatedOrderbook {
	type constituent struct {
		book       models.AssetOrderbook
		weightFrac float64
	}

	var (
		valid       []constituent
		failed      []string
		weightedMid float64
	)

	for i, symbol := range req.Symbols {
		var weight uint32
		if i < len(req.Weights) {
			weight = req.Weights[i]
		}
		weightFrac := float64(weight) / 10000

		ob, ok := c.resolve(symbol)
		if !ok {
			failed = append(failed, symbol)
			continue
		}
		weightedMid += ob.MidPrice * weightFrac
		valid = append(valid, constituent{book: ob, weightFrac: weightFrac})
	}

	finalMid := weightedMid
	if req.BaseMidPrice != nil {
		finalMid = *req.BaseMidPrice
	}

	if len(valid) == 0 || finalMid <= 0 {
		mid := 0.0
		if req.BaseMidPrice != nil {
			mid = *req.BaseMidPrice
		}
		allFailed := make([]string, len(req.Symbols))
		copy(allFailed, req.Symbols)
		return models.AggregatedOrderbook{
			MidPrice:     mid,
			AssetsFailed: allFailed,
			Timestamp:    time.Now().UnixMilli(),
		}
	}

	inputLevels := req.Levels
	if inputLevels < minInputLevels {
		inputLevels = minInputLevels
	}

	var allBids, allAsks []models.OrderbookLevel
	for _, con := range valid {
		// Zero weight would divide the capacity by zero.
		if con.weightFrac <= 0 {
			continue
		}
		allBids = append(allBids, projectLevels(con.book.Bids, inputLevels, con.book.MidPrice, finalMid, con.weightFrac)...)
		allAsks = append(allAsks, projectLevels(con.book.Asks, inputLevels, con.book.MidPrice, finalMid, con.weightFrac)...)
	}

	sort.SliceStable(allBids, func(i, j int) bool { return allBids[i].Price > allBids[j].Price })
	sort.SliceStable(allAsks, func(i, j int) bool { return allAsks[i].Price < allAsks[j].Price })

	bids := mergeLevels(allBids, req.Levels, req.AggregationBps)
	asks := mergeLevels(allAsks, req.Levels, req.AggregationBps)

	var totalBid, totalAsk float64
	for _, lvl := range bids {
		totalBid += lvl.USDValue
	}
	for _, lvl := range asks {
		totalAsk += lvl.USDValue
	}

	var bestBid, bestAsk float64
	if len(bids) > 0 {
		bestBid = bids[0].Price
	}
	if len(asks) > 0 {
		bestAsk = asks[0].Price
	}
	spreadBps := 0.0
	if finalMid > 0 {
		spreadBps = (bestAsk - bestBid) / finalMid * 10000
	}

	logger.IncrementAggregation(len(bids) + len(asks))

	return models.AggregatedOrderbook{
		Bids:             bids,
		Asks:             asks,
		MidPrice:         finalMid,
		SpreadBps:        spreadBps,
		TotalBidDepthUSD: totalBid,
		TotalAskDepthUSD: totalAsk,
		AssetsIncluded:   len(valid),
		AssetsFailed:     failed,
		Timestamp:        time.Now().UnixMilli(),
	}
}

// resolve finds the cache key for a basket symbol. A symbol that already
// carries a known quote suffix is used as-is; otherwise the preferred quote is
// tried before the fallback. A book counts only when it has a positive mid
// price and has received at least one update.
func (c *Cache) resolve(symbol string) (models.AssetOrderbook, bool) {
	upper := strings.ToUpper(symbol)

	var keys []string
	if strings.HasSuffix(upper, quotePreferred) || strings.HasSuffix(upper, quoteFallback) {
		keys = []string{upper}
	} else {
		keys = []string{upper + quotePreferred, upper + quoteFallback}
	}

	for _, key := range keys {
		if ob, ok := c.Get(key); ok && ob.MidPrice > 0 && ob.LastUpdate > 0 {
			return ob, true
		}
	}
	return models.AssetOrderbook{}, false
}

// projectLevels converts one constituent's raw levels into index-space levels.
// A level's price is scaled by its distance from the asset's own mid, and its
// liquidity becomes basket-equivalent notional: filling one unit of basket
// consumes weightFrac units of this asset.
func projectLevels(side []models.PriceLevel, inputLevels int, assetMid, indexMid, weightFrac float64) []models.OrderbookLevel {
	if inputLevels > len(side) {
		inputLevels = len(side)
	}
	out := make([]models.OrderbookLevel, 0, inputLevels)
	for _, lvl := range side[:inputLevels] {
		relative := lvl.Price / assetMid
		indexPrice := indexMid * relative
		assetUSD := lvl.Price * lvl.Quantity
		capacityUSD := assetUSD / weightFrac
		out = append(out, models.OrderbookLevel{
			Price:    indexPrice,
			Quantity: capacityUSD / indexPrice,
			USDValue: capacityUSD,
		})
	}
	return out
}

// mergeLevels buckets already-sorted levels with a single greedy pass: a level
// within aggregationBps of the last retained level folds its quantity and
// notional into it, otherwise it starts a new level. The pass never looks
// ahead or re-sorts. The result is truncated to maxLevels without padding.
func mergeLevels(levels []models.OrderbookLevel, maxLevels int, aggregationBps uint32) []models.OrderbookLevel {
	if len(levels) == 0 {
		return nil
	}

	threshold := float64(aggregationBps) / 10000
	merged := make([]models.OrderbookLevel, 0, len(levels))

	for _, lvl := range levels {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			diff := lvl.Price - last.Price
			if diff < 0 {
				diff = -diff
			}
			if diff/last.Price < threshold {
				last.Quantity += lvl.Quantity
				last.USDValue += lvl.USDValue
				continue
			}
		}
		merged = append(merged, lvl)
	}

	if len(merged) > maxLevels {
		merged = merged[:maxLevels]
	}
	return merged
}
