package models

import (
	"time"
)

// PriceLevel represents a single price level in an asset orderbook.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// AssetOrderbook represents the latest full orderbook snapshot for one symbol.
// Bids are ordered best (highest) first, asks best (lowest) first. MidPrice and
// SpreadBps are derived from the best levels and are only meaningful when both
// sides are non-empty.
type AssetOrderbook struct {
	Symbol     string       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	MidPrice   float64      `json:"mid_price"`
	SpreadBps  float64      `json:"spread_bps"`
	LastUpdate int64        `json:"last_update"` // unix milliseconds
}

// NewAssetOrderbook creates an empty orderbook for a symbol. MidPrice stays
// zero until the first update with both sides present.
func NewAssetOrderbook(symbol string) *AssetOrderbook {
	return &AssetOrderbook{Symbol: symbol}
}

// Update replaces both sides with a fresh snapshot and recomputes the derived
// mid price and spread from the best levels.
func (ob *AssetOrderbook) Update(bids, asks []PriceLevel) {
	ob.Bids = bids
	ob.Asks = asks

	var bestBid, bestAsk float64
	if len(ob.Bids) > 0 {
		bestBid = ob.Bids[0].Price
	}
	if len(ob.Asks) > 0 {
		bestAsk = ob.Asks[0].Price
	}
	if bestBid > 0 && bestAsk > 0 {
		ob.MidPrice = (bestBid + bestAsk) / 2
		ob.SpreadBps = (bestAsk - bestBid) / ob.MidPrice * 10000
	}

	ob.LastUpdate = time.Now().UnixMilli()
}

// BidDepthUSD sums price*quantity over the top bid levels.
func (ob *AssetOrderbook) BidDepthUSD(levels int) float64 {
	return depthUSD(ob.Bids, levels)
}

// AskDepthUSD sums price*quantity over the top ask levels.
func (ob *AssetOrderbook) AskDepthUSD(levels int) float64 {
	return depthUSD(ob.Asks, levels)
}

func depthUSD(side []PriceLevel, levels int) float64 {
	if levels > len(side) {
		levels = len(side)
	}
	total := 0.0
	for _, lvl := range side[:levels] {
		total += lvl.Price * lvl.Quantity
	}
	return total
}

// OrderbookLevel is a single level of a synthetic index orderbook. Quantity is
// expressed in index units and USDValue is the basket-equivalent notional the
// level can absorb.
type OrderbookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	USDValue float64 `json:"usd_value"`
}

// AggregatedOrderbook is the synthetic weighted orderbook computed for a
// basket of constituent symbols. It is produced fresh on every computation and
// never persisted.
type AggregatedOrderbook struct {
	Bids             []OrderbookLevel `json:"bids"`
	Asks             []OrderbookLevel `json:"asks"`
	MidPrice         float64          `json:"mid_price"`
	SpreadBps        float64          `json:"spread_bps"`
	TotalBidDepthUSD float64          `json:"total_bid_depth_usd"`
	TotalAskDepthUSD float64          `json:"total_ask_depth_usd"`
	AssetsIncluded   int              `json:"assets_included"`
	AssetsFailed     []string         `json:"assets_failed"`
	Timestamp        int64            `json:"timestamp"` // unix milliseconds
}
