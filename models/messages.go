package models

import "encoding/json"

/////////////////////////////////////////////////////////////////////////////
//////////////////////////// UPSTREAM (exchange) ////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// SubscribeArg names one channel+instrument pair in a batched subscribe frame.
type SubscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// SubscribeMessage is the batched subscribe control frame sent once per
// connection, naming every symbol of the shard.
type SubscribeMessage struct {
	Op   string         `json:"op"`
	Args []SubscribeArg `json:"args"`
}

// EventMessage represents acknowledgement and error frames from the exchange,
// e.g. {"event":"subscribe",...} or {"event":"error","code":"...","msg":"..."}.
type EventMessage struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
}

// BookArg identifies the channel and instrument a data frame belongs to.
type BookArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// BookData carries one orderbook snapshot with bid/ask arrays of
// [price_string, quantity_string] pairs.
type BookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	Ts   string     `json:"ts"`
}

// BookDataMessage represents an orderbook data frame from the exchange
// websocket.
type BookDataMessage struct {
	Action string     `json:"action"`
	Arg    BookArg    `json:"arg"`
	Data   []BookData `json:"data"`
}

// UpstreamFrameKind classifies an inbound exchange frame.
type UpstreamFrameKind int

const (
	// FrameUnknown marks frames that match no known shape; they are dropped.
	FrameUnknown UpstreamFrameKind = iota
	// FramePong is the text liveness reply to our ping.
	FramePong
	// FrameEvent is a subscribe acknowledgement or exchange-side error.
	FrameEvent
	// FrameData carries orderbook levels.
	FrameData
)

// ClassifyUpstreamFrame decodes a raw exchange frame into the closed
// {pong, event, data} set. Malformed or unrecognized frames classify as
// FrameUnknown and are never treated as fatal by callers.
func ClassifyUpstreamFrame(raw []byte) (UpstreamFrameKind, *EventMessage, *BookDataMessage) {
	if string(raw) == "pong" {
		return FramePong, nil, nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FrameUnknown, nil, nil
	}
	if _, ok := probe["event"]; ok {
		var evt EventMessage
		if err := json.Unmarshal(raw, &evt); err != nil {
			return FrameUnknown, nil, nil
		}
		return FrameEvent, &evt, nil
	}
	if _, ok := probe["data"]; ok {
		var data BookDataMessage
		if err := json.Unmarshal(raw, &data); err != nil {
			return FrameUnknown, nil, nil
		}
		return FrameData, nil, &data
	}
	return FrameUnknown, nil, nil
}

/////////////////////////////////////////////////////////////////////////////
//////////////////////////// DOWNSTREAM (clients) ///////////////////////////
/////////////////////////////////////////////////////////////////////////////

// StreamRequest is the single subscribe control message a client must send
// after upgrading. Weights are basis points and must sum to exactly 10000.
// AggregationBps is a pointer so an explicit 0 (no merging) is distinguishable
// from an absent field (server default).
type StreamRequest struct {
	Action         string   `json:"action"`
	Symbols        []string `json:"symbols"`
	Weights        []uint32 `json:"weights"`
	Levels         int      `json:"levels"`
	IntervalMs     uint64   `json:"interval_ms"`
	AggregationBps *uint32  `json:"aggregation_bps,omitempty"`
	BaseMidPrice   *float64 `json:"base_mid_price,omitempty"`
}

// SubscribedMessage confirms a stream subscription.
type SubscribedMessage struct {
	Type       string   `json:"type"`
	Symbols    []string `json:"symbols"`
	Weights    []uint32 `json:"weights"`
	IntervalMs uint64   `json:"interval_ms"`
}

// OrderbookPayload is the data object of a stream push; the envelope carries
// the timestamp separately.
type OrderbookPayload struct {
	Bids             []OrderbookLevel `json:"bids"`
	Asks             []OrderbookLevel `json:"asks"`
	MidPrice         float64          `json:"mid_price"`
	SpreadBps        float64          `json:"spread_bps"`
	TotalBidDepthUSD float64          `json:"total_bid_depth_usd"`
	TotalAskDepthUSD float64          `json:"total_ask_depth_usd"`
	AssetsIncluded   int              `json:"assets_included"`
	AssetsFailed     []string         `json:"assets_failed"`
}

// OrderbookMessage is one periodic stream push.
type OrderbookMessage struct {
	Type      string           `json:"type"`
	Data      OrderbookPayload `json:"data"`
	Timestamp int64            `json:"timestamp"`
}

// NewOrderbookMessage wraps an aggregation result into a push envelope.
func NewOrderbookMessage(agg AggregatedOrderbook) OrderbookMessage {
	return OrderbookMessage{
		Type: "orderbook",
		Data: OrderbookPayload{
			Bids:             agg.Bids,
			Asks:             agg.Asks,
			MidPrice:         agg.MidPrice,
			SpreadBps:        agg.SpreadBps,
			TotalBidDepthUSD: agg.TotalBidDepthUSD,
			TotalAskDepthUSD: agg.TotalAskDepthUSD,
			AssetsIncluded:   agg.AssetsIncluded,
			AssetsFailed:     agg.AssetsFailed,
		},
		Timestamp: agg.Timestamp,
	}
}

// PongMessage answers a client-level {"action":"ping"}.
type PongMessage struct {
	Type string `json:"type"`
}

// ErrorMessage is sent once before closing a misbehaving session.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
