package feed

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"indexflow/book"
	appconfig "indexflow/config"
	"indexflow/logger"
	"indexflow/models"
)

// readBuffer bounds frames queued between the read goroutine and the
// connection loop.
const readBuffer = 256

// connection keeps one upstream websocket session alive for a shard of
// symbols and feeds parsed snapshots into the orderbook cache.
type connection struct {
	id      int
	total   int
	symbols []string
	cfg     appconfig.FeedConfig
	cache   *book.Cache
	log     *logger.Entry
}

func newConnection(id, total int, symbols []string, cfg appconfig.FeedConfig, cache *book.Cache) *connection {
	return &connection{
		id:      id,
		total:   total,
		symbols: symbols,
		cfg:     cfg,
		cache:   cache,
		log: logger.GetLogger().WithComponent("feed_conn").WithFields(logger.Fields{
			"conn":    id,
			"conns":   total,
			"symbols": len(symbols),
		}),
	}
}

// run is the reconnect loop: a fixed delay between attempts, no backoff
// growth, no retry cap. It exits only on context cancellation.
func (c *connection) run(ctx context.Context) {
	delay := time.Duration(c.cfg.ReconnectDelaySec) * time.Second
	for {
		if ctx.Err() != nil {
			c.log.Info("connection stopped due to context cancellation")
			return
		}

		if err := c.connectAndStream(ctx); err != nil {
			c.log.WithError(err).Warn("connection failed, reconnecting")
		} else {
			c.log.Info("connection closed, reconnecting")
		}
		logger.IncrementReconnect()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndStream dials the exchange, sends one batched subscribe frame for
// the whole shard and pumps frames until the transport fails, the heartbeat
// deadline passes or the context is cancelled. All writes happen on this
// goroutine; a separate goroutine only reads.
func (c *connection) connectAndStream(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.Info("connected, subscribing")

	sub := models.SubscribeMessage{Op: "subscribe", Args: make([]models.SubscribeArg, 0, len(c.symbols))}
	for _, sym := range c.symbols {
		sub.Args = append(sub.Args, models.SubscribeArg{
			InstType: c.cfg.InstType,
			Channel:  c.cfg.Channel,
			InstID:   strings.ToUpper(sym),
		})
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	snapshots := 0
	defer func() {
		logger.LogDataFlowEntry(c.log, "exchange_ws", "book_cache", snapshots, "orderbook_snapshot")
	}()

	frames := make(chan []byte, readBuffer)
	readErr := make(chan error, 1)
	// readerDone releases the read goroutine if it is blocked handing off a
	// frame when this function returns for a non-read reason, e.g. a pong
	// timeout or a heartbeat write failure.
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- raw:
			case <-readerDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	heartbeat := time.NewTicker(time.Duration(c.cfg.HeartbeatSec) * time.Second)
	defer heartbeat.Stop()
	pongWindow := time.Duration(c.cfg.PongTimeoutSec) * time.Second
	lastPong := time.Now()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case err := <-readErr:
			return err

		case raw := <-frames:
			if c.handleFrame(raw, &lastPong) {
				snapshots++
			}

		case <-heartbeat.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				return err
			}
			if time.Since(lastPong) > pongWindow {
				return errors.New("liveness pong timeout")
			}
		}
	}
}

// handleFrame classifies one inbound frame and reports whether it carried
// orderbook data. Malformed and unrecognized frames are dropped, never fatal.
func (c *connection) handleFrame(raw []byte, lastPong *time.Time) bool {
	kind, evt, data := models.ClassifyUpstreamFrame(raw)
	switch kind {
	case models.FramePong:
		*lastPong = time.Now()

	case models.FrameEvent:
		if evt.Event == "error" {
			c.log.WithFields(logger.Fields{"code": evt.Code, "msg": evt.Msg}).Warn("exchange error event")
		} else {
			c.log.WithFields(logger.Fields{"event": evt.Event}).Debug("exchange event")
		}

	case models.FrameData:
		c.handleData(data)
		logger.IncrementFeedRead(len(raw))
		return true

	default:
		c.log.Debug("dropping unrecognized frame")
	}
	return false
}

func (c *connection) handleData(msg *models.BookDataMessage) {
	symbol := msg.Arg.InstID
	if symbol == "" {
		return
	}
	for _, bookData := range msg.Data {
		bids := parseLevels(bookData.Bids)
		asks := parseLevels(bookData.Asks)
		c.cache.Update(symbol, bids, asks)
	}
}

// parseLevels converts [price_string, quantity_string] pairs to price levels.
// Malformed entries are skipped; the rest of the frame still applies.
func parseLevels(raw [][]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}
