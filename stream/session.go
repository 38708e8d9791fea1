package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"indexflow/book"
	appconfig "indexflow/config"
	"indexflow/logger"
	"indexflow/models"
)

// midTolerance is the mid price delta below which consecutive pushes are
// considered duplicates and skipped.
const midTolerance = 1e-6

// maxIntervalMs caps the client-requested tick interval. The value is
// client-controlled; without a ceiling a huge interval overflows the
// nanosecond Duration and time.NewTicker panics on a non-positive period.
const maxIntervalMs = 60000

// slowAggregation flags basket computations that eat a meaningful share of the
// push interval floor.
const slowAggregation = 25 * time.Millisecond

// session is one downstream client connection. Its lifecycle is a strict
// state machine: exactly one subscribe message, then periodic orderbook
// pushes until the client leaves or the server shuts down. All writes happen
// on the session goroutine; a separate goroutine only reads.
type session struct {
	id      string
	conn    *websocket.Conn
	cache   *book.Cache
	cfg     appconfig.StreamConfig
	log     *logger.Entry
	lastMid float64
}

func newSession(conn *websocket.Conn, cache *book.Cache, cfg appconfig.StreamConfig) *session {
	id := uuid.New().String()
	return &session{
		id:    id,
		conn:  conn,
		cache: cache,
		cfg:   cfg,
		log: logger.GetLogger().WithComponent("stream_session").WithFields(logger.Fields{
			"session": id,
			"remote":  conn.RemoteAddr().String(),
		}),
	}
}

// control is a client action frame received after the subscribe handshake.
type control int

const (
	controlPing control = iota
	controlUnsubscribe
)

func (s *session) run(ctx context.Context) {
	logger.IncrementSessionOpen()
	defer logger.IncrementSessionClose()
	defer s.conn.Close()

	req, err := s.awaitSubscription()
	if err != nil {
		s.log.WithError(err).Info("subscription rejected")
		s.writeJSON(models.ErrorMessage{Type: "error", Message: err.Error()})
		return
	}

	levels := req.Levels
	if levels <= 0 {
		levels = s.cfg.DefaultLevels
	}
	aggregationBps := s.cfg.DefaultAggregationBps
	if req.AggregationBps != nil {
		aggregationBps = *req.AggregationBps
	}
	intervalMs := req.IntervalMs
	if intervalMs == 0 {
		intervalMs = s.cfg.DefaultIntervalMs
	}
	if intervalMs < s.cfg.MinIntervalMs {
		intervalMs = s.cfg.MinIntervalMs
	}
	if intervalMs > maxIntervalMs {
		intervalMs = maxIntervalMs
	}
	interval := time.Duration(intervalMs) * time.Millisecond

	if err := s.writeJSON(models.SubscribedMessage{
		Type:       "subscribed",
		Symbols:    req.Symbols,
		Weights:    req.Weights,
		IntervalMs: intervalMs,
	}); err != nil {
		s.log.WithError(err).Debug("failed to confirm subscription")
		return
	}

	s.log.WithFields(logger.Fields{
		"symbols":         len(req.Symbols),
		"levels":          levels,
		"interval_ms":     intervalMs,
		"aggregation_bps": aggregationBps,
	}).Info("session subscribed")

	aggReq := book.AggregateRequest{
		Symbols:        req.Symbols,
		Weights:        req.Weights,
		Levels:         levels,
		AggregationBps: aggregationBps,
		BaseMidPrice:   req.BaseMidPrice,
	}

	ctrl := make(chan control, 4)
	readErr := make(chan error, 1)
	go s.readPump(ctrl, readErr)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return

		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Debug("client read failed")
			}
			return

		case c := <-ctrl:
			switch c {
			case controlPing:
				if err := s.writeJSON(models.PongMessage{Type: "pong"}); err != nil {
					return
				}
			case controlUnsubscribe:
				s.log.Info("client unsubscribed")
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "unsubscribed"))
				return
			}

		case <-ticker.C:
			if !s.push(aggReq) {
				return
			}
		}
	}
}

// awaitSubscription reads and validates the mandatory first message. The
// client has a bounded window to send it; anything other than a valid
// subscribe ends the session.
func (s *session) awaitSubscription() (*models.StreamRequest, error) {
	deadline := time.Duration(s.cfg.SubscribeTimeoutSec) * time.Second
	s.conn.SetReadDeadline(time.Now().Add(deadline))
	defer s.conn.SetReadDeadline(time.Time{})

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, fmt.Errorf("subscription timeout")
		}
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}

	var req models.StreamRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid subscription message: %w", err)
	}
	if req.Action != "subscribe" {
		return nil, fmt.Errorf("first message must have action subscribe")
	}
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func validateRequest(req *models.StreamRequest) error {
	if len(req.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	if len(req.Symbols) != len(req.Weights) {
		return fmt.Errorf("symbols and weights must have same length")
	}
	var total uint32
	for _, w := range req.Weights {
		total += w
	}
	if total != 10000 {
		return fmt.Errorf("weights must sum to 10000, got %d", total)
	}
	return nil
}

// readPump drains inbound frames after the handshake so control messages and
// transport errors surface on the session goroutine. Unrecognized frames are
// dropped.
func (s *session) readPump(ctrl chan<- control, readErr chan<- error) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}

		var msg struct {
			Action string `json:"action"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "ping":
			ctrl <- controlPing
		case "unsubscribe":
			ctrl <- controlUnsubscribe
		}
	}
}

// push aggregates and sends one orderbook frame, unless the mid price has not
// moved since the previous push. Returns false when the transport is gone.
func (s *session) push(req book.AggregateRequest) bool {
	start := time.Now()
	agg := s.cache.Aggregate(req)
	if d := time.Since(start); d > slowAggregation {
		logger.LogPerformanceEntry(s.log, "stream_session", "aggregate", d, logger.Fields{
			"symbols": len(req.Symbols),
		})
	}
	if s.lastMid > 0 && math.Abs(agg.MidPrice-s.lastMid) < midTolerance {
		return true
	}
	s.lastMid = agg.MidPrice

	data, err := json.Marshal(models.NewOrderbookMessage(agg))
	if err != nil {
		s.log.WithError(err).Error("failed to encode orderbook push")
		return true
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.WithError(err).Debug("push failed, closing session")
		return false
	}
	logger.IncrementStreamPush(len(data))
	return true
}

func (s *session) writeJSON(v interface{}) error {
	return s.conn.WriteJSON(v)
}
