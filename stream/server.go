package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"indexflow/book"
	appconfig "indexflow/config"
	"indexflow/logger"
)

// Server exposes the downstream websocket endpoint and a small diagnostics
// surface over HTTP. Every accepted websocket becomes an independent session
// goroutine; the server only tracks them for shutdown.
type Server struct {
	config     *appconfig.Config
	cache      *book.Cache
	httpServer *http.Server
	upgrader   websocket.Upgrader
	limiter    *rate.Limiter
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
}

func NewServer(cfg *appconfig.Config, cache *book.Cache) *Server {
	return &Server{
		config: cfg,
		cache:  cache,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Stream.UpgradesPerSecond), cfg.Stream.UpgradeBurst),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start binds the listen address and serves until Stop or context
// cancellation. Listen errors after startup are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("stream server already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	log := s.log.WithComponent("stream").WithFields(logger.Fields{"operation": "start"})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/orderbook/stats", s.handleStats)

	s.httpServer = &http.Server{
		Addr:              s.config.Stream.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithComponent("stream").WithError(err).Error("stream server failed")
		}
	}()

	log.WithFields(logger.Fields{"addr": s.config.Stream.Addr}).Info("stream server started successfully")
	return nil
}

// Stop shuts the listener down and waits for in-flight sessions to observe
// context cancellation.
func (s *Server) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	log := s.log.WithComponent("stream")
	log.Info("stopping stream server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("stream server shutdown error")
		}
	}
	s.wg.Wait()
	log.Info("stream server stopped")
}

// handleWS upgrades one client and hands it to a session goroutine. Upgrades
// are rate limited to protect the process from connection churn.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithComponent("stream").WithError(err).Debug("websocket upgrade failed")
		return
	}

	sess := newSession(conn, s.cache, s.config.Stream)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.run(s.ctx)
	}()
}

// handleStats reports a quick view of cache health: how many books are live
// and whether the flagship pairs are among them.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	symbols := s.cache.Symbols()
	sort.Strings(symbols)

	sample := symbols
	if len(sample) > 20 {
		sample = sample[:20]
	}

	stats := map[string]interface{}{
		"total_symbols":  len(symbols),
		"sample_symbols": sample,
		"has_btcusdt":    s.cache.Has("BTCUSDT"),
		"has_ethusdt":    s.cache.Has("ETHUSDT"),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.WithComponent("stream").WithError(err).Debug("failed to encode stats")
	}
}
