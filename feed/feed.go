package feed

import (
	"context"
	"fmt"
	"sync"

	"indexflow/book"
	appconfig "indexflow/config"
	"indexflow/logger"
)

// Feeder owns the upstream exchange websocket connections. It partitions the
// configured symbol universe into shards and runs one connection goroutine per
// shard; each shard reconnects independently of its siblings.
type Feeder struct {
	config  *appconfig.Config
	cache   *book.Cache
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	symbols []string
}

// NewFeeder creates a feeder for the given symbol universe. The cache is
// shared by reference; the feeder is its only writer.
func NewFeeder(cfg *appconfig.Config, cache *book.Cache, symbols []string) *Feeder {
	return &Feeder{
		config:  cfg,
		cache:   cache,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
		symbols: symbols,
	}
}

// Start launches one connection per shard. An empty symbol universe is a
// no-op. Individual shard failures never propagate to callers; connections
// retry until the context is cancelled.
func (f *Feeder) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("feeder already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	cfg := f.config.Feed
	log := f.log.WithComponent("feed").WithFields(logger.Fields{"operation": "start"})
	if !cfg.Enabled {
		log.Warn("upstream feed is disabled")
		return fmt.Errorf("upstream feed is disabled")
	}

	if len(f.symbols) == 0 {
		log.Warn("no symbols configured, feeder not starting")
		return nil
	}

	shards := shardSymbols(f.symbols, cfg.ShardSize)
	log.WithFields(logger.Fields{
		"symbols":    len(f.symbols),
		"shards":     len(shards),
		"shard_size": cfg.ShardSize,
	}).Info("starting feed connections")

	for i, shard := range shards {
		conn := newConnection(i+1, len(shards), shard, cfg, f.cache)
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			conn.run(f.ctx)
		}()
	}

	log.Info("feeder started successfully")
	return nil
}

// Stop waits for all connection goroutines to observe context cancellation.
func (f *Feeder) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.log.WithComponent("feed").Info("stopping feeder")
	f.wg.Wait()
	f.log.WithComponent("feed").Info("feeder stopped")
}

// shardSymbols splits the universe into chunks of at most size symbols.
func shardSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 50
	}
	var shards [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		shards = append(shards, symbols[start:end])
	}
	return shards
}
