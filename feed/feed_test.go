package feed

import (
	"context"
	"testing"
	"time"

	"indexflow/book"
	appconfig "indexflow/config"
	"indexflow/models"
)

func TestShardSymbols(t *testing.T) {
	symbols := make([]string, 0, 120)
	for i := 0; i < 120; i++ {
		symbols = append(symbols, "SYM")
	}

	shards := shardSymbols(symbols, 50)
	if len(shards) != 3 {
		t.Fatalf("expected 3 shards, got %d", len(shards))
	}
	if len(shards[0]) != 50 || len(shards[1]) != 50 || len(shards[2]) != 20 {
		t.Fatalf("unexpected shard sizes: %d %d %d", len(shards[0]), len(shards[1]), len(shards[2]))
	}

	if got := shardSymbols(nil, 50); len(got) != 0 {
		t.Errorf("empty universe should produce no shards, got %d", len(got))
	}
	if got := shardSymbols(symbols[:10], 0); len(got) != 1 {
		t.Errorf("non-positive shard size should fall back to default, got %d shards", len(got))
	}
}

func TestParseLevels(t *testing.T) {
	raw := [][]string{
		{"100.5", "2"},
		{"bad", "2"},
		{"101", "bad"},
		{"101"},
		{"102", "3"},
	}

	levels := parseLevels(raw)
	if len(levels) != 2 {
		t.Fatalf("expected 2 parsed levels, got %d", len(levels))
	}
	if levels[0].Price != 100.5 || levels[0].Quantity != 2 {
		t.Errorf("unexpected first level: %+v", levels[0])
	}
	if levels[1].Price != 102 || levels[1].Quantity != 3 {
		t.Errorf("unexpected second level: %+v", levels[1])
	}
}

func TestHandleFrame(t *testing.T) {
	cache := book.NewCache()
	conn := newConnection(1, 1, []string{"BTCUSDC"}, appconfig.FeedConfig{}, cache)

	lastPong := time.Now().Add(-time.Hour)
	conn.handleFrame([]byte("pong"), &lastPong)
	if time.Since(lastPong) > time.Second {
		t.Fatalf("pong frame did not refresh liveness")
	}

	data := []byte(`{"action":"snapshot","arg":{"instId":"BTCUSDC"},"data":[{"bids":[["99","1"]],"asks":[["101","1"]],"ts":"1"}]}`)
	conn.handleFrame(data, &lastPong)

	ob, ok := cache.Get("BTCUSDC")
	if !ok {
		t.Fatalf("data frame did not reach the cache")
	}
	if ob.MidPrice != 100 {
		t.Errorf("expected mid 100, got %f", ob.MidPrice)
	}

	// Malformed and event frames must not panic or touch the cache.
	conn.handleFrame([]byte("garbage"), &lastPong)
	conn.handleFrame([]byte(`{"event":"error","code":"30001","msg":"boom"}`), &lastPong)
	if cache.Count() != 1 {
		t.Errorf("unexpected cache growth: %d", cache.Count())
	}
}

func TestHandleDataEmptyInstID(t *testing.T) {
	cache := book.NewCache()
	conn := newConnection(1, 1, nil, appconfig.FeedConfig{}, cache)

	conn.handleData(&models.BookDataMessage{
		Data: []models.BookData{{Bids: [][]string{{"99", "1"}}}},
	})
	if cache.Count() != 0 {
		t.Fatalf("frame without instId must be dropped")
	}
}

func TestFeederStartEmptyUniverse(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Feed.Enabled = true
	cfg.Feed.ShardSize = 50

	f := NewFeeder(cfg, book.NewCache(), nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("empty universe should be a no-op, got %v", err)
	}
	f.Stop()
}

func TestFeederStartTwice(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Feed.Enabled = true
	cfg.Feed.ShardSize = 50

	f := NewFeeder(cfg, book.NewCache(), nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := f.Start(context.Background()); err == nil {
		t.Fatalf("expected error on second start")
	}
	f.Stop()
}

func TestFeederDisabled(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Feed.Enabled = false

	f := NewFeeder(cfg, book.NewCache(), []string{"BTCUSDC"})
	if err := f.Start(context.Background()); err == nil {
		t.Fatalf("expected error when feed is disabled")
	}
}
