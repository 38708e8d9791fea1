package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Indexflow IndexflowConfig `yaml:"indexflow"`
	Feed      FeedConfig      `yaml:"feed"`
	Stream    StreamConfig    `yaml:"stream"`
	Assets    AssetsConfig    `yaml:"assets"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type IndexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// FeedConfig controls the upstream exchange websocket feed.
type FeedConfig struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`
	RestURL           string `yaml:"rest_url"`
	InstType          string `yaml:"inst_type"`
	Channel           string `yaml:"channel"`
	Quote             string `yaml:"quote"`
	ShardSize         int    `yaml:"shard_size"`
	HeartbeatSec      int    `yaml:"heartbeat_sec"`
	PongTimeoutSec    int    `yaml:"pong_timeout_sec"`
	ReconnectDelaySec int    `yaml:"reconnect_delay_sec"`
}

// StreamConfig controls the downstream client websocket server.
type StreamConfig struct {
	Addr                  string `yaml:"addr"`
	SubscribeTimeoutSec   int    `yaml:"subscribe_timeout_sec"`
	MinIntervalMs         uint64 `yaml:"min_interval_ms"`
	DefaultLevels         int    `yaml:"default_levels"`
	DefaultIntervalMs     uint64 `yaml:"default_interval_ms"`
	DefaultAggregationBps uint32 `yaml:"default_aggregation_bps"`
	UpgradesPerSecond     int    `yaml:"upgrades_per_second"`
	UpgradeBurst          int    `yaml:"upgrade_burst"`
}

type AssetsConfig struct {
	File string `yaml:"file"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch    bool   `yaml:"cloudwatch"`
	Region        string `yaml:"region"`
	Namespace     string `yaml:"namespace"`
	DashboardName string `yaml:"dashboard_name"`
}

// defaultConfigPath is used when no -config flag is provided; production and
// staging deployments may carry their own file next to it.
const defaultConfigPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Feed: FeedConfig{
			Enabled:           true,
			RestURL:           "https://api.bitget.com",
			InstType:          "SPOT",
			Channel:           "books15",
			Quote:             "USDT",
			ShardSize:         50,
			HeartbeatSec:      25,
			PongTimeoutSec:    120,
			ReconnectDelaySec: 5,
		},
		Stream: StreamConfig{
			Addr:                  ":8080",
			SubscribeTimeoutSec:   30,
			MinIntervalMs:         50,
			DefaultLevels:         10,
			DefaultIntervalMs:     100,
			DefaultAggregationBps: 10,
			UpgradesPerSecond:     20,
			UpgradeBurst:          40,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides for deployment specific values
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.Metrics.Region = strings.TrimSpace(v)
	}
	if v := os.Getenv("STREAM_ADDR"); v != "" {
		config.Stream.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		config.Feed.URL = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Indexflow.Name == "" {
		return fmt.Errorf("indexflow.name is required")
	}

	if cfg.Indexflow.Version == "" {
		return fmt.Errorf("indexflow.version is required")
	}

	if cfg.Feed.Enabled {
		if cfg.Feed.URL == "" {
			return fmt.Errorf("feed.url is required when the feed is enabled")
		}
		if cfg.Feed.ShardSize <= 0 {
			return fmt.Errorf("feed.shard_size must be greater than 0")
		}
		if cfg.Feed.HeartbeatSec <= 0 {
			return fmt.Errorf("feed.heartbeat_sec must be greater than 0")
		}
		if cfg.Feed.PongTimeoutSec <= cfg.Feed.HeartbeatSec {
			return fmt.Errorf("feed.pong_timeout_sec must be greater than feed.heartbeat_sec")
		}
		if cfg.Feed.ReconnectDelaySec <= 0 {
			return fmt.Errorf("feed.reconnect_delay_sec must be greater than 0")
		}
	}

	if cfg.Stream.Addr == "" {
		return fmt.Errorf("stream.addr is required")
	}
	if cfg.Stream.SubscribeTimeoutSec <= 0 {
		return fmt.Errorf("stream.subscribe_timeout_sec must be greater than 0")
	}
	if cfg.Stream.MinIntervalMs == 0 {
		return fmt.Errorf("stream.min_interval_ms must be greater than 0")
	}
	if cfg.Stream.DefaultLevels <= 0 {
		return fmt.Errorf("stream.default_levels must be greater than 0")
	}
	if cfg.Stream.DefaultIntervalMs < cfg.Stream.MinIntervalMs {
		return fmt.Errorf("stream.default_interval_ms must not be below stream.min_interval_ms")
	}

	return nil
}
