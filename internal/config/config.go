// Package config loads mnemo configuration from ~/.mnemo/config.yaml with
// MNEMO_* environment variable overrides. All classifier thresholds live
// here so relationship policy can be tuned without a rebuild.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all mnemo configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Embedder EmbedderConfig `mapstructure:"embedder"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EmbedderConfig selects and tunes the embedding provider.
type EmbedderConfig struct {
	Provider    string `mapstructure:"provider"` // "ollama" or "hash"
	OllamaURL   string `mapstructure:"ollama_url"`
	OllamaModel string `mapstructure:"ollama_model"`
	Dimensions  int    `mapstructure:"dimensions"`
	CacheSize   int64  `mapstructure:"cache_size"`
}

// EngineConfig tunes chunking, classification, tiering, and ranking.
type EngineConfig struct {
	// Chunking
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	MaxKeywords  int `mapstructure:"max_keywords"`

	// Relationship classification. Thresholds are evaluated in priority
	// order: updates, extends, derives, similar.
	UpdateThreshold   float64 `mapstructure:"update_threshold"`
	ExtendThreshold   float64 `mapstructure:"extend_threshold"`
	OverlapThreshold  float64 `mapstructure:"overlap_threshold"`
	SimilarFloor      float64 `mapstructure:"similar_floor"`
	MinSharedKeywords int     `mapstructure:"min_shared_keywords"`
	CandidateK        int     `mapstructure:"candidate_k"`

	// Tiering
	HotAgeDays         int           `mapstructure:"hot_age_days"`
	PromotionThreshold int           `mapstructure:"promotion_threshold"`
	RebalanceInterval  time.Duration `mapstructure:"rebalance_interval"`

	// Ranking
	HalfLifeDays     float64 `mapstructure:"half_life_days"`
	SemanticWeight   float64 `mapstructure:"semantic_weight"`
	SearchMultiplier int     `mapstructure:"search_multiplier"`

	// External call retry
	RetryMaxAttempts   int           `mapstructure:"retry_max_attempts"`
	RetryInitialDelay  time.Duration `mapstructure:"retry_initial_delay"`
	ExternalCallBudget time.Duration `mapstructure:"external_call_budget"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37707,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedder: EmbedderConfig{
			Provider:    "ollama",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "nomic-embed-text",
			Dimensions:  384,
			CacheSize:   4096,
		},
		Engine: EngineConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
			MaxKeywords:  10,

			UpdateThreshold:   0.70,
			ExtendThreshold:   0.60,
			OverlapThreshold:  0.30,
			SimilarFloor:      0.30,
			MinSharedKeywords: 2,
			CandidateK:        5,

			HotAgeDays:         30,
			PromotionThreshold: 5,
			RebalanceInterval:  time.Hour,

			HalfLifeDays:     90,
			SemanticWeight:   0.7,
			SearchMultiplier: 5,

			RetryMaxAttempts:   3,
			RetryInitialDelay:  250 * time.Millisecond,
			ExternalCallBudget: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns ~/.mnemo/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mnemo", "config.yaml"), nil
}

// Load reads configuration from path (or the default location when path is
// empty), layered over Default(). A missing config file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	setDefaults(v, cfg)

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, err
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MNEMO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.bind", cfg.Server.Bind)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("database.path", cfg.Database.Path)
	v.SetDefault("embedder.provider", cfg.Embedder.Provider)
	v.SetDefault("embedder.ollama_url", cfg.Embedder.OllamaURL)
	v.SetDefault("embedder.ollama_model", cfg.Embedder.OllamaModel)
	v.SetDefault("embedder.dimensions", cfg.Embedder.Dimensions)
	v.SetDefault("embedder.cache_size", cfg.Embedder.CacheSize)
	v.SetDefault("engine.chunk_size", cfg.Engine.ChunkSize)
	v.SetDefault("engine.chunk_overlap", cfg.Engine.ChunkOverlap)
	v.SetDefault("engine.max_keywords", cfg.Engine.MaxKeywords)
	v.SetDefault("engine.update_threshold", cfg.Engine.UpdateThreshold)
	v.SetDefault("engine.extend_threshold", cfg.Engine.ExtendThreshold)
	v.SetDefault("engine.overlap_threshold", cfg.Engine.OverlapThreshold)
	v.SetDefault("engine.similar_floor", cfg.Engine.SimilarFloor)
	v.SetDefault("engine.min_shared_keywords", cfg.Engine.MinSharedKeywords)
	v.SetDefault("engine.candidate_k", cfg.Engine.CandidateK)
	v.SetDefault("engine.hot_age_days", cfg.Engine.HotAgeDays)
	v.SetDefault("engine.promotion_threshold", cfg.Engine.PromotionThreshold)
	v.SetDefault("engine.rebalance_interval", cfg.Engine.RebalanceInterval)
	v.SetDefault("engine.half_life_days", cfg.Engine.HalfLifeDays)
	v.SetDefault("engine.semantic_weight", cfg.Engine.SemanticWeight)
	v.SetDefault("engine.search_multiplier", cfg.Engine.SearchMultiplier)
	v.SetDefault("engine.retry_max_attempts", cfg.Engine.RetryMaxAttempts)
	v.SetDefault("engine.retry_initial_delay", cfg.Engine.RetryInitialDelay)
	v.SetDefault("engine.external_call_budget", cfg.Engine.ExternalCallBudget)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
