package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mnemo-sh/mnemo/internal/config"
	"github.com/mnemo-sh/mnemo/internal/embed"
	"github.com/mnemo-sh/mnemo/internal/engine"
	"github.com/mnemo-sh/mnemo/internal/extract"
	"github.com/mnemo-sh/mnemo/internal/index"
	"github.com/mnemo-sh/mnemo/internal/store"
)

// env is the assembled runtime: config, store, providers, and engine.
// Every command that touches the database goes through openEnv.
type env struct {
	cfg    config.Config
	db     *store.DB
	engine *engine.Engine
	cache  *embed.CachedEmbedder
}

func (e *env) close() {
	e.engine.Stop()
	if e.cache != nil {
		e.cache.Close()
	}
	e.db.Close()
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Logging.Level)

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	embedder, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		db.Close()
		return nil, err
	}
	cached, err := embed.NewCachedEmbedder(embedder, cfg.Embedder.CacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("embed cache: %w", err)
	}

	extractor := extract.NewPatternExtractor(cfg.Engine.MaxKeywords)
	eng := engine.New(db, index.NewHot(), cached, extractor, cfg.Engine)

	return &env{cfg: cfg, db: db, engine: eng, cache: cached}, nil
}

// buildEmbedder picks the embedding provider. "ollama" probes the server
// first and falls back to the deterministic hashing embedder when it is not
// reachable, so the binary works offline.
func buildEmbedder(cfg config.EmbedderConfig) (embed.Embedder, error) {
	switch cfg.Provider {
	case "hash":
		return embed.NewHashEmbedder(cfg.Dimensions), nil
	case "ollama", "":
		if embed.ProbeOllama(cfg.OllamaURL, cfg.OllamaModel) {
			log.Info().Str("model", cfg.OllamaModel).Msg("using ollama embedder")
			return embed.NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.Dimensions), nil
		}
		log.Warn().Str("url", cfg.OllamaURL).Msg("ollama unreachable, using hash embedder")
		return embed.NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
