// Package engine is the memory knowledge-graph core: the ingestion pipeline,
// relationship classifier, tiering manager, ranking engine, and graph
// operations over the store and the hot-tier index.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mnemo-sh/mnemo/internal/config"
	"github.com/mnemo-sh/mnemo/internal/embed"
	"github.com/mnemo-sh/mnemo/internal/extract"
	"github.com/mnemo-sh/mnemo/internal/index"
	"github.com/mnemo-sh/mnemo/internal/store"
)

// ErrValidation is returned for rejected input: empty text or owner.
// No document is created for a validation failure.
var ErrValidation = errors.New("validation failed")

// ErrNotFound is returned for unknown memory and document IDs.
var ErrNotFound = store.ErrNotFound

// Engine orchestrates ingestion, classification, tiering, and search.
type Engine struct {
	db        *store.DB
	hot       *index.Hot
	embedder  embed.Embedder
	extractor extract.Extractor
	cfg       config.EngineConfig

	stopCh   chan struct{}
	stopOnce sync.Once

	// ownerLocks serializes relationship classification per owner, so two
	// concurrent ingestions cannot race the is_latest read-modify-write on
	// a shared candidate. Search never takes these locks.
	mu         sync.Mutex
	ownerLocks map[string]*sync.Mutex
}

// New creates an Engine over the given store, hot index, and providers.
func New(db *store.DB, hot *index.Hot, embedder embed.Embedder, extractor extract.Extractor, cfg config.EngineConfig) *Engine {
	return &Engine{
		db:         db,
		hot:        hot,
		embedder:   embedder,
		extractor:  extractor,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		ownerLocks: make(map[string]*sync.Mutex),
	}
}

// ownerLock returns the classification mutex for an owner.
func (e *Engine) ownerLock(ownerID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.ownerLocks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		e.ownerLocks[ownerID] = l
	}
	return l
}

// WarmHotIndex rebuilds the in-memory hot index from the store. Called once
// at startup; the hot tier is index membership only, so it can always be
// reconstructed from the tier flags.
func (e *Engine) WarmHotIndex(ctx context.Context) (int, error) {
	owners, err := e.db.ListOwners()
	if err != nil {
		return 0, err
	}

	warmed := 0
	for _, owner := range owners {
		memories, err := e.db.ListMemoriesByTier(owner, store.TierHot)
		if err != nil {
			return warmed, err
		}
		for i := range memories {
			if err := e.hot.Add(ctx, owner, memories[i].ID, memories[i].Embedding); err != nil {
				log.Warn().Err(err).Str("memory_id", memories[i].ID).Msg("warm hot index: skipping memory")
				continue
			}
			warmed++
		}
	}
	return warmed, nil
}

// StartRebalancer runs a tier rebalance immediately and then on a fixed
// interval until Stop is called.
func (e *Engine) StartRebalancer() {
	if promoted, demoted, err := e.Rebalance(context.Background()); err != nil {
		log.Error().Err(err).Msg("rebalance error")
	} else if promoted+demoted > 0 {
		log.Info().Int("promoted", promoted).Int("demoted", demoted).Msg("rebalanced tiers")
	}

	go func() {
		ticker := time.NewTicker(e.cfg.RebalanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if promoted, demoted, err := e.Rebalance(context.Background()); err != nil {
					log.Error().Err(err).Msg("rebalance error")
				} else if promoted+demoted > 0 {
					log.Info().Int("promoted", promoted).Int("demoted", demoted).Msg("rebalanced tiers")
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}
