package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// tierFor returns the tier a memory should occupy at the given time:
// hot while recently created or frequently accessed, cold otherwise.
func (e *Engine) tierFor(m *store.Memory, now time.Time) string {
	age := now.Sub(time.UnixMilli(m.CreatedAt))
	if age <= time.Duration(e.cfg.HotAgeDays)*24*time.Hour {
		return store.TierHot
	}
	if m.AccessCount >= e.cfg.PromotionThreshold {
		return store.TierHot
	}
	return store.TierCold
}

// OnAccess records a read of a memory. Crossing the access-count threshold
// promotes a cold memory to the hot index immediately, so a run of repeated
// lookups gets fast retrieval without waiting for the next sweep. Demotion
// is never done here; only the sweep moves memories back to cold.
func (e *Engine) OnAccess(ctx context.Context, m *store.Memory) error {
	count, err := e.db.TouchMemory(m.ID)
	if err != nil {
		return err
	}
	m.AccessCount = count

	if m.Tier == store.TierCold && count >= e.cfg.PromotionThreshold {
		if err := e.promote(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) promote(ctx context.Context, m *store.Memory) error {
	if err := e.hot.Add(ctx, m.OwnerID, m.ID, m.Embedding); err != nil {
		return fmt.Errorf("promote %s: %w", m.ID, err)
	}
	if err := e.db.UpdateTier(m.ID, store.TierHot); err != nil {
		return fmt.Errorf("promote %s: %w", m.ID, err)
	}
	m.Tier = store.TierHot
	log.Debug().Str("memory", m.ID).Msg("promoted to hot tier")
	return nil
}

func (e *Engine) demote(ctx context.Context, m *store.Memory) error {
	if err := e.hot.Remove(ctx, m.OwnerID, m.ID); err != nil {
		return fmt.Errorf("demote %s: %w", m.ID, err)
	}
	if err := e.db.UpdateTier(m.ID, store.TierCold); err != nil {
		return fmt.Errorf("demote %s: %w", m.ID, err)
	}
	m.Tier = store.TierCold
	return nil
}

// Rebalance sweeps all memories once and moves each to the tier the policy
// says it belongs in. Returns the number promoted and demoted. Errors on
// individual memories are logged and skipped so one bad row cannot wedge
// the sweep.
func (e *Engine) Rebalance(ctx context.Context) (promoted, demoted int, err error) {
	now := time.Now()

	owners, err := e.db.ListOwners()
	if err != nil {
		return 0, 0, fmt.Errorf("rebalance: %w", err)
	}

	for _, owner := range owners {
		memories, listErr := e.db.ListMemoriesByOwner(owner)
		if listErr != nil {
			return promoted, demoted, fmt.Errorf("rebalance: %w", listErr)
		}
		for i := range memories {
			if err := ctx.Err(); err != nil {
				return promoted, demoted, err
			}
			m := &memories[i]
			want := e.tierFor(m, now)
			if want == m.Tier {
				if want == store.TierHot {
					// Add is an upsert; this restores index entries lost to
					// an earlier partial failure.
					if addErr := e.hot.Add(ctx, m.OwnerID, m.ID, m.Embedding); addErr != nil {
						log.Warn().Err(addErr).Str("memory", m.ID).Msg("hot index repair failed")
					}
				}
				continue
			}

			var moveErr error
			if want == store.TierHot {
				moveErr = e.promote(ctx, m)
			} else {
				moveErr = e.demote(ctx, m)
			}
			if moveErr != nil {
				log.Warn().Err(moveErr).Str("memory", m.ID).Msg("tier move failed")
				continue
			}
			if want == store.TierHot {
				promoted++
			} else {
				demoted++
			}
		}
	}
	return promoted, demoted, nil
}
