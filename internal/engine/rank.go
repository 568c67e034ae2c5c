package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mnemo-sh/mnemo/internal/embed"
	"github.com/mnemo-sh/mnemo/internal/extract"
	"github.com/mnemo-sh/mnemo/internal/store"
)

// SearchOpts tunes a single search. Zero values mean "use defaults".
type SearchOpts struct {
	// Limit caps the number of results. Defaults to 10.
	Limit int
	// OnlyLatest drops superseded memories from the results.
	OnlyLatest bool
	// SemanticWeight overrides the configured blend between similarity and
	// keyword score. Must be in [0,1]; 0 keeps the configured default.
	SemanticWeight float64
	// EntityCategory and Entity restrict results to memories that mention
	// the given entity. Category alone matches any entity of that category.
	EntityCategory string
	Entity         string
	// Keywords keeps only memories whose keyword list contains every entry,
	// compared case-insensitively.
	Keywords []string
}

// ScoredMemory is one ranked search result.
type ScoredMemory struct {
	Memory       store.Memory
	Score        float64
	Similarity   float64
	KeywordScore float64
	Explanation  string
	RelatedIDs   []string
}

// Search runs ranked retrieval for an owner: hot index first, cold scan when
// the hot tier cannot fill the candidate pool, then blended scoring with
// recency decay. Results are recorded as accesses, which can promote cold
// memories into the hot tier.
func (e *Engine) Search(ctx context.Context, ownerID, query string, opts SearchOpts) ([]ScoredMemory, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	weight := e.cfg.SemanticWeight
	if opts.SemanticWeight > 0 {
		weight = opts.SemanticWeight
	}
	if weight > 1 {
		return nil, fmt.Errorf("%w: semantic weight must be in [0,1]", ErrValidation)
	}

	queryVec, err := e.embedWithRetry(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var queryKeywords []string
	if extraction, err := e.extractor.Extract(ctx, query); err == nil {
		queryKeywords = extraction.Keywords
	}

	poolSize := opts.Limit * e.cfg.SearchMultiplier
	pool, err := e.candidatePool(ctx, ownerID, queryVec, poolSize)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := e.scoreCandidates(pool, opts, weight, queryKeywords, now)

	// Filters can strip the whole pool: a hot tier full of superseded rows
	// starves an only-latest query while matching rows sit in cold storage.
	// Top up from a full cold scan before giving up on the limit.
	if len(results) < opts.Limit {
		seen := make(map[string]bool, len(pool))
		for i := range pool {
			seen[pool[i].memory.ID] = true
		}
		extra, err := e.coldCandidates(ownerID, queryVec, seen, 0)
		if err != nil {
			return nil, err
		}
		results = append(results, e.scoreCandidates(extra, opts, weight, queryKeywords, now)...)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt > results[j].Memory.CreatedAt
	})
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	for i := range results {
		if err := e.OnAccess(ctx, &results[i].Memory); err != nil {
			log.Warn().Err(err).Str("memory", results[i].Memory.ID).Msg("access bookkeeping failed")
		}
		rels, err := e.db.RelationshipsFor(results[i].Memory.ID, "both")
		if err != nil {
			log.Warn().Err(err).Str("memory", results[i].Memory.ID).Msg("load relationships failed")
			continue
		}
		for _, r := range rels {
			other := r.ToID
			if other == results[i].Memory.ID {
				other = r.FromID
			}
			results[i].RelatedIDs = append(results[i].RelatedIDs, other)
		}
	}
	return results, nil
}

// candidatePool collects up to poolSize similarity-scored candidates. The
// hot index answers first; the cold tier is scanned only when the hot tier
// cannot fill the pool. Memories whose stored vector does not match the
// query dimensionality are skipped and logged rather than failing the search.
func (e *Engine) candidatePool(ctx context.Context, ownerID string, queryVec []float64, poolSize int) ([]candidate, error) {
	seen := make(map[string]bool)
	var pool []candidate

	hits, err := e.hot.Query(ctx, ownerID, queryVec, poolSize)
	if err != nil {
		return nil, fmt.Errorf("hot query: %w", err)
	}
	if len(hits) > 0 {
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.MemoryID
		}
		memories, err := e.db.ListMemoriesByIDs(ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]store.Memory, len(memories))
		for _, m := range memories {
			byID[m.ID] = m
		}
		for _, h := range hits {
			m, ok := byID[h.MemoryID]
			if !ok {
				continue // index ahead of store; drop the ghost hit
			}
			seen[m.ID] = true
			pool = append(pool, candidate{memory: m, sim: h.Similarity})
		}
	}

	if len(pool) >= poolSize {
		return pool, nil
	}

	coldScored, err := e.coldCandidates(ownerID, queryVec, seen, poolSize-len(pool))
	if err != nil {
		return nil, err
	}
	return append(pool, coldScored...), nil
}

// coldCandidates brute-force scores the owner's cold tier against the query
// vector, skipping already-pooled IDs. max <= 0 means no cap.
func (e *Engine) coldCandidates(ownerID string, queryVec []float64, seen map[string]bool, max int) ([]candidate, error) {
	cold, err := e.db.ListMemoriesByTier(ownerID, store.TierCold)
	if err != nil {
		return nil, err
	}
	var scored []candidate
	for _, m := range cold {
		if seen[m.ID] {
			continue
		}
		if len(m.Embedding) != len(queryVec) {
			log.Warn().Str("memory", m.ID).
				Int("have", len(m.Embedding)).Int("want", len(queryVec)).
				Msg("skipping memory with mismatched embedding")
			continue
		}
		scored = append(scored, candidate{memory: m, sim: embed.CosineSimilarity(queryVec, m.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].sim > scored[j].sim })
	if max > 0 && len(scored) > max {
		scored = scored[:max]
	}
	return scored, nil
}

// scoreCandidates applies the result filters and the blended-score formula
// with recency decay to a candidate slice.
func (e *Engine) scoreCandidates(pool []candidate, opts SearchOpts, weight float64, queryKeywords []string, now time.Time) []ScoredMemory {
	results := make([]ScoredMemory, 0, len(pool))
	for i := range pool {
		m := &pool[i].memory
		if opts.OnlyLatest && !m.IsLatest {
			continue
		}
		if !matchesEntity(m, opts.EntityCategory, opts.Entity) {
			continue
		}
		if !matchesKeywords(m, opts.Keywords) {
			continue
		}

		kwScore, _ := extract.KeywordOverlap(queryKeywords, m.Keywords)
		blended := weight*pool[i].sim + (1-weight)*kwScore
		ageDays := m.Age(now).Hours() / 24
		decay := math.Exp(-ageDays / e.cfg.HalfLifeDays)
		final := blended * decay

		results = append(results, ScoredMemory{
			Memory:       *m,
			Score:        final,
			Similarity:   pool[i].sim,
			KeywordScore: kwScore,
			Explanation: fmt.Sprintf("similarity %.2f, keywords %.2f, recency factor %.2f",
				pool[i].sim, kwScore, decay),
		})
	}
	return results
}

func matchesKeywords(m *store.Memory, required []string) bool {
	for _, want := range required {
		found := false
		for _, kw := range m.Keywords {
			if strings.EqualFold(kw, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func matchesEntity(m *store.Memory, category, entity string) bool {
	if category == "" && entity == "" {
		return true
	}
	match := func(values []string) bool {
		if entity == "" {
			return len(values) > 0
		}
		for _, v := range values {
			if strings.EqualFold(v, entity) {
				return true
			}
		}
		return false
	}
	if category != "" {
		return match(m.Entities[category])
	}
	for _, values := range m.Entities {
		if match(values) {
			return true
		}
	}
	return false
}

// Timeline returns an owner's memories mentioning a topic in chronological
// order, oldest first, so a reader can follow how a fact evolved.
func (e *Engine) Timeline(ctx context.Context, ownerID, topic string) ([]store.Memory, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrValidation)
	}

	memories, err := e.db.ListMemoriesByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(topic)
	var matched []store.Memory
	for _, m := range memories {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if memoryMentions(&m, needle) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt < matched[j].CreatedAt
	})
	return matched, nil
}

func memoryMentions(m *store.Memory, needle string) bool {
	if strings.Contains(strings.ToLower(m.Content), needle) {
		return true
	}
	for _, kw := range m.Keywords {
		if strings.ToLower(kw) == needle {
			return true
		}
	}
	return false
}
