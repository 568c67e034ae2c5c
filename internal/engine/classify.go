package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mnemo-sh/mnemo/internal/embed"
	"github.com/mnemo-sh/mnemo/internal/extract"
	"github.com/mnemo-sh/mnemo/internal/store"
)

// Signals are the classifier inputs for one (new, candidate) memory pair.
// They are plain data so the decision policy is testable without embeddings.
type Signals struct {
	Similarity     float64
	KeywordOverlap float64
	SharedKeywords int
	Contradiction  bool
}

// Thresholds is the classification policy. Values come from configuration.
type Thresholds struct {
	Update            float64
	Extend            float64
	Overlap           float64
	SimilarFloor      float64
	MinSharedKeywords int
}

// Decision is a classified relationship kind with its confidence.
type Decision struct {
	Kind       string
	Confidence float64
	Reason     string
}

// Decide evaluates the prioritized rule list for one candidate pair.
// First match wins: updates, extends, derives, similar, none (ok=false).
func Decide(s Signals, t Thresholds) (Decision, bool) {
	switch {
	case s.Similarity >= t.Update && s.Contradiction:
		return Decision{
			Kind:       store.KindUpdates,
			Confidence: s.Similarity,
			Reason:     fmt.Sprintf("new information supersedes existing (similarity %.2f)", s.Similarity),
		}, true
	case s.Similarity >= t.Extend:
		return Decision{
			Kind:       store.KindExtends,
			Confidence: s.Similarity,
			Reason:     fmt.Sprintf("additional context for related topic (similarity %.2f)", s.Similarity),
		}, true
	case s.KeywordOverlap >= t.Overlap && s.SharedKeywords >= t.MinSharedKeywords:
		return Decision{
			Kind:       store.KindDerives,
			Confidence: s.KeywordOverlap,
			Reason:     fmt.Sprintf("%d shared keywords (overlap %.2f)", s.SharedKeywords, s.KeywordOverlap),
		}, true
	case s.Similarity >= t.SimilarFloor:
		return Decision{
			Kind:       store.KindSimilar,
			Confidence: s.Similarity,
			Reason:     fmt.Sprintf("related content (similarity %.2f)", s.Similarity),
		}, true
	default:
		return Decision{}, false
	}
}

// Supersession cue words: their presence in new text alongside shared
// keywords suggests the new memory replaces the old one.
var supersessionCues = []string{
	"now", "updated", "changed", "instead", "no longer",
	"switched", "currently", "revised", "modified",
}

var numberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// contradictionSignal reports whether newText appears to supersede oldText.
// It requires shared vocabulary between the two texts: a supersession cue
// about an unrelated topic is not a contradiction.
func contradictionSignal(newText, oldText string, sharedKeywords int) bool {
	if sharedKeywords == 0 {
		return false
	}

	lower := strings.ToLower(newText)
	for _, cue := range supersessionCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}

	// Comparable numeric facts that differ also signal an update.
	newNums := numberSet(newText)
	oldNums := numberSet(oldText)
	if len(newNums) > 0 && len(oldNums) > 0 && !sameSet(newNums, oldNums) {
		return true
	}
	return false
}

func numberSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, n := range numberRe.FindAllString(text, -1) {
		set[n] = true
	}
	return set
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func (e *Engine) thresholds() Thresholds {
	return Thresholds{
		Update:            e.cfg.UpdateThreshold,
		Extend:            e.cfg.ExtendThreshold,
		Overlap:           e.cfg.OverlapThreshold,
		SimilarFloor:      e.cfg.SimilarFloor,
		MinSharedKeywords: e.cfg.MinSharedKeywords,
	}
}

// candidate pairs a stored memory with its similarity to the new memory.
type candidate struct {
	memory store.Memory
	sim    float64
}

// nearestCandidates returns the K nearest same-owner memories above the
// similarity floor, excluding the new memory itself and its document
// siblings (chunks of one document trivially resemble each other).
func (e *Engine) nearestCandidates(m *store.Memory) ([]candidate, error) {
	existing, err := e.db.ListMemoriesByOwner(m.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	var candidates []candidate
	for i := range existing {
		c := existing[i]
		if c.ID == m.ID {
			continue
		}
		if c.SourceDocument != "" && c.SourceDocument == m.SourceDocument {
			continue
		}

		sim := embed.CosineSimilarity(m.Embedding, c.Embedding)
		if sim < e.cfg.SimilarFloor {
			continue
		}
		candidates = append(candidates, candidate{memory: c, sim: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].sim > candidates[j].sim
	})
	if len(candidates) > e.cfg.CandidateK {
		candidates = candidates[:e.cfg.CandidateK]
	}
	return candidates, nil
}

// classify links a newly stored memory to its nearest neighbors. Each
// candidate is evaluated independently; one new memory may acquire edges of
// different kinds to different candidates. Runs under the owner's
// classification lock so concurrent ingestions serialize is_latest writes.
func (e *Engine) classify(ctx context.Context, m *store.Memory) ([]store.Relationship, error) {
	lock := e.ownerLock(m.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	candidates, err := e.nearestCandidates(m)
	if err != nil {
		return nil, err
	}

	var created []store.Relationship
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		overlap, shared := extract.KeywordOverlap(m.Keywords, c.memory.Keywords)
		signals := Signals{
			Similarity:     c.sim,
			KeywordOverlap: overlap,
			SharedKeywords: len(shared),
			Contradiction:  contradictionSignal(m.Content, c.memory.Content, len(shared)),
		}

		decision, ok := Decide(signals, e.thresholds())
		if !ok {
			continue
		}

		rel := store.Relationship{
			ID:         uuid.NewString(),
			OwnerID:    m.OwnerID,
			FromID:     m.ID,
			ToID:       c.memory.ID,
			Kind:       decision.Kind,
			Confidence: decision.Confidence,
			Reason:     decision.Reason,
		}
		if err := e.db.CreateRelationship(&rel); err != nil {
			return created, err
		}

		if decision.Kind == store.KindUpdates {
			if err := e.supersede(c.memory.ID, c.memory.Version); err != nil {
				return created, err
			}
		}

		created = append(created, rel)
		log.Debug().
			Str("from", rel.FromID).
			Str("to", rel.ToID).
			Str("kind", rel.Kind).
			Float64("confidence", rel.Confidence).
			Msg("created relationship")
	}
	return created, nil
}

// supersede clears is_latest on an updated memory. A version conflict means
// another writer touched the record between our read and write; re-read and
// retry once, then surface the conflict.
func (e *Engine) supersede(memoryID string, version int64) error {
	err := e.db.MarkSuperseded(memoryID, version)
	if !errors.Is(err, store.ErrVersionConflict) {
		return err
	}

	fresh, err := e.db.GetMemory(memoryID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return ErrNotFound
	}
	if !fresh.IsLatest {
		return nil // another updates edge already superseded it
	}
	return e.db.MarkSuperseded(memoryID, fresh.Version)
}
