package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-sh/mnemo/internal/store"
)

// GetMemory returns one memory by ID and records the access.
func (e *Engine) GetMemory(ctx context.Context, id string) (*store.Memory, error) {
	m, err := e.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	if err := e.OnAccess(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RelatedMemory is one node found by graph traversal, with the path depth
// and the edge that led to it.
type RelatedMemory struct {
	Memory store.Memory
	Depth  int
	Via    store.Relationship
}

// GetRelated walks the relationship graph outward from a memory, following
// edges in both directions, breadth-first up to maxDepth hops. The starting
// memory itself is not included.
func (e *Engine) GetRelated(ctx context.Context, id string, maxDepth int) ([]RelatedMemory, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}

	start, err := e.db.GetMemory(id)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, ErrNotFound
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var related []RelatedMemory

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		edges, err := e.db.RelationshipsForMany(frontier)
		if err != nil {
			return nil, err
		}

		var next []string
		for _, edge := range edges {
			for _, neighbor := range []string{edge.FromID, edge.ToID} {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				m, err := e.db.GetMemory(neighbor)
				if err != nil {
					return nil, err
				}
				if m == nil {
					continue
				}
				related = append(related, RelatedMemory{Memory: *m, Depth: depth, Via: edge})
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return related, nil
}

// GraphNode is one memory rendered for graph export.
type GraphNode struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Tier        string   `json:"tier"`
	IsLatest    bool     `json:"is_latest"`
	AccessCount int      `json:"access_count"`
	Keywords    []string `json:"keywords,omitempty"`
	CreatedAt   int64    `json:"created_at"`
}

// GraphEdge is one relationship rendered for graph export.
type GraphEdge struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Graph is a full export of one owner's knowledge graph.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Stats GraphStats  `json:"stats"`
}

// GraphStats summarizes one owner's graph.
type GraphStats struct {
	Memories      int            `json:"memories"`
	Relationships int            `json:"relationships"`
	ByKind        map[string]int `json:"by_kind"`
	HotTier       int            `json:"hot_tier"`
	ColdTier      int            `json:"cold_tier"`
}

// ExportGraph returns an owner's complete graph: every memory as a node
// with a truncated content label, every relationship as an edge.
func (e *Engine) ExportGraph(ctx context.Context, ownerID string) (*Graph, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	memories, err := e.db.ListMemoriesByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	edges, err := e.db.ListRelationshipsByOwner(ownerID)
	if err != nil {
		return nil, err
	}

	graph := &Graph{
		Nodes: make([]GraphNode, 0, len(memories)),
		Edges: make([]GraphEdge, 0, len(edges)),
	}
	for _, m := range memories {
		graph.Nodes = append(graph.Nodes, GraphNode{
			ID:          m.ID,
			Label:       truncate(m.Content, 100),
			Tier:        m.Tier,
			IsLatest:    m.IsLatest,
			AccessCount: m.AccessCount,
			Keywords:    m.Keywords,
			CreatedAt:   m.CreatedAt,
		})
	}
	for _, r := range edges {
		graph.Edges = append(graph.Edges, GraphEdge{
			From:       r.FromID,
			To:         r.ToID,
			Kind:       r.Kind,
			Confidence: r.Confidence,
			Reason:     r.Reason,
		})
	}

	stats, err := e.Stats(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	graph.Stats = *stats
	return graph, nil
}

// Stats computes summary counts for one owner's graph.
func (e *Engine) Stats(ctx context.Context, ownerID string) (*GraphStats, error) {
	memories, err := e.db.ListMemoriesByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	byKind, err := e.db.CountRelationshipsByKind(ownerID)
	if err != nil {
		return nil, err
	}

	stats := &GraphStats{ByKind: byKind}
	stats.Memories = len(memories)
	for _, n := range byKind {
		stats.Relationships += n
	}
	for _, m := range memories {
		if m.Tier == store.TierHot {
			stats.HotTier++
		} else {
			stats.ColdTier++
		}
	}
	return stats, nil
}

// ClearOwner removes everything an owner has: memories, relationships,
// documents, and the owner's hot index collection. Returns the number of
// memories removed.
func (e *Engine) ClearOwner(ctx context.Context, ownerID string) (int, error) {
	if strings.TrimSpace(ownerID) == "" {
		return 0, fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	lock := e.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	removed, err := e.db.DeleteOwner(ownerID)
	if err != nil {
		return 0, err
	}
	if err := e.hot.DropOwner(ownerID); err != nil {
		return removed, err
	}
	return removed, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
