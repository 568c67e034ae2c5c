// Package index provides the hot-tier vector index: an embedded chromem-go
// database with one in-memory collection per owner. Membership in a
// collection is what makes a memory "hot" for search; the durable record
// always lives in the SQLite store.
package index

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Hit is one hot-tier query result.
type Hit struct {
	MemoryID   string
	Similarity float64
}

// Hot is the hot-tier vector index. All methods are safe for concurrent use;
// the per-owner collection map is the only shared state guarded here, so
// search never blocks on another owner's writes.
type Hot struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewHot creates an empty hot index.
func NewHot() *Hot {
	return &Hot{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// collection returns the owner's collection, creating it if needed.
func (h *Hot) collection(ownerID string) (*chromem.Collection, error) {
	h.mu.RLock()
	col, ok := h.collections[ownerID]
	h.mu.RUnlock()
	if ok {
		return col, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if col, ok := h.collections[ownerID]; ok {
		return col, nil
	}

	col, err := h.db.CreateCollection(collectionName(ownerID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create hot collection: %w", err)
	}
	h.collections[ownerID] = col
	return col, nil
}

// Add inserts a memory's embedding into the owner's hot collection.
func (h *Hot) Add(ctx context.Context, ownerID, memoryID string, embedding []float64) error {
	col, err := h.collection(ownerID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        memoryID,
		Embedding: toFloat32(embedding),
		Metadata:  map[string]string{"owner_id": ownerID},
		// chromem requires non-empty content even when we never read it back
		Content: memoryID,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("hot index add: %w", err)
	}
	return nil
}

// Remove deletes a memory from the owner's hot collection. Removing an
// absent ID is a no-op.
func (h *Hot) Remove(ctx context.Context, ownerID, memoryID string) error {
	h.mu.RLock()
	col, ok := h.collections[ownerID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	if err := col.Delete(ctx, nil, nil, memoryID); err != nil {
		return fmt.Errorf("hot index remove: %w", err)
	}
	return nil
}

// Query returns up to limit nearest memories by cosine similarity.
func (h *Hot) Query(ctx context.Context, ownerID string, embedding []float64, limit int) ([]Hit, error) {
	h.mu.RLock()
	col, ok := h.collections[ownerID]
	h.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	// chromem rejects nResults above the collection size
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, toFloat32(embedding), limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("hot index query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{MemoryID: r.ID, Similarity: float64(r.Similarity)}
	}
	return hits, nil
}

// Count returns the number of hot memories for an owner.
func (h *Hot) Count(ownerID string) int {
	h.mu.RLock()
	col, ok := h.collections[ownerID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return col.Count()
}

// DropOwner discards an owner's entire hot collection.
func (h *Hot) DropOwner(ownerID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.collections[ownerID]; !ok {
		return nil
	}

	if err := h.db.DeleteCollection(collectionName(ownerID)); err != nil {
		return fmt.Errorf("drop hot collection: %w", err)
	}
	delete(h.collections, ownerID)
	return nil
}

func collectionName(ownerID string) string {
	if ownerID == "" {
		return "global"
	}
	return "owner_" + ownerID
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
