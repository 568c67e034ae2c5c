package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Relationship kinds, in classifier priority order.
const (
	KindUpdates = "updates"
	KindExtends = "extends"
	KindDerives = "derives"
	KindSimilar = "similar"
)

// Relationship is a typed, directed, confidence-scored edge between two
// memories. By convention from_id is the newer memory.
type Relationship struct {
	ID         string
	OwnerID    string
	FromID     string
	ToID       string
	Kind       string
	Confidence float64
	Reason     string
	CreatedAt  int64
}

// CreateRelationship inserts a relationship edge. The (from, to, kind)
// triple is unique; re-inserting an existing edge is a silent no-op.
func (db *DB) CreateRelationship(r *Relationship) error {
	now := time.Now().UnixMilli()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}

	_, err := db.Exec(`
		INSERT INTO relationships (id, owner_id, from_id, to_id, kind, confidence, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, kind) DO NOTHING
	`, r.ID, r.OwnerID, r.FromID, r.ToID, r.Kind, r.Confidence, r.Reason, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	return nil
}

// RelationshipsFor returns the edges touching a memory. Direction is
// "outgoing", "incoming", or "both".
func (db *DB) RelationshipsFor(memoryID, direction string) ([]Relationship, error) {
	var clause string
	var args []any
	switch direction {
	case "outgoing":
		clause = "from_id = ?"
		args = []any{memoryID}
	case "incoming":
		clause = "to_id = ?"
		args = []any{memoryID}
	default:
		clause = "from_id = ? OR to_id = ?"
		args = []any{memoryID, memoryID}
	}

	rows, err := db.Query(`
		SELECT id, owner_id, from_id, to_id, kind, confidence, reason, created_at
		FROM relationships WHERE `+clause+` ORDER BY created_at
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("relationships for %s: %w", memoryID, err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// RelationshipsForMany returns all edges touching any of the given memories.
func (db *DB) RelationshipsForMany(memoryIDs []string) ([]Relationship, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}

	ph := strings.TrimRight(strings.Repeat("?,", len(memoryIDs)), ",")
	args := make([]any, 0, len(memoryIDs)*2)
	for _, id := range memoryIDs {
		args = append(args, id)
	}
	for _, id := range memoryIDs {
		args = append(args, id)
	}

	rows, err := db.Query(`
		SELECT id, owner_id, from_id, to_id, kind, confidence, reason, created_at
		FROM relationships WHERE from_id IN (`+ph+`) OR to_id IN (`+ph+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("relationships for many: %w", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// ListRelationshipsByOwner returns every edge belonging to an owner.
func (db *DB) ListRelationshipsByOwner(ownerID string) ([]Relationship, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, from_id, to_id, kind, confidence, reason, created_at
		FROM relationships WHERE owner_id = ? ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// CountRelationshipsByKind returns per-kind edge counts for an owner.
func (db *DB) CountRelationshipsByKind(ownerID string) (map[string]int, error) {
	rows, err := db.Query(`
		SELECT kind, COUNT(*) FROM relationships WHERE owner_id = ? GROUP BY kind
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count relationships: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{
		KindUpdates: 0,
		KindExtends: 0,
		KindDerives: 0,
		KindSimilar: 0,
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan relationship count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func scanRelationships(rows *sql.Rows) ([]Relationship, error) {
	var rels []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.FromID, &r.ToID, &r.Kind,
			&r.Confidence, &r.Reason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
