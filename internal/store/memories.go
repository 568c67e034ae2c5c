package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Memory tiers. Tier is index membership, not a separate copy of the record.
const (
	TierHot  = "hot"
	TierCold = "cold"
)

// Memory is a stored, embedded, searchable unit of text.
type Memory struct {
	ID             string
	OwnerID        string
	Content        string
	Embedding      []float64
	Keywords       []string
	Entities       map[string][]string
	IsLatest       bool
	Tier           string
	AccessCount    int
	LastAccessedAt *int64
	SourceDocument string
	ChunkIndex     int
	Version        int64
	CreatedAt      int64 // unix millis
}

// Age returns how old the memory is relative to now.
func (m *Memory) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(m.CreatedAt))
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

const memoryColumns = `id, owner_id, content, embedding, dimensions, keywords, entities,
	is_latest, tier, access_count, last_accessed_at, source_document, chunk_index, version, created_at`

// CreateMemory inserts a new memory record. The embedding is stored in the
// same row, so a memory is never visible without its vector.
func (db *DB) CreateMemory(m *Memory) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.Tier == "" {
		m.Tier = TierHot
	}

	keywords, err := json.Marshal(m.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	entities, err := json.Marshal(m.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
	`, m.ID, m.OwnerID, m.Content, encodeEmbedding(m.Embedding), len(m.Embedding),
		string(keywords), string(entities),
		boolToInt(m.IsLatest), m.Tier, m.AccessCount, m.LastAccessedAt,
		m.SourceDocument, m.ChunkIndex, 1, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	m.Version = 1
	return nil
}

// GetMemory returns a memory by ID, or nil if not found.
func (db *DB) GetMemory(id string) (*Memory, error) {
	row := db.QueryRow(`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

// ListMemoriesByOwner returns all memories for an owner, newest first.
func (db *DB) ListMemoriesByOwner(ownerID string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE owner_id = ? ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListMemoriesByTier returns all memories for an owner in the given tier.
func (db *DB) ListMemoriesByTier(ownerID, tier string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE owner_id = ? AND tier = ? ORDER BY created_at DESC
	`, ownerID, tier)
	if err != nil {
		return nil, fmt.Errorf("list memories by tier: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// MemoriesByDocument returns the memories produced by a document, in chunk order.
func (db *DB) MemoriesByDocument(documentID string) ([]Memory, error) {
	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories
		WHERE source_document = ? ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("memories by document: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ListMemoriesByIDs returns the memories for the given IDs, in no
// particular order. Unknown IDs are silently absent from the result.
func (db *DB) ListMemoriesByIDs(ids []string) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ph := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			ph = append(ph, ',')
		}
		ph = append(ph, '?')
		args[i] = id
	}

	rows, err := db.Query(`
		SELECT `+memoryColumns+` FROM memories WHERE id IN (`+string(ph)+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories by ids: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// TouchMemory increments access_count and sets last_accessed_at.
// Returns the new access count.
func (db *DB) TouchMemory(id string) (int, error) {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, now, id)
	if err != nil {
		return 0, fmt.Errorf("touch memory: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT access_count FROM memories WHERE id = ?", id).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("read access count: %w", err)
	}
	return count, nil
}

// MarkSuperseded clears is_latest on a memory, guarded by an optimistic
// version check so concurrent classifiers serialize the read-modify-write.
func (db *DB) MarkSuperseded(id string, expectedVersion int64) error {
	result, err := db.Exec(`
		UPDATE memories SET is_latest = 0, version = version + 1
		WHERE id = ? AND version = ?
	`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark superseded rows: %w", err)
	}
	if affected == 0 {
		existing, err := db.GetMemory(id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// UpdateTier sets the tier flag on a memory.
func (db *DB) UpdateTier(id, tier string) error {
	_, err := db.Exec("UPDATE memories SET tier = ? WHERE id = ?", tier, id)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	return nil
}

// ListOwners returns the distinct owner IDs that have memories.
func (db *DB) ListOwners() ([]string, error) {
	rows, err := db.Query("SELECT DISTINCT owner_id FROM memories ORDER BY owner_id")
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// CountMemories returns the number of memories for an owner.
func (db *DB) CountMemories(ownerID string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM memories WHERE owner_id = ?", ownerID).Scan(&count)
	return count, err
}

// DeleteOwner removes all memories, relationships, and documents for an owner.
// Returns the number of memories removed.
func (db *DB) DeleteOwner(ownerID string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin delete owner: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM relationships WHERE owner_id = ?", ownerID); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("delete relationships: %w", err)
	}

	result, err := tx.Exec("DELETE FROM memories WHERE owner_id = ?", ownerID)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	removed, _ := result.RowsAffected()

	if _, err := tx.Exec("DELETE FROM documents WHERE owner_id = ?", ownerID); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("delete documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete owner: %w", err)
	}
	return int(removed), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var m Memory
	var blob []byte
	var dims, isLatest int
	var keywords, entities string
	var lastAccessed sql.NullInt64
	var sourceDoc sql.NullString

	err := row.Scan(&m.ID, &m.OwnerID, &m.Content, &blob, &dims, &keywords, &entities,
		&isLatest, &m.Tier, &m.AccessCount, &lastAccessed, &sourceDoc, &m.ChunkIndex,
		&m.Version, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.Embedding = decodeEmbedding(blob)
	m.IsLatest = isLatest != 0
	if lastAccessed.Valid {
		m.LastAccessedAt = &lastAccessed.Int64
	}
	m.SourceDocument = sourceDoc.String

	if err := json.Unmarshal([]byte(keywords), &m.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(entities), &m.Entities); err != nil {
		return nil, fmt.Errorf("unmarshal entities: %w", err)
	}
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	var memories []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	return memories, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
