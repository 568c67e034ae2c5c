package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Document statuses. Status advances monotonically; done and failed are terminal.
const (
	StatusQueued     = "queued"
	StatusExtracting = "extracting"
	StatusChunking   = "chunking"
	StatusEmbedding  = "embedding"
	StatusIndexing   = "indexing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Document is the ingestion bookkeeping record for one input text.
type Document struct {
	ID          string
	OwnerID     string
	Title       string
	RawContent  string
	Status      string
	Error       string
	CreatedAt   int64
	ProcessedAt *int64
}

// CreateDocument inserts a new document in the queued state.
func (db *DB) CreateDocument(d *Document) error {
	now := time.Now().UnixMilli()
	if d.CreatedAt == 0 {
		d.CreatedAt = now
	}
	if d.Status == "" {
		d.Status = StatusQueued
	}

	_, err := db.Exec(`
		INSERT INTO documents (id, owner_id, title, raw_content, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, '', ?)
	`, d.ID, d.OwnerID, d.Title, d.RawContent, d.Status, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetDocument returns a document by ID, or nil if not found.
func (db *DB) GetDocument(id string) (*Document, error) {
	var d Document
	var processedAt sql.NullInt64
	err := db.QueryRow(`
		SELECT id, owner_id, title, raw_content, status, error, created_at, processed_at
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.OwnerID, &d.Title, &d.RawContent, &d.Status, &d.Error,
		&d.CreatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if processedAt.Valid {
		d.ProcessedAt = &processedAt.Int64
	}
	return &d, nil
}

// SetDocumentStatus advances a document's pipeline stage.
func (db *DB) SetDocumentStatus(id, status string) error {
	_, err := db.Exec("UPDATE documents SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	return nil
}

// FinishDocument marks a document terminal: done on success, failed with a
// message otherwise.
func (db *DB) FinishDocument(id string, failure string) error {
	now := time.Now().UnixMilli()
	status := StatusDone
	if failure != "" {
		status = StatusFailed
	}
	_, err := db.Exec(`
		UPDATE documents SET status = ?, error = ?, processed_at = ? WHERE id = ?
	`, status, failure, now, id)
	if err != nil {
		return fmt.Errorf("finish document: %w", err)
	}
	return nil
}

// ListDocumentsByOwner returns an owner's documents, newest first.
func (db *DB) ListDocumentsByOwner(ownerID string) ([]Document, error) {
	rows, err := db.Query(`
		SELECT id, owner_id, title, raw_content, status, error, created_at, processed_at
		FROM documents WHERE owner_id = ? ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var processedAt sql.NullInt64
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.RawContent, &d.Status,
			&d.Error, &d.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if processedAt.Valid {
			d.ProcessedAt = &processedAt.Int64
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
