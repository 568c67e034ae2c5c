package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: embedded, owner-scoped memory records",
		SQL: `
CREATE TABLE memories (
    id               TEXT PRIMARY KEY,
    owner_id         TEXT NOT NULL,
    content          TEXT NOT NULL,
    embedding        BLOB NOT NULL,
    dimensions       INTEGER NOT NULL,
    keywords         TEXT NOT NULL DEFAULT '[]',
    entities         TEXT NOT NULL DEFAULT '{}',
    is_latest        INTEGER NOT NULL DEFAULT 1,
    tier             TEXT NOT NULL DEFAULT 'hot' CHECK (tier IN ('hot', 'cold')),
    access_count     INTEGER NOT NULL DEFAULT 0,
    last_accessed_at INTEGER,
    source_document  TEXT,
    chunk_index      INTEGER NOT NULL DEFAULT 0,
    version          INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL
);

CREATE INDEX idx_memories_owner      ON memories(owner_id);
CREATE INDEX idx_memories_owner_tier ON memories(owner_id, tier);
CREATE INDEX idx_memories_document   ON memories(source_document);
CREATE INDEX idx_memories_created    ON memories(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "relationships: typed directed edges between memories",
		SQL: `
CREATE TABLE relationships (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    from_id    TEXT NOT NULL,
    to_id      TEXT NOT NULL,
    kind       TEXT NOT NULL CHECK (kind IN ('updates', 'extends', 'derives', 'similar')),
    confidence REAL NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,

    UNIQUE (from_id, to_id, kind),
    FOREIGN KEY (from_id) REFERENCES memories(id) ON DELETE CASCADE,
    FOREIGN KEY (to_id)   REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX idx_rel_owner ON relationships(owner_id);
CREATE INDEX idx_rel_from  ON relationships(from_id);
CREATE INDEX idx_rel_to    ON relationships(to_id);
`,
	},
	{
		Version:     3,
		Description: "documents: ingestion bookkeeping",
		SQL: `
CREATE TABLE documents (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL,
    title        TEXT NOT NULL DEFAULT '',
    raw_content  TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'queued' CHECK (status IN
                 ('queued', 'extracting', 'chunking', 'embedding', 'indexing', 'done', 'failed')),
    error        TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    processed_at INTEGER
);

CREATE INDEX idx_documents_owner   ON documents(owner_id);
CREATE INDEX idx_documents_created ON documents(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
