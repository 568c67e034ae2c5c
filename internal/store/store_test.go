package store

import (
	"errors"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testMemory(id, owner string) *Memory {
	return &Memory{
		ID:        id,
		OwnerID:   owner,
		Content:   "content of " + id,
		Embedding: []float64{0.1, 0.2, 0.3},
		Keywords:  []string{"alpha", "beta"},
		Entities:  map[string][]string{"person": {"Alice"}},
		IsLatest:  true,
		Tier:      TierHot,
	}
}

func TestMigrations(t *testing.T) {
	db := testDB(t)

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	// Opening twice over the same schema must be a no-op
	if err := db.migrate(); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
}

func TestCreateGetMemory(t *testing.T) {
	db := testDB(t)

	m := testMemory("m1", "alice")
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("version = %d, want 1", m.Version)
	}

	got, err := db.GetMemory("m1")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got == nil {
		t.Fatal("GetMemory returned nil")
	}
	if got.Content != m.Content {
		t.Errorf("content = %q, want %q", got.Content, m.Content)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Errorf("embedding = %v, want %v", got.Embedding, m.Embedding)
	}
	if len(got.Keywords) != 2 || got.Keywords[0] != "alpha" {
		t.Errorf("keywords = %v, want %v", got.Keywords, m.Keywords)
	}
	if got.Entities["person"][0] != "Alice" {
		t.Errorf("entities = %v, want %v", got.Entities, m.Entities)
	}
	if !got.IsLatest {
		t.Error("is_latest = false, want true")
	}
	if got.Tier != TierHot {
		t.Errorf("tier = %q, want hot", got.Tier)
	}
	if got.LastAccessedAt != nil {
		t.Errorf("last_accessed_at = %v, want nil", *got.LastAccessedAt)
	}
}

func TestGetMemoryMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetMemory("nope")
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestTouchMemory(t *testing.T) {
	db := testDB(t)
	if err := db.CreateMemory(testMemory("m1", "alice")); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	for want := 1; want <= 3; want++ {
		count, err := db.TouchMemory("m1")
		if err != nil {
			t.Fatalf("TouchMemory: %v", err)
		}
		if count != want {
			t.Errorf("access count = %d, want %d", count, want)
		}
	}

	got, _ := db.GetMemory("m1")
	if got.LastAccessedAt == nil {
		t.Error("last_accessed_at not set after touch")
	}

	if _, err := db.TouchMemory("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TouchMemory missing = %v, want ErrNotFound", err)
	}
}

func TestMarkSuperseded(t *testing.T) {
	db := testDB(t)
	m := testMemory("m1", "alice")
	if err := db.CreateMemory(m); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	if err := db.MarkSuperseded("m1", m.Version); err != nil {
		t.Fatalf("MarkSuperseded: %v", err)
	}

	got, _ := db.GetMemory("m1")
	if got.IsLatest {
		t.Error("is_latest = true after supersede, want false")
	}
	if got.Version != m.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, m.Version+1)
	}

	// Stale version loses the race
	if err := db.MarkSuperseded("m1", m.Version); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("stale MarkSuperseded = %v, want ErrVersionConflict", err)
	}
	// Unknown ID is not found, not a conflict
	if err := db.MarkSuperseded("nope", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing MarkSuperseded = %v, want ErrNotFound", err)
	}
}

func TestListMemoriesByTierAndOwners(t *testing.T) {
	db := testDB(t)

	hot := testMemory("m1", "alice")
	cold := testMemory("m2", "alice")
	cold.Tier = TierCold
	other := testMemory("m3", "bob")
	for _, m := range []*Memory{hot, cold, other} {
		if err := db.CreateMemory(m); err != nil {
			t.Fatalf("CreateMemory %s: %v", m.ID, err)
		}
	}

	hots, err := db.ListMemoriesByTier("alice", TierHot)
	if err != nil {
		t.Fatalf("ListMemoriesByTier: %v", err)
	}
	if len(hots) != 1 || hots[0].ID != "m1" {
		t.Errorf("hot memories = %v, want [m1]", hots)
	}

	owners, err := db.ListOwners()
	if err != nil {
		t.Fatalf("ListOwners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "alice" || owners[1] != "bob" {
		t.Errorf("owners = %v, want [alice bob]", owners)
	}
}

func TestUpdateTier(t *testing.T) {
	db := testDB(t)
	if err := db.CreateMemory(testMemory("m1", "alice")); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}

	if err := db.UpdateTier("m1", TierCold); err != nil {
		t.Fatalf("UpdateTier: %v", err)
	}
	got, _ := db.GetMemory("m1")
	if got.Tier != TierCold {
		t.Errorf("tier = %q, want cold", got.Tier)
	}
}

func TestRelationshipDedup(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"m1", "m2"} {
		if err := db.CreateMemory(testMemory(id, "alice")); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}

	rel := Relationship{ID: "r1", OwnerID: "alice", FromID: "m1", ToID: "m2",
		Kind: KindExtends, Confidence: 0.8, Reason: "test"}
	if err := db.CreateRelationship(&rel); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}

	// Same (from, to, kind) again is a silent no-op
	dup := rel
	dup.ID = "r2"
	if err := db.CreateRelationship(&dup); err != nil {
		t.Fatalf("duplicate CreateRelationship: %v", err)
	}

	rels, err := db.ListRelationshipsByOwner("alice")
	if err != nil {
		t.Fatalf("ListRelationshipsByOwner: %v", err)
	}
	if len(rels) != 1 {
		t.Errorf("relationships = %d, want 1", len(rels))
	}

	counts, err := db.CountRelationshipsByKind("alice")
	if err != nil {
		t.Fatalf("CountRelationshipsByKind: %v", err)
	}
	if counts[KindExtends] != 1 || counts[KindUpdates] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestRelationshipsForDirections(t *testing.T) {
	db := testDB(t)
	for _, id := range []string{"m1", "m2", "m3"} {
		if err := db.CreateMemory(testMemory(id, "alice")); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}
	edges := []Relationship{
		{ID: "r1", OwnerID: "alice", FromID: "m2", ToID: "m1", Kind: KindUpdates},
		{ID: "r2", OwnerID: "alice", FromID: "m1", ToID: "m3", Kind: KindSimilar},
	}
	for i := range edges {
		if err := db.CreateRelationship(&edges[i]); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}
	}

	out, err := db.RelationshipsFor("m1", "outgoing")
	if err != nil {
		t.Fatalf("RelationshipsFor: %v", err)
	}
	if len(out) != 1 || out[0].ID != "r2" {
		t.Errorf("outgoing = %v, want [r2]", out)
	}

	in, _ := db.RelationshipsFor("m1", "incoming")
	if len(in) != 1 || in[0].ID != "r1" {
		t.Errorf("incoming = %v, want [r1]", in)
	}

	both, _ := db.RelationshipsFor("m1", "both")
	if len(both) != 2 {
		t.Errorf("both = %d edges, want 2", len(both))
	}
}

func TestDocumentLifecycle(t *testing.T) {
	db := testDB(t)

	doc := &Document{ID: "d1", OwnerID: "alice", Title: "notes", RawContent: "text"}
	if err := db.CreateDocument(doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if doc.Status != StatusQueued {
		t.Errorf("status = %q, want queued", doc.Status)
	}

	for _, status := range []string{StatusChunking, StatusExtracting, StatusEmbedding, StatusIndexing} {
		if err := db.SetDocumentStatus("d1", status); err != nil {
			t.Fatalf("SetDocumentStatus %s: %v", status, err)
		}
	}
	if err := db.FinishDocument("d1", ""); err != nil {
		t.Fatalf("FinishDocument: %v", err)
	}

	got, err := db.GetDocument("d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Status != StatusDone {
		t.Errorf("status = %q, want done", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Error("processed_at not set")
	}
}

func TestDocumentFailure(t *testing.T) {
	db := testDB(t)

	doc := &Document{ID: "d1", OwnerID: "alice"}
	if err := db.CreateDocument(doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	if err := db.FinishDocument("d1", "embedder exploded"); err != nil {
		t.Fatalf("FinishDocument: %v", err)
	}

	got, _ := db.GetDocument("d1")
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error != "embedder exploded" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestDeleteOwner(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"m1", "m2"} {
		if err := db.CreateMemory(testMemory(id, "alice")); err != nil {
			t.Fatalf("CreateMemory: %v", err)
		}
	}
	if err := db.CreateMemory(testMemory("m3", "bob")); err != nil {
		t.Fatalf("CreateMemory: %v", err)
	}
	rel := Relationship{ID: "r1", OwnerID: "alice", FromID: "m1", ToID: "m2", Kind: KindSimilar}
	if err := db.CreateRelationship(&rel); err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}
	if err := db.CreateDocument(&Document{ID: "d1", OwnerID: "alice"}); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	removed, err := db.DeleteOwner("alice")
	if err != nil {
		t.Fatalf("DeleteOwner: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	if n, _ := db.CountMemories("alice"); n != 0 {
		t.Errorf("alice memories = %d, want 0", n)
	}
	if n, _ := db.CountMemories("bob"); n != 1 {
		t.Errorf("bob memories = %d, want 1", n)
	}
	rels, _ := db.ListRelationshipsByOwner("alice")
	if len(rels) != 0 {
		t.Errorf("alice relationships = %d, want 0", len(rels))
	}
	doc, _ := db.GetDocument("d1")
	if doc != nil {
		t.Error("alice document survived delete")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	vec := []float64{0.0, -1.5, 3.14159, 1e-9}
	got := decodeEmbedding(encodeEmbedding(vec))
	if len(got) != len(vec) {
		t.Fatalf("length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestMemoryAge(t *testing.T) {
	now := time.Now()
	m := &Memory{CreatedAt: now.Add(-48 * time.Hour).UnixMilli()}
	age := m.Age(now)
	if age < 47*time.Hour || age > 49*time.Hour {
		t.Errorf("age = %v, want ~48h", age)
	}
}
