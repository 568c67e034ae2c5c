package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var decoded map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return w, decoded
}

// waitDone polls the document endpoint until ingestion settles.
func waitDone(t *testing.T, srv *Server, documentID string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		w, body := doJSON(t, srv, "GET", "/api/documents/"+documentID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("document status = %d", w.Code)
		}
		switch body["status"] {
		case "done", "failed":
			return body
		}
		if time.Now().After(deadline) {
			t.Fatalf("document stuck in %v", body["status"])
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ingestDone(t *testing.T, srv *Server, owner, text string) {
	t.Helper()

	w, body := doJSON(t, srv, "POST", "/api/ingest",
		`{"owner_id": "`+owner+`", "text": "`+text+`"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, want 202: %v", w.Code, body)
	}
	final := waitDone(t, srv, body["document_id"].(string))
	if final["status"] != "done" {
		t.Fatalf("ingestion failed: %v", final["error"])
	}
}

func TestIngestAndDocumentStatus(t *testing.T) {
	srv := testServer(t)

	w, body := doJSON(t, srv, "POST", "/api/ingest",
		`{"owner_id": "u1", "text": "Alice works at TechCorp.", "title": "notes"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	id, ok := body["document_id"].(string)
	if !ok || id == "" {
		t.Fatalf("document_id missing: %v", body)
	}

	final := waitDone(t, srv, id)
	if final["title"] != "notes" {
		t.Errorf("title = %v, want notes", final["title"])
	}
	if final["processed_at"] == nil {
		t.Error("processed_at missing from finished document")
	}
}

func TestIngestValidation(t *testing.T) {
	srv := testServer(t)

	w, _ := doJSON(t, srv, "POST", "/api/ingest", `{"owner_id": "", "text": "hi"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty owner status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, srv, "POST", "/api/ingest", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", w.Code)
	}
}

func TestDocumentNotFound(t *testing.T) {
	srv := testServer(t)

	w, _ := doJSON(t, srv, "GET", "/api/documents/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := testServer(t)
	ingestDone(t, srv, "u1", "Alice works at TechCorp as an engineer.")

	w, body := doJSON(t, srv, "GET", "/api/search?owner_id=u1&q=alice+techcorp", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %v", w.Code, body)
	}

	results, ok := body["results"].([]any)
	if !ok || len(results) == 0 {
		t.Fatalf("results = %v, want at least one", body["results"])
	}
	first := results[0].(map[string]any)
	if first["score"] == nil || first["explanation"] == "" {
		t.Errorf("result missing score or explanation: %v", first)
	}
}

func TestSearchValidation(t *testing.T) {
	srv := testServer(t)

	w, _ := doJSON(t, srv, "GET", "/api/search?owner_id=u1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, srv, "GET", "/api/search?owner_id=u1&q=x&limit=zero", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}

	w, _ = doJSON(t, srv, "GET", "/api/search?owner_id=u1&q=x&semantic_weight=2", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad weight status = %d, want 400", w.Code)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	srv := testServer(t)
	ingestDone(t, srv, "u1", "Alice works at TechCorp.")

	// Find the memory through search
	_, body := doJSON(t, srv, "GET", "/api/search?owner_id=u1&q=alice", "")
	results := body["results"].([]any)
	memory := results[0].(map[string]any)["memory"].(map[string]any)
	id := memory["id"].(string)

	w, got := doJSON(t, srv, "GET", "/api/memories/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got["content"] != "Alice works at TechCorp." {
		t.Errorf("content = %v", got["content"])
	}

	w, _ = doJSON(t, srv, "GET", "/api/memories/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing memory status = %d, want 404", w.Code)
	}
}

func TestRelatedEndpoint(t *testing.T) {
	srv := testServer(t)
	ingestDone(t, srv, "u1", "Alice works at TechCorp.")
	ingestDone(t, srv, "u1", "Alice works at TechCorp as a platform engineer.")

	_, body := doJSON(t, srv, "GET", "/api/search?owner_id=u1&q=alice&limit=1", "")
	results := body["results"].([]any)
	memory := results[0].(map[string]any)["memory"].(map[string]any)
	id := memory["id"].(string)

	w, got := doJSON(t, srv, "GET", "/api/memories/"+id+"/related?depth=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	related, ok := got["related"].([]any)
	if !ok || len(related) == 0 {
		t.Errorf("related = %v, want at least one", got["related"])
	}

	w, _ = doJSON(t, srv, "GET", "/api/memories/"+id+"/related?depth=zero", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad depth status = %d, want 400", w.Code)
	}
}

func TestGraphEndpoints(t *testing.T) {
	srv := testServer(t)
	ingestDone(t, srv, "u1", "Alice works at TechCorp.")

	w, body := doJSON(t, srv, "GET", "/api/graph/export?owner_id=u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", w.Code)
	}
	nodes, ok := body["nodes"].([]any)
	if !ok || len(nodes) != 1 {
		t.Errorf("nodes = %v, want 1", body["nodes"])
	}

	w, stats := doJSON(t, srv, "GET", "/api/graph/stats?owner_id=u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", w.Code)
	}
	if stats["memories"].(float64) != 1 {
		t.Errorf("memories = %v, want 1", stats["memories"])
	}

	w, _ = doJSON(t, srv, "GET", "/api/graph/stats", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing owner status = %d, want 400", w.Code)
	}
}

func TestTimelineEndpoint(t *testing.T) {
	srv := testServer(t)
	ingestDone(t, srv, "u1", "Alice joined TechCorp in the spring.")

	w, body := doJSON(t, srv, "GET", "/api/timeline?owner_id=u1&topic=techcorp", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	timeline, ok := body["timeline"].([]any)
	if !ok || len(timeline) != 1 {
		t.Errorf("timeline = %v, want 1 entry", body["timeline"])
	}

	w, _ = doJSON(t, srv, "GET", "/api/timeline?owner_id=u1", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing topic status = %d, want 400", w.Code)
	}
}

func TestDeleteOwnerEndpoint(t *testing.T) {
	srv := testServer(t)
	ingestDone(t, srv, "u1", "Something to forget.")

	w, body := doJSON(t, srv, "DELETE", "/api/owners/u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["removed"].(float64) != 1 {
		t.Errorf("removed = %v, want 1", body["removed"])
	}

	_, stats := doJSON(t, srv, "GET", "/api/graph/stats?owner_id=u1", "")
	if stats["memories"].(float64) != 0 {
		t.Errorf("memories after delete = %v, want 0", stats["memories"])
	}
}
