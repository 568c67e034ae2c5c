package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mnemo-sh/mnemo/internal/engine"
	"github.com/mnemo-sh/mnemo/internal/store"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"owner_id"`
		Text    string `json:"text"`
		Title   string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	doc, err := s.engine.IngestAsync(req.OwnerID, req.Text, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"document_id": doc.ID,
		"status":      doc.Status,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.GetDocumentStatus(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"document_id": doc.ID,
		"owner_id":    doc.OwnerID,
		"title":       doc.Title,
		"status":      doc.Status,
		"created_at":  doc.CreatedAt,
	}
	if doc.Error != "" {
		resp["error"] = doc.Error
	}
	if doc.ProcessedAt != nil {
		resp["processed_at"] = *doc.ProcessedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := engine.SearchOpts{
		OnlyLatest:     q.Get("only_latest") == "true",
		EntityCategory: q.Get("entity_category"),
		Entity:         q.Get("entity"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		opts.Limit = n
	}
	if v := q.Get("semantic_weight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "semantic_weight must be in [0,1]"})
			return
		}
		opts.SemanticWeight = f
	}
	if v := q.Get("keywords"); v != "" {
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				opts.Keywords = append(opts.Keywords, kw)
			}
		}
	}

	results, err := s.engine.Search(r.Context(), q.Get("owner_id"), q.Get("q"), opts)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]any{
			"memory":        memoryJSON(&res.Memory),
			"score":         res.Score,
			"similarity":    res.Similarity,
			"keyword_score": res.KeywordScore,
			"explanation":   res.Explanation,
			"related_ids":   res.RelatedIDs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	memories, err := s.engine.Timeline(r.Context(), q.Get("owner_id"), q.Get("topic"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(memories))
	for i := range memories {
		out = append(out, memoryJSON(&memories[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": out})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetMemory(r.Context(), chi.URLParam(r, "memoryID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memoryJSON(m))
}

func (s *Server) handleGetRelated(w http.ResponseWriter, r *http.Request) {
	depth := 0
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "depth must be a positive integer"})
			return
		}
		depth = n
	}

	related, err := s.engine.GetRelated(r.Context(), chi.URLParam(r, "memoryID"), depth)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(related))
	for i := range related {
		out = append(out, map[string]any{
			"memory": memoryJSON(&related[i].Memory),
			"depth":  related[i].Depth,
			"via": map[string]any{
				"from":       related[i].Via.FromID,
				"to":         related[i].Via.ToID,
				"kind":       related[i].Via.Kind,
				"confidence": related[i].Via.Confidence,
				"reason":     related[i].Via.Reason,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"related": out})
}

func (s *Server) handleGraphExport(w http.ResponseWriter, r *http.Request) {
	graph, err := s.engine.ExportGraph(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id required"})
		return
	}

	stats, err := s.engine.Stats(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeleteOwner(w http.ResponseWriter, r *http.Request) {
	removed, err := s.engine.ClearOwner(r.Context(), chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cleared",
		"removed": removed,
	})
}

func memoryJSON(m *store.Memory) map[string]any {
	out := map[string]any{
		"id":           m.ID,
		"owner_id":     m.OwnerID,
		"content":      m.Content,
		"keywords":     m.Keywords,
		"entities":     m.Entities,
		"is_latest":    m.IsLatest,
		"tier":         m.Tier,
		"access_count": m.AccessCount,
		"created_at":   m.CreatedAt,
	}
	if m.SourceDocument != "" {
		out["source_document"] = m.SourceDocument
		out["chunk_index"] = m.ChunkIndex
	}
	if m.LastAccessedAt != nil {
		out["last_accessed_at"] = *m.LastAccessedAt
	}
	return out
}
