package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mnemo-sh/mnemo/internal/embed"
	"github.com/mnemo-sh/mnemo/internal/extract"
	"github.com/mnemo-sh/mnemo/internal/store"
)

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	Document      *store.Document
	MemoryIDs     []string
	Relationships []store.Relationship
}

// Ingest runs the full pipeline for one text: chunk, extract, embed, store,
// classify, index. The document record tracks progress; on a chunk failure
// the document is marked failed with the error, and memories stored for
// earlier chunks remain valid and searchable.
func (e *Engine) Ingest(ctx context.Context, ownerID, text, title string) (*IngestResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}

	doc := &store.Document{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		RawContent: text,
		Status:     store.StatusQueued,
	}
	if err := e.db.CreateDocument(doc); err != nil {
		return nil, err
	}

	result := &IngestResult{Document: doc}
	if err := e.process(ctx, doc, text, result); err != nil {
		if finishErr := e.db.FinishDocument(doc.ID, err.Error()); finishErr != nil {
			log.Error().Err(finishErr).Str("document", doc.ID).Msg("mark document failed")
		}
		doc.Status = store.StatusFailed
		doc.Error = err.Error()
		return result, err
	}

	if err := e.db.FinishDocument(doc.ID, ""); err != nil {
		return result, err
	}
	doc.Status = store.StatusDone
	return result, nil
}

func (e *Engine) process(ctx context.Context, doc *store.Document, text string, result *IngestResult) error {
	if err := e.db.SetDocumentStatus(doc.ID, store.StatusChunking); err != nil {
		return err
	}
	chunks := chunkText(text, e.cfg.ChunkSize, e.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: text produced no chunks", ErrValidation)
	}

	// Each status is written once per document, whole stages at a time, so
	// a poller always sees the stages advance in order.
	if err := e.db.SetDocumentStatus(doc.ID, store.StatusExtracting); err != nil {
		return err
	}
	extractions := make([]extract.Extraction, len(chunks))
	for idx, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		ex, err := e.extractWithRetry(ctx, chunk)
		if err != nil {
			return fmt.Errorf("chunk %d: extract: %w", idx, err)
		}
		extractions[idx] = ex
	}

	if err := e.db.SetDocumentStatus(doc.ID, store.StatusEmbedding); err != nil {
		return err
	}
	vectors := make([][]float64, len(chunks))
	for idx, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, err := e.embedWithRetry(ctx, chunk)
		if err != nil {
			return fmt.Errorf("chunk %d: embed: %w", idx, err)
		}
		if len(vec) != e.embedder.Dimensions() {
			return fmt.Errorf("chunk %d: embedder returned %d dimensions, want %d",
				idx, len(vec), e.embedder.Dimensions())
		}
		vectors[idx] = vec
	}

	if err := e.db.SetDocumentStatus(doc.ID, store.StatusIndexing); err != nil {
		return err
	}
	for idx, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := &store.Memory{
			ID:             uuid.NewString(),
			OwnerID:        doc.OwnerID,
			Content:        chunk,
			Embedding:      vectors[idx],
			Keywords:       extractions[idx].Keywords,
			Entities:       extractions[idx].Entities,
			IsLatest:       true,
			Tier:           store.TierHot,
			SourceDocument: doc.ID,
			ChunkIndex:     idx,
		}
		if err := e.db.CreateMemory(m); err != nil {
			return fmt.Errorf("chunk %d: store: %w", idx, err)
		}
		result.MemoryIDs = append(result.MemoryIDs, m.ID)

		rels, err := e.classify(ctx, m)
		result.Relationships = append(result.Relationships, rels...)
		if err != nil {
			e.parkUnindexed(m)
			return fmt.Errorf("chunk %d: classify: %w", idx, err)
		}
		if err := e.hot.Add(ctx, m.OwnerID, m.ID, m.Embedding); err != nil {
			e.parkUnindexed(m)
			return fmt.Errorf("chunk %d: index: %w", idx, err)
		}
	}

	log.Info().
		Str("document", doc.ID).
		Str("owner", doc.OwnerID).
		Int("memories", len(result.MemoryIDs)).
		Int("relationships", len(result.Relationships)).
		Msg("ingested document")
	return nil
}

// parkUnindexed retags a committed memory as cold when it never reached the
// hot index, so it stays reachable through the cold scan instead of being
// invisible until the next index warm-up.
func (e *Engine) parkUnindexed(m *store.Memory) {
	if err := e.db.UpdateTier(m.ID, store.TierCold); err != nil {
		log.Error().Err(err).Str("memory", m.ID).Msg("park unindexed memory")
		return
	}
	m.Tier = store.TierCold
}

// IngestAsync validates the input and creates the document record, then
// runs the pipeline in the background. Callers poll the document status to
// observe progress.
func (e *Engine) IngestAsync(ownerID, text, title string) (*store.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrValidation)
	}

	doc := &store.Document{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		RawContent: text,
		Status:     store.StatusQueued,
	}
	if err := e.db.CreateDocument(doc); err != nil {
		return nil, err
	}

	go func() {
		result := &IngestResult{Document: doc}
		if err := e.process(context.Background(), doc, text, result); err != nil {
			log.Error().Err(err).Str("document", doc.ID).Msg("ingestion failed")
			if finishErr := e.db.FinishDocument(doc.ID, err.Error()); finishErr != nil {
				log.Error().Err(finishErr).Str("document", doc.ID).Msg("mark document failed")
			}
			return
		}
		if err := e.db.FinishDocument(doc.ID, ""); err != nil {
			log.Error().Err(err).Str("document", doc.ID).Msg("mark document done")
		}
	}()
	return doc, nil
}

// GetDocumentStatus returns the ingestion record for a document.
func (e *Engine) GetDocumentStatus(id string) (*store.Document, error) {
	doc, err := e.db.GetDocument(id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// retryPolicy builds the backoff schedule for external provider calls.
// Attempts are capped, intervals grow exponentially, and the whole call
// respects both the context and the configured budget.
func (e *Engine) retryPolicy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryInitialDelay
	bo.MaxElapsedTime = e.cfg.ExternalCallBudget
	attempts := e.cfg.RetryMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)
}

// embedWithRetry calls the embedder, retrying transient provider outages.
// Anything that is not an availability failure is permanent.
func (e *Engine) embedWithRetry(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	op := func() error {
		v, err := e.embedder.Embed(ctx, text)
		if err != nil {
			if errors.Is(err, embed.ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		vec = v
		return nil
	}
	if err := backoff.Retry(op, e.retryPolicy(ctx)); err != nil {
		return nil, err
	}
	return vec, nil
}

func (e *Engine) extractWithRetry(ctx context.Context, text string) (extract.Extraction, error) {
	var out extract.Extraction
	op := func() error {
		ex, err := e.extractor.Extract(ctx, text)
		if err != nil {
			if errors.Is(err, extract.ErrUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = ex
		return nil
	}
	if err := backoff.Retry(op, e.retryPolicy(ctx)); err != nil {
		return extract.Extraction{}, err
	}
	return out, nil
}
