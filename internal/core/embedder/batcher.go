// Package embedder generates one vector per chunk through an external
// embedding provider, in bounded sequential batches.
package embedder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/models"
)

// DefaultBatchSize caps texts per provider call, respecting rate and payload
// limits.
const DefaultBatchSize = 100

// Batcher persists one embedding row per chunk per (provider, model).
type Batcher struct {
	db        core.DbClient
	provider  core.EmbeddingProvider
	batchSize int
}

func NewBatcher(db core.DbClient, provider core.EmbeddingProvider, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{db: db, provider: provider, batchSize: batchSize}
}

// EnsureEmbeddings generates embeddings for the artifact's chunks unless any
// already exist for this provider/model pair. A cached artifact does not
// imply its embeddings exist, since a prior run may have crashed between
// caching and embedding, so presence is checked independently of the
// artifact cache.
func (b *Batcher) EnsureEmbeddings(ctx context.Context, artifact *models.Artifact, result *analysis.Result) error {
	provider, model := b.provider.ModelID()

	present, err := b.db.HasChunkEmbeddings(ctx, artifact.ID, provider, model)
	if err != nil {
		return fmt.Errorf("check embeddings: %w", err)
	}
	if present {
		log.Printf("embedder: artifact %s already embedded with %s/%s, skipping", artifact.ID, provider, model)
		return nil
	}
	return b.EmbedAll(ctx, artifact.ID, result.Chunks)
}

// EmbedAll embeds chunks in fixed-size batches. Batches run strictly
// sequentially; responses map back to chunks by array position, so order must
// be preserved end to end. A failed batch aborts the whole step; rows from
// earlier batches stay committed, and a retry is safe because rows are keyed
// by (artifact, chunk index, provider, model) and overwrite rather than
// duplicate.
func (b *Batcher) EmbedAll(ctx context.Context, artifactID string, chunks []analysis.DocumentChunk) error {
	provider, model := b.provider.ModelID()

	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		vectors, err := b.provider.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embed batch [%d,%d): %v", core.ErrProvider, start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("%w: embed batch [%d,%d): got %d vectors for %d texts", core.ErrProvider, start, end, len(vectors), len(batch))
		}

		records := make([]models.EmbeddingRecord, len(batch))
		for i, ch := range batch {
			records[i] = models.EmbeddingRecord{
				ID:         uuid.NewString(),
				ArtifactID: artifactID,
				ChunkIndex: ch.Index,
				Embedding:  vectors[i],
				ByteStart:  ch.ByteRange.Start,
				ByteEnd:    ch.ByteRange.End,
				TokenCount: ch.TokenEstimate,
				Provider:   provider,
				Model:      model,
				CreatedAt:  time.Now(),
			}
		}
		if err := b.db.UpsertChunkEmbeddings(ctx, records); err != nil {
			return fmt.Errorf("persist embed batch [%d,%d): %w", start, end, err)
		}
		log.Printf("embedder: artifact %s batch [%d,%d) committed", artifactID, start, end)
	}
	return nil
}
