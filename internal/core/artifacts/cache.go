// Package artifacts is the content-addressable cache of analysis results.
// An artifact row records where a prior result blob is persisted so identical
// content is never re-extracted or re-chunked.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/models"
)

// Cache looks artifacts up in the relational store and persists result blobs
// in object storage.
type Cache struct {
	db      core.DbClient
	obj     core.ObjectClient
	bucket  string
	version int
}

func NewCache(db core.DbClient, obj core.ObjectClient, bucket string) *Cache {
	return &Cache{db: db, obj: obj, bucket: bucket, version: analysis.AnalyzerVersion}
}

// Key derives the object-storage key for a result blob. Both the content
// hash and the analyzer version participate, so a version bump addresses a
// fresh key and old blobs are left untouched.
func Key(contentHash string, analyzerVersion int) string {
	return fmt.Sprintf("artifacts/%s-v%d.json", contentHash, analyzerVersion)
}

// Lookup returns the cached artifact for (userID, contentHash) under the
// current analyzer version, or nil on a miss.
func (c *Cache) Lookup(ctx context.Context, userID, contentHash string) (*models.Artifact, error) {
	artifact, err := c.db.GetArtifact(ctx, userID, contentHash, c.version)
	if err != nil {
		return nil, fmt.Errorf("artifact lookup: %w", err)
	}
	return artifact, nil
}

// Store persists the result blob to object storage and inserts the artifact
// row pointing at it. Called only on a cache miss.
func (c *Cache) Store(ctx context.Context, userID string, result *analysis.Result) (*models.Artifact, error) {
	blob, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis result: %w", err)
	}

	key := Key(result.Metadata.ContentHash, c.version)
	if _, err := c.obj.UploadFile(ctx, c.bucket, key, blob, "application/json"); err != nil {
		return nil, fmt.Errorf("persist artifact blob: %w", err)
	}

	artifact := &models.Artifact{
		ID:              uuid.NewString(),
		UserID:          userID,
		ContentHash:     result.Metadata.ContentHash,
		AnalyzerVersion: c.version,
		ArtifactKey:     key,
		FileSizeBytes:   result.Metadata.FileSizeBytes,
		PageCount:       result.Metadata.PageCount,
		ChunkCount:      len(result.Chunks),
		Title:           result.Metadata.Title,
		Author:          result.Metadata.Author,
		CreatedAt:       time.Now(),
	}
	if err := c.db.CreateArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("insert artifact row: %w", err)
	}
	return artifact, nil
}

// LoadResult fetches and decodes the result blob an artifact points at.
func (c *Cache) LoadResult(ctx context.Context, artifact *models.Artifact) (*analysis.Result, error) {
	blob, err := c.obj.GetFile(ctx, c.bucket, artifact.ArtifactKey)
	if err != nil {
		return nil, fmt.Errorf("fetch artifact blob %s: %w", artifact.ArtifactKey, err)
	}
	var result analysis.Result
	if err := json.Unmarshal(blob, &result); err != nil {
		return nil, fmt.Errorf("decode artifact blob %s: %w", artifact.ArtifactKey, err)
	}
	return &result, nil
}
