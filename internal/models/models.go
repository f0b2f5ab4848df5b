package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Workflow is a user-owned table built from uploaded documents. Its column
// list grows as file analyses complete and suggestions merge in.
type Workflow struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WorkflowFile is one uploaded document inside a workflow. Status is the
// string rendering of pipeline.FileStatus; the UI polls it.
type WorkflowFile struct {
	ID          string    `db:"id" json:"id"`
	WorkflowID  string    `db:"workflow_id" json:"workflow_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	Status      string    `db:"status" json:"status"`
	ContentHash string    `db:"content_hash" json:"content_hash"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Artifact is a cache entry pointing at a persisted analysis result blob in
// object storage. At most one row exists per
// (user_id, content_hash, analyzer_version); rows are created on cache miss
// and never updated.
type Artifact struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	ContentHash     string    `db:"content_hash" json:"content_hash"`
	AnalyzerVersion int       `db:"analyzer_version" json:"analyzer_version"`
	ArtifactKey     string    `db:"artifact_key" json:"artifact_key"`
	FileSizeBytes   int       `db:"file_size_bytes" json:"file_size_bytes"`
	PageCount       int       `db:"page_count" json:"page_count"`
	ChunkCount      int       `db:"chunk_count" json:"chunk_count"`
	Title           string    `db:"title" json:"title,omitempty"`
	Author          string    `db:"author" json:"author,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// EmbeddingRecord is one embedding per chunk per (provider, model). Byte
// offsets trace the vector back to the exact span of the source document.
type EmbeddingRecord struct {
	ID         string    `db:"id" json:"id"`
	ArtifactID string    `db:"artifact_id" json:"artifact_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Embedding  []float32 `db:"embedding" json:"embedding"` // pgvector column
	ByteStart  int       `db:"byte_start" json:"byte_start"`
	ByteEnd    int       `db:"byte_end" json:"byte_end"`
	TokenCount int       `db:"token_count" json:"token_count"`
	Provider   string    `db:"provider" json:"provider"`
	Model      string    `db:"model" json:"model"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SuggestedColumn is one column of the workflow table, proposed by the LLM
// and merged across files by case-insensitive name. ExtractedValues maps
// file ID to the concrete value the model pulled from that file.
type SuggestedColumn struct {
	ID              string            `db:"id" json:"id"`
	WorkflowID      string            `db:"workflow_id" json:"workflow_id"`
	Name            string            `db:"name" json:"name"`
	OutputType      string            `db:"output_type" json:"output_type"`
	AutoPopulate    bool              `db:"auto_populate" json:"auto_populate"`
	Primary         bool              `db:"is_primary" json:"primary"`
	Provenance      string            `db:"provenance" json:"provenance"`
	Confidence      string            `db:"confidence" json:"confidence"` // high | medium | low
	Rationale       string            `db:"rationale" json:"rationale"`
	WhyUseful       string            `db:"why_useful" json:"why_useful"`
	ExtractedValues map[string]string `db:"extracted_values" json:"extracted_values"` // jsonb
	Position        int               `db:"position" json:"position"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

// CellValue is one computed table cell, produced by the cell-compute
// pipeline for auto-populate columns.
type CellValue struct {
	ID         string    `db:"id" json:"id"`
	WorkflowID string    `db:"workflow_id" json:"workflow_id"`
	FileID     string    `db:"file_id" json:"file_id"`
	ColumnID   string    `db:"column_id" json:"column_id"`
	Value      string    `db:"value" json:"value"`
	Status     string    `db:"status" json:"status"` // computed | failed
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
