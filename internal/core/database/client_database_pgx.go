package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Skema/internal/config"
	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()), COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Workflows

func (c *DatabaseClient) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	if wf == nil {
		return errors.New("nil workflow")
	}
	const q = `
		INSERT INTO workflows (id, user_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, now()), COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q, wf.ID, wf.UserID, wf.Name, wf.CreatedAt, wf.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetWorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	const q = `
		SELECT id, user_id, name, created_at, updated_at
		FROM workflows WHERE id = $1
	`
	var w models.Workflow
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&w.ID, &w.UserID, &w.Name, &w.CreatedAt, &w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *DatabaseClient) ListWorkflowsByUser(ctx context.Context, userID string) ([]models.Workflow, error) {
	const q = `
		SELECT id, user_id, name, created_at, updated_at
		FROM workflows
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Workflow
	for rows.Next() {
		var w models.Workflow
		if err := rows.Scan(&w.ID, &w.UserID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Workflow files

func (c *DatabaseClient) CreateWorkflowFile(ctx context.Context, file *models.WorkflowFile) error {
	if file == nil {
		return errors.New("nil workflow file")
	}
	const q = `
		INSERT INTO workflow_files
			(id, workflow_id, file_name, content_type, storage_url, status, content_hash, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()), COALESCE($9, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		file.ID, file.WorkflowID, file.FileName, file.ContentType, file.StorageURL,
		file.Status, file.ContentHash, file.CreatedAt, file.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetWorkflowFileByID(ctx context.Context, id string) (*models.WorkflowFile, error) {
	const q = `
		SELECT id, workflow_id, file_name, content_type, storage_url, status, content_hash, created_at, updated_at
		FROM workflow_files
		WHERE id = $1
	`
	var f models.WorkflowFile
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&f.ID, &f.WorkflowID, &f.FileName, &f.ContentType, &f.StorageURL,
		&f.Status, &f.ContentHash, &f.CreatedAt, &f.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) ListWorkflowFiles(ctx context.Context, workflowID string) ([]models.WorkflowFile, error) {
	const q = `
		SELECT id, workflow_id, file_name, content_type, storage_url, status, content_hash, created_at, updated_at
		FROM workflow_files
		WHERE workflow_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkflowFile
	for rows.Next() {
		var f models.WorkflowFile
		if err := rows.Scan(
			&f.ID, &f.WorkflowID, &f.FileName, &f.ContentType, &f.StorageURL,
			&f.Status, &f.ContentHash, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateWorkflowFileStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE workflow_files
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("workflow file not found: %s", id)
	}
	return nil
}

// Artifact cache

func (c *DatabaseClient) GetArtifact(ctx context.Context, userID, contentHash string, analyzerVersion int) (*models.Artifact, error) {
	const q = `
		SELECT id, user_id, content_hash, analyzer_version, artifact_key,
		       file_size_bytes, page_count, chunk_count, title, author, created_at
		FROM analysis_artifacts
		WHERE user_id = $1 AND content_hash = $2 AND analyzer_version = $3
	`
	var a models.Artifact
	err := c.db.QueryRowContext(ctx, q, userID, contentHash, analyzerVersion).Scan(
		&a.ID, &a.UserID, &a.ContentHash, &a.AnalyzerVersion, &a.ArtifactKey,
		&a.FileSizeBytes, &a.PageCount, &a.ChunkCount, &a.Title, &a.Author, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *DatabaseClient) CreateArtifact(ctx context.Context, artifact *models.Artifact) error {
	if artifact == nil {
		return errors.New("nil artifact")
	}
	const q = `
		INSERT INTO analysis_artifacts
			(id, user_id, content_hash, analyzer_version, artifact_key,
			 file_size_bytes, page_count, chunk_count, title, author, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		artifact.ID, artifact.UserID, artifact.ContentHash, artifact.AnalyzerVersion,
		artifact.ArtifactKey, artifact.FileSizeBytes, artifact.PageCount,
		artifact.ChunkCount, artifact.Title, artifact.Author, artifact.CreatedAt)
	return err
}

// Chunk embeddings

func (c *DatabaseClient) HasChunkEmbeddings(ctx context.Context, artifactID, provider, model string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM chunk_embeddings
			WHERE artifact_id = $1 AND provider = $2 AND model = $3
		)
	`
	var present bool
	err := c.db.QueryRowContext(ctx, q, artifactID, provider, model).Scan(&present)
	return present, err
}

// UpsertChunkEmbeddings writes one batch in a single transaction. The unique
// key (artifact_id, chunk_index, provider, model) makes re-runs overwrite
// instead of duplicate.
func (c *DatabaseClient) UpsertChunkEmbeddings(ctx context.Context, records []models.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunk_embeddings
			(id, artifact_id, chunk_index, embedding, byte_start, byte_end, token_count, provider, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
		ON CONFLICT (artifact_id, chunk_index, provider, model) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			byte_start = EXCLUDED.byte_start,
			byte_end = EXCLUDED.byte_end,
			token_count = EXCLUDED.token_count
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		vec := pgvector.NewVector(rec.Embedding)
		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.ArtifactID, rec.ChunkIndex, vec, rec.ByteStart, rec.ByteEnd,
			rec.TokenCount, rec.Provider, rec.Model, rec.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchChunkEmbeddings finds the top-k most similar chunks of an artifact
// for a query embedding.
func (c *DatabaseClient) SearchChunkEmbeddings(ctx context.Context, artifactID string, queryVec []float32, limit int) ([]models.EmbeddingRecord, error) {
	const q = `
		SELECT id, artifact_id, chunk_index, embedding, byte_start, byte_end, token_count, provider, model, created_at
		FROM chunk_embeddings
		WHERE artifact_id = $1
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, artifactID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EmbeddingRecord
	for rows.Next() {
		var (
			rec models.EmbeddingRecord
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&rec.ID, &rec.ArtifactID, &rec.ChunkIndex, &emb, &rec.ByteStart, &rec.ByteEnd,
			&rec.TokenCount, &rec.Provider, &rec.Model, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Embedding = emb.Slice()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Suggested columns

func (c *DatabaseClient) ListSuggestedColumns(ctx context.Context, workflowID string) ([]models.SuggestedColumn, error) {
	const q = `
		SELECT id, workflow_id, name, output_type, auto_populate, is_primary,
		       provenance, confidence, rationale, why_useful, extracted_values, position, created_at
		FROM suggested_columns
		WHERE workflow_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SuggestedColumn
	for rows.Next() {
		var (
			col    models.SuggestedColumn
			values []byte
		)
		if err := rows.Scan(
			&col.ID, &col.WorkflowID, &col.Name, &col.OutputType, &col.AutoPopulate,
			&col.Primary, &col.Provenance, &col.Confidence, &col.Rationale,
			&col.WhyUseful, &values, &col.Position, &col.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(values) > 0 {
			if err := json.Unmarshal(values, &col.ExtractedValues); err != nil {
				return nil, fmt.Errorf("decode extracted_values for column %s: %w", col.ID, err)
			}
		}
		out = append(out, col)
	}
	return out, rows.Err()
}

// SaveSuggestedColumns upserts the merged column list in one transaction.
// The unique index on (workflow_id, lower(name)) absorbs concurrent merges of
// the same column name from sibling files.
func (c *DatabaseClient) SaveSuggestedColumns(ctx context.Context, workflowID string, cols []models.SuggestedColumn) error {
	if len(cols) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO suggested_columns
			(id, workflow_id, name, output_type, auto_populate, is_primary,
			 provenance, confidence, rationale, why_useful, extracted_values, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()))
		ON CONFLICT (workflow_id, lower(name)) DO UPDATE SET
			extracted_values = suggested_columns.extracted_values || EXCLUDED.extracted_values,
			auto_populate = EXCLUDED.auto_populate,
			confidence = EXCLUDED.confidence
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range cols {
		col := &cols[i]
		values, err := json.Marshal(col.ExtractedValues)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode extracted_values for column %q: %w", col.Name, err)
		}
		if _, err := stmt.ExecContext(ctx,
			col.ID, workflowID, col.Name, col.OutputType, col.AutoPopulate, col.Primary,
			col.Provenance, col.Confidence, col.Rationale, col.WhyUseful,
			values, col.Position, col.CreatedAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Cell values

func (c *DatabaseClient) UpsertCellValue(ctx context.Context, cell *models.CellValue) error {
	if cell == nil {
		return errors.New("nil cell value")
	}
	const q = `
		INSERT INTO cell_values (id, workflow_id, file_id, column_id, value, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		ON CONFLICT (workflow_id, file_id, column_id) DO UPDATE SET
			value = EXCLUDED.value,
			status = EXCLUDED.status
	`
	_, err := c.db.ExecContext(ctx, q,
		cell.ID, cell.WorkflowID, cell.FileID, cell.ColumnID, cell.Value, cell.Status, cell.CreatedAt)
	return err
}

func (c *DatabaseClient) ListCellValues(ctx context.Context, workflowID string) ([]models.CellValue, error) {
	const q = `
		SELECT id, workflow_id, file_id, column_id, value, status, created_at
		FROM cell_values
		WHERE workflow_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.CellValue
	for rows.Next() {
		var cv models.CellValue
		if err := rows.Scan(&cv.ID, &cv.WorkflowID, &cv.FileID, &cv.ColumnID, &cv.Value, &cv.Status, &cv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, rows.Err()
}
