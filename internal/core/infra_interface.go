package core

import (
	"context"
	"io"

	"github.com/markdave123-py/Skema/internal/models"
)

// DbClient defines all persistence operations the pipeline and services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific
// DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	GetWorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	ListWorkflowsByUser(ctx context.Context, userID string) ([]models.Workflow, error)

	CreateWorkflowFile(ctx context.Context, file *models.WorkflowFile) error
	GetWorkflowFileByID(ctx context.Context, id string) (*models.WorkflowFile, error)
	ListWorkflowFiles(ctx context.Context, workflowID string) ([]models.WorkflowFile, error)
	UpdateWorkflowFileStatus(ctx context.Context, id string, status string) error

	GetArtifact(ctx context.Context, userID, contentHash string, analyzerVersion int) (*models.Artifact, error)
	CreateArtifact(ctx context.Context, artifact *models.Artifact) error

	HasChunkEmbeddings(ctx context.Context, artifactID, provider, model string) (bool, error)
	UpsertChunkEmbeddings(ctx context.Context, records []models.EmbeddingRecord) error
	SearchChunkEmbeddings(ctx context.Context, artifactID string, queryVec []float32, limit int) ([]models.EmbeddingRecord, error)

	ListSuggestedColumns(ctx context.Context, workflowID string) ([]models.SuggestedColumn, error)
	SaveSuggestedColumns(ctx context.Context, workflowID string, cols []models.SuggestedColumn) error

	UpsertCellValue(ctx context.Context, cell *models.CellValue) error
	ListCellValues(ctx context.Context, workflowID string) ([]models.CellValue, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage. It stays
// abstract so AWS can be replaced with MinIO, GCP, etc.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
