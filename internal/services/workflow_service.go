package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/core/pipeline"
	"github.com/markdave123-py/Skema/internal/models"
)

// WorkflowService owns workflow and file CRUD around the pipeline. Uploads
// hash the bytes before anything else so the pipeline can verify integrity
// when it later pulls them back from object storage.
type WorkflowService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewWorkflowService(db core.DbClient, storage core.ObjectClient, bucket string) *WorkflowService {
	return &WorkflowService{db: db, storage: storage, bucket: bucket}
}

func (s *WorkflowService) Create(ctx context.Context, userID, name string) (*models.Workflow, error) {
	wf := &models.Workflow{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*models.Workflow, error) {
	return s.db.GetWorkflowByID(ctx, id)
}

func (s *WorkflowService) ListByUser(ctx context.Context, userID string) ([]models.Workflow, error) {
	return s.db.ListWorkflowsByUser(ctx, userID)
}

func (s *WorkflowService) ListFiles(ctx context.Context, workflowID string) ([]models.WorkflowFile, error) {
	return s.db.ListWorkflowFiles(ctx, workflowID)
}

func (s *WorkflowService) ListColumns(ctx context.Context, workflowID string) ([]models.SuggestedColumn, error) {
	return s.db.ListSuggestedColumns(ctx, workflowID)
}

func (s *WorkflowService) ListCells(ctx context.Context, workflowID string) ([]models.CellValue, error) {
	return s.db.ListCellValues(ctx, workflowID)
}

// UploadFile stores the bytes in object storage and inserts the file row in
// "Analyzing" state. The caller enqueues the pipeline run afterwards.
func (s *WorkflowService) UploadFile(ctx context.Context, userID, workflowID, filename, contentType string, data []byte) (*models.WorkflowFile, error) {
	fileID := uuid.NewString()
	key := s.objectKey(userID, workflowID, fileID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	file := &models.WorkflowFile{
		ID:          fileID,
		WorkflowID:  workflowID,
		FileName:    filename,
		ContentType: contentType,
		StorageURL:  url,
		Status:      pipeline.Analyzing().String(),
		ContentHash: analysis.ContentHash(data),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.CreateWorkflowFile(ctx, file); err != nil {
		return nil, err
	}
	return file, nil
}

// RetryFile resets a failed file so a new pipeline run can be triggered. Only
// files in an error state are retriable; successful or in-flight files are
// left alone.
func (s *WorkflowService) RetryFile(ctx context.Context, fileID string) (*models.WorkflowFile, error) {
	file, err := s.db.GetWorkflowFileByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%w: file %s", core.ErrNotFound, fileID)
	}
	if pipeline.ParseStatus(file.Status).Kind != pipeline.StatusError {
		return nil, fmt.Errorf("file %s is not in an error state", fileID)
	}
	if err := s.db.UpdateWorkflowFileStatus(ctx, fileID, pipeline.Analyzing().String()); err != nil {
		return nil, err
	}
	file.Status = pipeline.Analyzing().String()
	return file, nil
}

// objectKey creates a consistent S3 key layout for uploads.
func (s *WorkflowService) objectKey(userID, workflowID, fileID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "workflows", workflowID, fileID, filename)
}
