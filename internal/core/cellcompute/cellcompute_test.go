package cellcompute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/core/artifacts"
	"github.com/markdave123-py/Skema/internal/models"
)

type fakeDB struct {
	core.DbClient
	mu        sync.Mutex
	workflow  *models.Workflow
	files     []models.WorkflowFile
	columns   []models.SuggestedColumn
	artifacts map[string]*models.Artifact
	search    []models.EmbeddingRecord
	cells     []*models.CellValue
}

func (f *fakeDB) GetWorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	if f.workflow == nil || f.workflow.ID != id {
		return nil, nil
	}
	return f.workflow, nil
}

func (f *fakeDB) ListSuggestedColumns(ctx context.Context, workflowID string) ([]models.SuggestedColumn, error) {
	return f.columns, nil
}

func (f *fakeDB) ListWorkflowFiles(ctx context.Context, workflowID string) ([]models.WorkflowFile, error) {
	return f.files, nil
}

func (f *fakeDB) GetArtifact(ctx context.Context, userID, hash string, version int) (*models.Artifact, error) {
	return f.artifacts[userID+"|"+hash], nil
}

func (f *fakeDB) SearchChunkEmbeddings(ctx context.Context, artifactID string, queryVec []float32, limit int) ([]models.EmbeddingRecord, error) {
	if limit < len(f.search) {
		return f.search[:limit], nil
	}
	return f.search, nil
}

func (f *fakeDB) UpsertCellValue(ctx context.Context, cell *models.CellValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cells = append(f.cells, cell)
	return nil
}

type fakeObj struct {
	core.ObjectClient
	blobs map[string][]byte
}

func (f *fakeObj) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.blobs[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return data, nil
}

type fakeEmbed struct{ err error }

func (f *fakeEmbed) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{1}}, nil
}

func (f *fakeEmbed) ModelID() (string, string) { return "gemini", "text-embedding-004" }

type fakeLLM struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (f *fakeLLM) SuggestColumns(ctx context.Context, systemPrompt, userPrompt string) (*core.SuggestionResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, userPrompt)
	return f.answer, f.err
}

type cellEnv struct {
	db  *fakeDB
	llm *fakeLLM
}

func newCellEnv(t *testing.T) (*Engine, *cellEnv) {
	t.Helper()

	result := &analysis.Result{
		Chunks: []analysis.DocumentChunk{
			{Index: 0, Text: "invoice INV-1 issued to Acme Corp"},
			{Index: 1, Text: "total due 1250.00 by March"},
		},
		Metadata: analysis.Metadata{ContentHash: "hash-1", PageCount: 1},
	}
	blob, err := json.Marshal(result)
	require.NoError(t, err)

	artifact := &models.Artifact{
		ID:              "art-1",
		UserID:          "u1",
		ContentHash:     "hash-1",
		AnalyzerVersion: analysis.AnalyzerVersion,
		ArtifactKey:     artifacts.Key("hash-1", analysis.AnalyzerVersion),
		ChunkCount:      2,
	}

	db := &fakeDB{
		workflow: &models.Workflow{ID: "wf-1", UserID: "u1"},
		files: []models.WorkflowFile{
			{ID: "file-1", WorkflowID: "wf-1", ContentHash: "hash-1", Status: "Ready"},
			{ID: "file-2", WorkflowID: "wf-1", ContentHash: "hash-2", Status: "Analyzing"},
		},
		columns: []models.SuggestedColumn{
			{ID: "col-1", WorkflowID: "wf-1", Name: "Total", OutputType: "number", Rationale: "amount due"},
		},
		artifacts: map[string]*models.Artifact{"u1|hash-1": artifact},
		search: []models.EmbeddingRecord{
			{ArtifactID: "art-1", ChunkIndex: 1},
			{ArtifactID: "art-1", ChunkIndex: 0},
		},
	}
	obj := &fakeObj{blobs: map[string][]byte{"test-bucket/" + artifact.ArtifactKey: blob}}
	llm := &fakeLLM{answer: "1250.00"}

	cache := artifacts.NewCache(db, obj, "test-bucket")
	return NewEngine(db, cache, &fakeEmbed{}, llm), &cellEnv{db: db, llm: llm}
}

func TestComputeColumnFillsReadyFilesOnly(t *testing.T) {
	engine, env := newCellEnv(t)

	err := engine.ComputeColumn(context.Background(), "wf-1", "col-1")
	require.NoError(t, err)

	// file-2 is still analyzing, so exactly one cell lands.
	require.Len(t, env.db.cells, 1)
	cell := env.db.cells[0]
	assert.Equal(t, "file-1", cell.FileID)
	assert.Equal(t, "col-1", cell.ColumnID)
	assert.Equal(t, "1250.00", cell.Value)
	assert.Equal(t, "computed", cell.Status)

	// The prompt carries the retrieved chunk texts, nearest first.
	require.Len(t, env.llm.prompts, 1)
	assert.Contains(t, env.llm.prompts[0], "total due 1250.00")
	assert.Contains(t, env.llm.prompts[0], "Total (number)")
}

func TestComputeColumnUnknownAnswerFailsCell(t *testing.T) {
	engine, env := newCellEnv(t)
	env.llm.answer = "UNKNOWN"

	err := engine.ComputeColumn(context.Background(), "wf-1", "col-1")
	require.NoError(t, err, "a failed cell must not fail the column run")

	require.Len(t, env.db.cells, 1)
	assert.Equal(t, "failed", env.db.cells[0].Status)
	assert.Empty(t, env.db.cells[0].Value)
}

func TestComputeColumnLLMErrorFailsCell(t *testing.T) {
	engine, env := newCellEnv(t)
	env.llm.err = errors.New("model overloaded")

	err := engine.ComputeColumn(context.Background(), "wf-1", "col-1")
	require.NoError(t, err)

	require.Len(t, env.db.cells, 1)
	assert.Equal(t, "failed", env.db.cells[0].Status)
}

func TestComputeColumnUnknownColumn(t *testing.T) {
	engine, _ := newCellEnv(t)

	err := engine.ComputeColumn(context.Background(), "wf-1", "col-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestComputeColumnUnknownWorkflow(t *testing.T) {
	engine, _ := newCellEnv(t)

	err := engine.ComputeColumn(context.Background(), "wf-missing", "col-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
