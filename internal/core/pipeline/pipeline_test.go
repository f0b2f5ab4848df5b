package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/core/artifacts"
	"github.com/markdave123-py/Skema/internal/core/embedder"
	"github.com/markdave123-py/Skema/internal/core/suggest"
	"github.com/markdave123-py/Skema/internal/models"
)

type fakeDB struct {
	core.DbClient
	mu        sync.Mutex
	workflow  *models.Workflow
	file      *models.WorkflowFile
	statuses  []string
	artifacts map[string]*models.Artifact
	columns   []models.SuggestedColumn
	embedded  map[string][]models.EmbeddingRecord
	failList  int // remaining ListSuggestedColumns calls to fail
}

func artKey(userID, hash string, version int) string {
	return fmt.Sprintf("%s|%s|%d", userID, hash, version)
}

func (f *fakeDB) GetWorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	if f.workflow == nil || f.workflow.ID != id {
		return nil, nil
	}
	return f.workflow, nil
}

func (f *fakeDB) GetWorkflowFileByID(ctx context.Context, id string) (*models.WorkflowFile, error) {
	if f.file == nil || f.file.ID != id {
		return nil, nil
	}
	return f.file, nil
}

func (f *fakeDB) UpdateWorkflowFileStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file.Status = status
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeDB) GetArtifact(ctx context.Context, userID, hash string, version int) (*models.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.artifacts[artKey(userID, hash, version)], nil
}

func (f *fakeDB) CreateArtifact(ctx context.Context, a *models.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts[artKey(a.UserID, a.ContentHash, a.AnalyzerVersion)] = a
	return nil
}

func (f *fakeDB) HasChunkEmbeddings(ctx context.Context, artifactID, provider, model string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embedded[artifactID]) > 0, nil
}

func (f *fakeDB) UpsertChunkEmbeddings(ctx context.Context, records []models.EmbeddingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range records {
		f.embedded[rec.ArtifactID] = append(f.embedded[rec.ArtifactID], rec)
	}
	return nil
}

func (f *fakeDB) ListSuggestedColumns(ctx context.Context, workflowID string) ([]models.SuggestedColumn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList > 0 {
		f.failList--
		return nil, errors.New("connection reset by peer")
	}
	out := make([]models.SuggestedColumn, len(f.columns))
	copy(out, f.columns)
	return out, nil
}

func (f *fakeDB) SaveSuggestedColumns(ctx context.Context, workflowID string, cols []models.SuggestedColumn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns = cols
	return nil
}

type fakeStore struct {
	core.ObjectClient
	mu       sync.Mutex
	objects  map[string][]byte
	getCalls int
}

func (f *fakeStore) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	return "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key, nil
}

func (f *fakeStore) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return data, nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) ExtractPages(data []byte, contentType string) ([]string, analysis.ExtractedMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []string{string(data)}, analysis.ExtractedMeta{Title: "Doc"}, nil
}

type fakeEmbed struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeEmbed) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return nil, errors.New("embedding quota exceeded")
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1}
	}
	return vectors, nil
}

func (f *fakeEmbed) ModelID() (string, string) { return "gemini", "text-embedding-004" }

type fakeLLM struct{}

func (fakeLLM) SuggestColumns(ctx context.Context, systemPrompt, userPrompt string) (*core.SuggestionResponse, error) {
	return &core.SuggestionResponse{
		DocumentType: "invoice",
		Columns: []core.ColumnProposal{
			{Name: "invoice id", ExtractedValue: "INV-1", Primary: true, Confidence: "high"},
		},
	}, nil
}

func (fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("not used")
}

type testEnv struct {
	db    *fakeDB
	obj   *fakeStore
	ext   *fakeExtractor
	embed *fakeEmbed
	orch  *Orchestrator
}

func newEnv(t *testing.T, content []byte) *testEnv {
	t.Helper()

	const (
		bucket = "test-bucket"
		key    = "users/u1/wf-1/file-1/doc.txt"
	)

	obj := &fakeStore{objects: map[string][]byte{bucket + "/" + key: content}}
	db := &fakeDB{
		workflow: &models.Workflow{ID: "wf-1", UserID: "u1", Name: "Invoices"},
		file: &models.WorkflowFile{
			ID:          "file-1",
			WorkflowID:  "wf-1",
			FileName:    "doc.txt",
			ContentType: "text/plain",
			StorageURL:  "https://" + bucket + ".s3.us-east-2.amazonaws.com/" + key,
			Status:      Analyzing().String(),
			ContentHash: analysis.ContentHash(content),
		},
		artifacts: make(map[string]*models.Artifact),
		embedded:  make(map[string][]models.EmbeddingRecord),
	}

	ext := &fakeExtractor{}
	embed := &fakeEmbed{}
	analyzer := analysis.NewAnalyzer(ext)
	cache := artifacts.NewCache(db, obj, bucket)
	batcher := embedder.NewBatcher(db, embed, 10)
	engine := suggest.NewEngine(fakeLLM{})

	return &testEnv{
		db:    db,
		obj:   obj,
		ext:   ext,
		embed: embed,
		orch:  NewOrchestrator(db, obj, analyzer, cache, batcher, engine),
	}
}

func TestProcessFileSuccess(t *testing.T) {
	env := newEnv(t, []byte("invoice number INV-1 from Acme Corp"))

	err := env.orch.ProcessFile(context.Background(), Trigger{WorkflowID: "wf-1", FileID: "file-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Analyzing", "Suggesting columns", "Ready"}, env.db.statuses)

	require.Len(t, env.db.artifacts, 1)
	require.Len(t, env.db.columns, 1)
	col := env.db.columns[0]
	assert.Equal(t, "Invoice ID", col.Name)
	assert.Equal(t, map[string]string{"file-1": "INV-1"}, col.ExtractedValues)

	require.Len(t, env.db.embedded, 1)
	for _, recs := range env.db.embedded {
		assert.NotEmpty(t, recs)
	}
}

func TestProcessFileSecondRunHitsCaches(t *testing.T) {
	env := newEnv(t, []byte("same document twice"))
	trig := Trigger{WorkflowID: "wf-1", FileID: "file-1"}

	require.NoError(t, env.orch.ProcessFile(context.Background(), trig))
	require.NoError(t, env.orch.ProcessFile(context.Background(), trig))

	assert.Equal(t, 1, env.ext.calls, "second run must reuse the cached artifact")
	assert.Equal(t, 1, env.embed.calls, "second run must skip embedding")
	assert.Len(t, env.db.artifacts, 1)
	assert.Equal(t, "Ready", env.db.file.Status)
}

func TestProcessFileContentMismatch(t *testing.T) {
	env := newEnv(t, []byte("original content"))
	env.db.file.ContentHash = "0000000000000000000000000000000000000000000000000000000000000000"

	err := env.orch.ProcessFile(context.Background(), Trigger{WorkflowID: "wf-1", FileID: "file-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrContentMismatch))

	assert.Equal(t, 0, env.ext.calls, "mismatched content must never reach extraction")
	assert.Equal(t, 1, env.obj.getCalls, "fatal errors must not retry")

	status := ParseStatus(env.db.file.Status)
	assert.Equal(t, StatusError, status.Kind)
	assert.NotEmpty(t, status.Message)
}

func TestProcessFileEmbeddingFailureThenRecovery(t *testing.T) {
	env := newEnv(t, []byte("flaky embedding run"))
	env.embed.fail = true
	trig := Trigger{WorkflowID: "wf-1", FileID: "file-1"}

	err := env.orch.ProcessFile(context.Background(), trig)
	require.Error(t, err)
	assert.Equal(t, StatusError, ParseStatus(env.db.file.Status).Kind)
	assert.Len(t, env.db.artifacts, 1, "analysis result is cached even when embedding fails")

	env.embed.fail = false
	require.NoError(t, env.orch.ProcessFile(context.Background(), trig))

	assert.Equal(t, 1, env.ext.calls, "retry must reuse the cached analysis, not re-extract")
	assert.Equal(t, "Ready", env.db.file.Status)
}

func TestProcessFileRetriesTransientFailures(t *testing.T) {
	env := newEnv(t, []byte("transient db failure"))
	env.db.failList = 1

	err := env.orch.ProcessFile(context.Background(), Trigger{WorkflowID: "wf-1", FileID: "file-1"})
	require.NoError(t, err)
	assert.Equal(t, "Ready", env.db.file.Status)
}

func TestProcessFileMissingWorkflow(t *testing.T) {
	env := newEnv(t, []byte("content"))

	err := env.orch.ProcessFile(context.Background(), Trigger{WorkflowID: "wf-gone", FileID: "file-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Equal(t, StatusError, ParseStatus(env.db.file.Status).Kind)
}

func TestWorkerPoolProcessesEnqueuedTrigger(t *testing.T) {
	env := newEnv(t, []byte("queued document"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.orch.Start(ctx, 1)
	env.orch.Enqueue(Trigger{WorkflowID: "wf-1", FileID: "file-1"})

	require.Eventually(t, func() bool {
		env.db.mu.Lock()
		defer env.db.mu.Unlock()
		return env.db.file.Status == "Ready"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestParseStorageURL(t *testing.T) {
	bucket, key := ParseStorageURL("https://my-bucket.s3.us-east-2.amazonaws.com/users/u1/wf/f/doc.pdf")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "users/u1/wf/f/doc.pdf", key)

	bucket, key = ParseStorageURL("https://my-bucket.s3.us-east-2.amazonaws.com/")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "", key)
}
