// Package cellcompute fills table cells for auto-populate columns: for each
// ready file it retrieves the most relevant chunks by vector similarity and
// asks the LLM for the column's value in that document.
package cellcompute

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/artifacts"
	"github.com/markdave123-py/Skema/internal/core/pipeline"
	"github.com/markdave123-py/Skema/internal/models"
)

// MaxCellComputeWorkers caps concurrent cell computations per column run.
const MaxCellComputeWorkers = 5

// topKChunks is how many chunks feed one cell prompt.
const topKChunks = 4

const cellSystemPrompt = `You extract a single field value from document excerpts.
Answer with the value only, no explanation, no quotes. If the excerpts do
not contain the value, answer exactly UNKNOWN.`

// Engine computes cell values. There is no retry budget here: a failed cell
// surfaces immediately as a failed cell row rather than silently retrying
// against a possibly-invalid prompt.
type Engine struct {
	db       core.DbClient
	cache    *artifacts.Cache
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
}

func NewEngine(db core.DbClient, cache *artifacts.Cache, embedder core.EmbeddingProvider, llm core.LLMProvider) *Engine {
	return &Engine{db: db, cache: cache, embedder: embedder, llm: llm}
}

// ComputeColumn computes the column's value for every ready file in the
// workflow, at most MaxCellComputeWorkers cells in flight.
func (e *Engine) ComputeColumn(ctx context.Context, workflowID, columnID string) error {
	workflow, err := e.db.GetWorkflowByID(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("get workflow: %w", err)
	}
	if workflow == nil {
		return fmt.Errorf("%w: workflow %s", core.ErrNotFound, workflowID)
	}

	cols, err := e.db.ListSuggestedColumns(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("list columns: %w", err)
	}
	var column *models.SuggestedColumn
	for i := range cols {
		if cols[i].ID == columnID {
			column = &cols[i]
			break
		}
	}
	if column == nil {
		return fmt.Errorf("%w: column %s", core.ErrNotFound, columnID)
	}

	files, err := e.db.ListWorkflowFiles(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxCellComputeWorkers)
	for _, f := range files {
		if pipeline.ParseStatus(f.Status).Kind != pipeline.StatusReady {
			continue
		}
		file := f
		g.Go(func() error {
			if err := e.computeCell(gctx, workflow, &file, column); err != nil {
				// One failed cell does not abort its siblings; the
				// failure lands on the cell row.
				log.Printf("cellcompute: column %q file %s: %v", column.Name, file.ID, err)
				e.recordCell(workflow.ID, file.ID, column.ID, "", "failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) computeCell(ctx context.Context, workflow *models.Workflow, file *models.WorkflowFile, column *models.SuggestedColumn) error {
	artifact, err := e.cache.Lookup(ctx, workflow.UserID, file.ContentHash)
	if err != nil {
		return err
	}
	if artifact == nil {
		return fmt.Errorf("%w: artifact for file %s", core.ErrNotFound, file.ID)
	}

	query := column.Name
	if column.Rationale != "" {
		query += ": " + column.Rationale
	}
	vecs, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return fmt.Errorf("%w: embed query: %v", core.ErrProvider, err)
	}

	records, err := e.db.SearchChunkEmbeddings(ctx, artifact.ID, vecs[0], topKChunks)
	if err != nil {
		return fmt.Errorf("chunk search: %w", err)
	}

	result, err := e.cache.LoadResult(ctx, artifact)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, rec := range records {
		if rec.ChunkIndex < 0 || rec.ChunkIndex >= len(result.Chunks) {
			continue
		}
		sb.WriteString(result.Chunks[rec.ChunkIndex].Text)
		sb.WriteString("\n---\n")
	}

	userPrompt := fmt.Sprintf("Field: %s (%s)\n\nExcerpts:\n%s", column.Name, column.OutputType, sb.String())
	answer, err := e.llm.Generate(ctx, cellSystemPrompt, userPrompt)
	if err != nil {
		return fmt.Errorf("%w: generate cell: %v", core.ErrProvider, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" || answer == "UNKNOWN" {
		return fmt.Errorf("no value extracted for %q", column.Name)
	}

	e.recordCell(workflow.ID, file.ID, column.ID, answer, "computed")
	return nil
}

// recordCell upserts the cell row with its own short-lived context so a
// cancelled run still records the outcome.
func (e *Engine) recordCell(workflowID, fileID, columnID, value, status string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cell := &models.CellValue{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		FileID:     fileID,
		ColumnID:   columnID,
		Value:      value,
		Status:     status,
		CreatedAt:  time.Now(),
	}
	if err := e.db.UpsertCellValue(ctx, cell); err != nil {
		log.Printf("cellcompute: persist cell (file %s, column %s) failed: %v", fileID, columnID, err)
	}
}
