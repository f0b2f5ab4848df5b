// Package pipeline orchestrates the per-file ingestion workflow: analyze,
// cache, embed, suggest columns, merge. Each step is an independently
// retryable unit with at-least-once semantics; every step is idempotent or
// cache-checked, so re-execution after a crash is safe.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/markdave123-py/Skema/internal/core"
	"github.com/markdave123-py/Skema/internal/core/analysis"
	"github.com/markdave123-py/Skema/internal/core/artifacts"
	"github.com/markdave123-py/Skema/internal/core/embedder"
	"github.com/markdave123-py/Skema/internal/core/suggest"
	"github.com/markdave123-py/Skema/internal/models"
)

// MaxAnalysisWorkers caps concurrent file-analysis runs. The ceiling lives
// here in the orchestration layer, not in the workers, and bounds load on the
// LLM/embedding provider and the database.
const MaxAnalysisWorkers = 3

// maxStepRetries is the per-step retry budget of the file pipeline.
const maxStepRetries = 1

// runTimeout bounds one full pipeline run.
const runTimeout = 10 * time.Minute

// Trigger identifies one pipeline run. The caller fires and forgets; it
// polls the file's status field for completion.
type Trigger struct {
	WorkflowID string
	FileID     string
}

// Orchestrator sequences the pipeline steps per uploaded file and owns the
// worker pool that runs them.
type Orchestrator struct {
	db       core.DbClient
	obj      core.ObjectClient
	analyzer *analysis.Analyzer
	cache    *artifacts.Cache
	batcher  *embedder.Batcher
	engine   *suggest.Engine
	jobs     chan Trigger
}

// NewOrchestrator constructs the orchestrator with a bounded job queue (64).
func NewOrchestrator(db core.DbClient, obj core.ObjectClient, analyzer *analysis.Analyzer, cache *artifacts.Cache, batcher *embedder.Batcher, engine *suggest.Engine) *Orchestrator {
	return &Orchestrator{
		db:       db,
		obj:      obj,
		analyzer: analyzer,
		cache:    cache,
		batcher:  batcher,
		engine:   engine,
		jobs:     make(chan Trigger, 64),
	}
}

// Start launches the worker pool. Each worker pulls triggers off the queue
// and runs one file pipeline at a time; numWorkers is the hard concurrency
// ceiling for analysis runs.
func (o *Orchestrator) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = MaxAnalysisWorkers
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("pipeline: worker %d shutting down", w)
					return
				case trig := <-o.jobs:
					log.Printf("pipeline: worker %d processing file %s", w, trig.FileID)
					if err := o.ProcessFile(ctx, trig); err != nil {
						log.Printf("pipeline: file %s failed: %v", trig.FileID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a pipeline run. Blocks when the queue is full.
func (o *Orchestrator) Enqueue(trig Trigger) {
	o.jobs <- trig
}

// ProcessFile runs the eight pipeline steps for one file. Any unhandled step
// error lands in the failure handler, which writes "Error: <message>" to the
// file's status. That handler is the only path that writes an error status,
// so the UI never shows a file silently stuck in "Analyzing".
func (o *Orchestrator) ProcessFile(ctx context.Context, trig Trigger) error {
	runCtx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := o.runSteps(runCtx, trig); err != nil {
		o.failFile(trig.FileID, err)
		return err
	}
	return nil
}

func (o *Orchestrator) runSteps(ctx context.Context, trig Trigger) error {
	var (
		workflow *models.Workflow
		file     *models.WorkflowFile
		artifact *models.Artifact
		result   *analysis.Result
		output   *suggest.Output
	)

	// Step 1: fetch workflow + file. A missing row means the run raced a
	// deletion; that is fatal, not retriable.
	err := o.runStep(ctx, "fetch records", func(ctx context.Context) error {
		var err error
		workflow, err = o.db.GetWorkflowByID(ctx, trig.WorkflowID)
		if err != nil {
			return fmt.Errorf("get workflow: %w", err)
		}
		if workflow == nil {
			return fmt.Errorf("%w: workflow %s", core.ErrNotFound, trig.WorkflowID)
		}
		file, err = o.db.GetWorkflowFileByID(ctx, trig.FileID)
		if err != nil {
			return fmt.Errorf("get file: %w", err)
		}
		if file == nil {
			return fmt.Errorf("%w: file %s", core.ErrNotFound, trig.FileID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Step 2: mark the file analyzing.
	err = o.runStep(ctx, "set analyzing", func(ctx context.Context) error {
		return o.db.UpdateWorkflowFileStatus(ctx, file.ID, Analyzing().String())
	})
	if err != nil {
		return err
	}

	// Step 3: cache lookup by content hash.
	err = o.runStep(ctx, "cache lookup", func(ctx context.Context) error {
		var err error
		artifact, err = o.cache.Lookup(ctx, workflow.UserID, file.ContentHash)
		return err
	})
	if err != nil {
		return err
	}

	// Step 4: analyze. A hit short-circuits to the cached result; a miss
	// runs the full analyzer and persists the artifact + blob.
	err = o.runStep(ctx, "analyze", func(ctx context.Context) error {
		if artifact != nil {
			var err error
			result, err = o.cache.LoadResult(ctx, artifact)
			return err
		}

		bucket, key := ParseStorageURL(file.StorageURL)
		data, err := o.obj.GetFile(ctx, bucket, key)
		if err != nil {
			return fmt.Errorf("fetch upload: %w", err)
		}
		result, err = o.analyzer.Analyze(data, file.ContentType, file.ContentHash)
		if err != nil {
			return err
		}
		artifact, err = o.cache.Store(ctx, workflow.UserID, result)
		return err
	})
	if err != nil {
		return err
	}

	// Step 5: generate embeddings only if none exist for this artifact.
	err = o.runStep(ctx, "ensure embeddings", func(ctx context.Context) error {
		return o.batcher.EnsureEmbeddings(ctx, artifact, result)
	})
	if err != nil {
		return err
	}

	// Step 6: mark the file suggesting.
	err = o.runStep(ctx, "set suggesting", func(ctx context.Context) error {
		return o.db.UpdateWorkflowFileStatus(ctx, file.ID, SuggestingColumns().String())
	})
	if err != nil {
		return err
	}

	// Step 7: run column suggestion against the analysis result. The
	// column list is fetched fresh here rather than reusing anything from
	// earlier in the run: sibling files may have merged columns since.
	err = o.runStep(ctx, "suggest columns", func(ctx context.Context) error {
		existing, err := o.db.ListSuggestedColumns(ctx, workflow.ID)
		if err != nil {
			return fmt.Errorf("list columns: %w", err)
		}
		output, err = o.engine.Suggest(ctx, result, existing)
		return err
	})
	if err != nil {
		return err
	}

	// Step 8: merge into the workflow's column list and mark ready. Merge
	// is re-fetch-then-write: concurrently completing sibling files write
	// to the same list, and a blind overwrite would lose their updates.
	err = o.runStep(ctx, "merge columns", func(ctx context.Context) error {
		existing, err := o.db.ListSuggestedColumns(ctx, workflow.ID)
		if err != nil {
			return fmt.Errorf("list columns: %w", err)
		}
		merged := suggest.Merge(existing, workflow.ID, file.ID, output.Columns)
		if err := o.db.SaveSuggestedColumns(ctx, workflow.ID, merged); err != nil {
			return fmt.Errorf("save columns: %w", err)
		}
		return o.db.UpdateWorkflowFileStatus(ctx, file.ID, Ready().String())
	})
	return err
}

// runStep executes fn, retrying up to maxStepRetries times on retriable
// failures. Fatal taxonomy errors (content mismatch, extraction failure,
// missing rows) never retry.
func (o *Orchestrator) runStep(ctx context.Context, name string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= maxStepRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if isFatal(err) || ctx.Err() != nil {
			break
		}
		log.Printf("pipeline: step %q attempt %d failed, retrying: %v", name, attempt+1, err)
	}
	return fmt.Errorf("step %q: %w", name, err)
}

func isFatal(err error) bool {
	return errors.Is(err, core.ErrContentMismatch) ||
		errors.Is(err, core.ErrExtractionFailure) ||
		errors.Is(err, core.ErrNotFound)
}

// failFile is the per-run failure handler. It is registered with the run's
// identifying key only, deliberately decoupled from the trigger payload, and
// uses a fresh context because the run's own context may already be dead.
func (o *Orchestrator) failFile(fileID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	status := Failed(cause.Error()).String()
	if err := o.db.UpdateWorkflowFileStatus(ctx, fileID, status); err != nil {
		log.Printf("pipeline: writing error status for file %s failed: %v", fileID, err)
	}
}

// ParseStorageURL extracts the bucket and key from a virtual-hosted-style S3
// URL, e.g. https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf.
func ParseStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	if parts := strings.Split(host, "."); len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
