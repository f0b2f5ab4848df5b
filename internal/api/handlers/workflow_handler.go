package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Skema/internal/core/cellcompute"
	"github.com/markdave123-py/Skema/internal/core/pipeline"
	"github.com/markdave123-py/Skema/internal/models"
	"github.com/markdave123-py/Skema/internal/services"
)

type WorkflowHandler struct {
	workflows    *services.WorkflowService
	orchestrator *pipeline.Orchestrator
	cells        *cellcompute.Engine
}

func NewWorkflowHandler(workflows *services.WorkflowService, orch *pipeline.Orchestrator, cells *cellcompute.Engine) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, orchestrator: orch, cells: cells}
}

type createWorkflowRequest struct {
	Name string `json:"name"`
}

func (h *WorkflowHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	wf, err := h.workflows.Create(r.Context(), userID, req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, wf)
}

func (h *WorkflowHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	workflows, err := h.workflows.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, workflows)
}

// GetWorkflow is the poll target: it returns the workflow with its files
// (statuses included), columns and computed cells in one payload.
func (h *WorkflowHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}

	files, err := h.workflows.ListFiles(r.Context(), wf.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	columns, err := h.workflows.ListColumns(r.Context(), wf.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cells, err := h.workflows.ListCells(r.Context(), wf.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"workflow": wf,
		"files":    files,
		"columns":  columns,
		"cells":    cells,
	})
}

func (h *WorkflowHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}

	files, err := h.workflows.ListFiles(r.Context(), wf.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, files)
}

// UploadFile stores the document, records the file row and enqueues the
// pipeline run. Fire-and-forget: the response carries the file in
// "Analyzing" state and the client polls for progress.
func (h *WorkflowHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}

	r.ParseMultipartForm(52 << 20) // 52 MB

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}

	// Sanitize filename to prevent path traversal or invalid characters.
	cleanFilename := filepath.Base(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	record, err := h.workflows.UploadFile(uploadCtx, userID, wf.ID, cleanFilename, contentType, data)
	if err != nil {
		log.Printf("upload failed for workflow %s: %v", wf.ID, err)
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	h.orchestrator.Enqueue(pipeline.Trigger{WorkflowID: wf.ID, FileID: record.ID})

	writeJSON(w, record)
}

// RetryFile re-triggers the pipeline for a file stuck in an error state.
func (h *WorkflowHandler) RetryFile(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}
	fileID := chi.URLParam(r, "fileID")

	file, err := h.workflows.RetryFile(r.Context(), fileID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.orchestrator.Enqueue(pipeline.Trigger{WorkflowID: wf.ID, FileID: file.ID})
	writeJSON(w, file)
}

// ComputeColumn kicks off cell computation for one column across the
// workflow's ready files. Runs in the background like the analysis pipeline.
func (h *WorkflowHandler) ComputeColumn(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.ownedWorkflow(w, r)
	if !ok {
		return
	}
	columnID := chi.URLParam(r, "columnID")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := h.cells.ComputeColumn(ctx, wf.ID, columnID); err != nil {
			log.Printf("cell compute for column %s failed: %v", columnID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "computing"}); err != nil {
		log.Printf("write response: %v", err)
	}
}

// ownedWorkflow loads the workflow from the URL and enforces ownership.
func (h *WorkflowHandler) ownedWorkflow(w http.ResponseWriter, r *http.Request) (*models.Workflow, bool) {
	userID, ok := r.Context().Value("user_id").(string)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	wf, err := h.workflows.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil || wf == nil {
		http.Error(w, "workflow not found", http.StatusNotFound)
		return nil, false
	}
	if wf.UserID != userID {
		http.Error(w, "you are not authorized to access this workflow", http.StatusForbidden)
		return nil, false
	}
	return wf, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
