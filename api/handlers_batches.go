package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fintechx-ops/core/batch"
)

type createBatchRequest struct {
	Name        string           `json:"name"`
	Type        string           `json:"batch_type"`
	Description string           `json:"description"`
	Metadata    map[string]any   `json:"metadata"`
	Items       []map[string]any `json:"items"`
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := batch.ParseType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.batches.CreateJob(req.Name, t, req.Items, req.Description, req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, _ := s.batches.GetJob(id)
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if raw := q.Get("status"); raw != "" {
		status, err := batch.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": s.batches.ListJobsByStatus(status)})
		return
	}
	if raw := q.Get("type"); raw != "" {
		t, err := batch.ParseType(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": s.batches.ListJobsByType(t)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.batches.ListJobs()})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	job, ok := s.batches.GetJob(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "batch job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	err := s.batches.StartJob(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, batch.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, batch.ErrJobNotPending), errors.Is(err, batch.ErrNoProcessor):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
	}
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	err := s.batches.DeleteJob(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, batch.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, batch.ErrJobProcessing):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleBatchProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, ok := s.batches.GetProgress(id)
	if !ok {
		writeError(w, http.StatusNotFound, "batch job not found")
		return
	}
	job, _ := s.batches.GetJob(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"progress":         progress,
		"status":           job.Status,
		"processed_items":  job.ProcessedItems,
		"successful_items": job.SuccessfulItems,
		"failed_items":     job.FailedItems,
		"total_items":      job.TotalItems,
	})
}

func (s *Server) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := trimLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="batch-`+id+`.csv"`)
		if err := s.batches.ExportCSV(w, id); err != nil {
			s.logger.Errorf("batch csv export: %v", err)
		}
	case "json":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="batch-`+id+`.json"`)
		if err := s.batches.ExportJSON(w, id); err != nil {
			s.logger.Errorf("batch json export: %v", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "unsupported export format: "+format)
	}
}

// handleImportBatchCSV accepts a CSV body; the batch type and optional
// name come from query parameters.
func (s *Server) handleImportBatchCSV(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	q := r.URL.Query()
	t, err := batch.ParseType(q.Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.batches.ImportCSV(http.MaxBytesReader(w, r.Body, 50<<20), t, strings.TrimSpace(q.Get("name")), q.Get("description"), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, _ := s.batches.GetJob(id)
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

func (s *Server) handleListArchivedBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if raw := q.Get("status"); raw != "" {
		status, err := batch.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows, err := s.archive.ListByStatus(r.Context(), status, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "archive query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"batches": rows})
		return
	}
	rows, err := s.archive.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": rows})
}

func (s *Server) handleGetArchivedBatch(w http.ResponseWriter, r *http.Request) {
	job, err := s.archive.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "archived batch not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}
