package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/middleware"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/adapter/http/templates"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
)

const maxRequestBody = 64 << 10

type JobService interface {
	SubmitTranslation(ctx context.Context, sourceReference string, outputs []domain.OutputFormat, requestedBy string) (*domain.TranslationJob, error)
	Get(ctx context.Context, id string) (*domain.TranslationJob, error)
	List(ctx context.Context, limit int) ([]*domain.TranslationJob, error)
	Cancel(ctx context.Context, id string) (*domain.TranslationJob, error)
	Retry(ctx context.Context, id, requestedBy string) (*domain.TranslationJob, error)
}

type Handlers struct {
	jobs    JobService
	version string
}

func NewHandlers(jobs JobService, version string) *Handlers {
	return &Handlers{
		jobs:    jobs,
		version: version,
	}
}

type submitRequest struct {
	SourceReference  string                `json:"sourceReference"`
	RequestedOutputs []domain.OutputFormat `json:"requestedOutputs"`
}

type errorResponse struct {
	Error string                 `json:"error"`
	Job   *domain.TranslationJob `json:"job,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug.Printf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps the domain error taxonomy onto HTTP status codes. A failed
// submission still reports the job it left behind.
func writeError(w http.ResponseWriter, r *http.Request, err error, job *domain.TranslationJob) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrIllegalTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Job: job})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrSubmissionFailed):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "translation submission failed", Job: job})
	default:
		logger.Error.Printf("%s %s: %v", r.Method, logger.SanitizeForLog(r.URL.Path), err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.version})
	}
}

func (h *Handlers) Dashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.jobs.List(r.Context(), 0)
		if err != nil {
			logger.Error.Printf("dashboard list error: %v", err)
			jobs = []*domain.TranslationJob{}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.Dashboard(jobs, currentUser(r.Context()), middleware.Token(r.Context())).Render(r.Context(), w)
	}
}

func (h *Handlers) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		job, err := h.jobs.SubmitTranslation(r.Context(), req.SourceReference, req.RequestedOutputs, currentUser(r.Context()))
		if err != nil {
			writeError(w, r, err, job)
			return
		}
		w.Header().Set("Location", "/translations/"+job.ID)
		writeJSON(w, http.StatusCreated, job)
	}
}

func (h *Handlers) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		jobs, err := h.jobs.List(r.Context(), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if jobs == nil {
			jobs = []*domain.TranslationJob{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	}
}

func (h *Handlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// Row renders the dashboard row fragment for one job.
func (h *Handlers) Row() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.JobRow(job).Render(r.Context(), w)
	}
}

func (h *Handlers) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Cancel(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, r, err, job)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (h *Handlers) Retry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := h.jobs.Retry(r.Context(), r.PathValue("id"), currentUser(r.Context()))
		if err != nil {
			writeError(w, r, err, job)
			return
		}
		w.Header().Set("Location", "/translations/"+job.ID)
		writeJSON(w, http.StatusCreated, job)
	}
}
