package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mathlabs/evaluator/internal/model"
	"github.com/mathlabs/evaluator/internal/store"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store      *store.Store
	adminToken string
	now        func() time.Time
}

// New creates a new Handler. An empty adminToken disables the upload
// endpoint.
func New(s *store.Store, adminToken string) *Handler {
	return &Handler{store: s, adminToken: adminToken, now: time.Now}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/runs", h.handleListRuns)
	r.Get("/runs/latest", h.handleLatestRun)
	r.Get("/runs/{runID}", h.handleGetRun)
	r.Get("/runs/{runID}/leaderboard", h.handleLeaderboard)

	r.Get("/questions", h.handleListQuestions)
	r.Get("/questions/{problemID}", h.handleGetQuestion)

	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Post("/questions/upload", h.handleUploadQuestions)
	})
}

// runListItem is a run without its per-question blocks.
type runListItem struct {
	RunID           string           `json:"run_id"`
	EvaluatedAt     string           `json:"evaluated_at"`
	Mode            model.Mode       `json:"mode"`
	Sampler         model.Sampler    `json:"sampler"`
	QuestionCount   int              `json:"question_count"`
	ValidationModel string           `json:"validation_model"`
	StudentModels   []string         `json:"student_models"`
	Summary         model.RunSummary `json:"summary"`
	Error           string           `json:"error,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.RunCount()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "runs": n})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]runListItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, runListItem{
			RunID:           run.RunID,
			EvaluatedAt:     run.EvaluatedAt,
			Mode:            run.Mode,
			Sampler:         run.Sampler,
			QuestionCount:   run.QuestionCount,
			ValidationModel: run.ValidationModel,
			StudentModels:   run.StudentModels,
			Summary:         run.Summary,
			Error:           run.Error,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.LatestRun()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no runs")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, chi.URLParam(r, "runID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, model.BuildLeaderboard(*run))
}

func (h *Handler) lookupRun(w http.ResponseWriter, id string) (*model.RunRecord, bool) {
	run, err := h.store.GetRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found: "+id)
		return nil, false
	}
	return run, true
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.store.ListQuestionsFiltered(r.URL.Query().Get("difficulty"), r.URL.Query().Get("topic"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if qs == nil {
		qs = []model.Question{}
	}
	writeJSON(w, http.StatusOK, qs)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "problemID")
	q, err := h.store.GetQuestion(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if q == nil {
		writeError(w, http.StatusNotFound, "question not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
