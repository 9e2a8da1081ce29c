// Package api provides the HTTP trigger and status API for shopdeploy.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/shopdeploy/internal/core/validation"
	"github.com/artpar/shopdeploy/internal/pipeline"
	apimw "github.com/artpar/shopdeploy/internal/shell/api/middleware"
	"github.com/artpar/shopdeploy/internal/shell/api/openapi"
	"github.com/artpar/shopdeploy/internal/shell/git"
	"github.com/artpar/shopdeploy/internal/shell/store"
)

// Deployer runs the deploy pipeline. *pipeline.Pipeline implements it.
type Deployer interface {
	Deploy(ctx context.Context, from, to string, dryRun bool) (*pipeline.Summary, error)
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	deployer Deployer
	history  store.Store
	gatherer prometheus.Gatherer
	token    string
	logger   *slog.Logger

	// running serialises deploys; a concurrent request gets 409.
	running sync.Mutex
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// History is the run store. Nil disables the /runs endpoints.
	History store.Store
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// Token, when set, is required as a bearer token on POST /api/v1/deploy.
	Token string
}

// NewHandler creates a new API handler.
func NewHandler(d Deployer, cfg HandlerConfig, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		deployer: d,
		history:  cfg.History,
		gatherer: cfg.Gatherer,
		token:    cfg.Token,
		logger:   l.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	spec := newGenerator(h.token != "")
	validate := func(next http.Handler) http.Handler { return next }
	if v, err := openapi.NewValidator(spec, h.writeValidationError); err != nil {
		h.logger.Error("request validation disabled", "error", err)
	} else {
		validate = v.Middleware
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		r.Get("/health", h.handleHealth)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/openapi.json", spec.Handler())
			r.With(apimw.RequireToken(h.token, h.logger), validate).Post("/deploy", h.handleDeploy)

			r.Route("/runs", func(r chi.Router) {
				r.Use(validate)
				r.Get("/", h.handleListRuns)
				r.Get("/{id}", h.handleGetRun)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Deploy Handlers
// =============================================================================

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	if field, msg := validation.ValidateRevisions(req.From, req.To); field != "" {
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "validation_error", Field: field})
		return
	}

	locked := h.running.TryLock()
	if allowed, reason := validation.CanDeploy(!locked); !allowed {
		h.writeError(w, http.StatusConflict, reason, "deploy_in_progress")
		return
	}
	defer h.running.Unlock()

	// The deploy finishes even if the client goes away.
	ctx := context.WithoutCancel(r.Context())
	summary, err := h.deployer.Deploy(ctx, req.From, req.To, req.DryRun)
	if err != nil {
		if errors.Is(err, git.ErrSourceUnavailable) {
			h.writeError(w, http.StatusServiceUnavailable, err.Error(), "source_unavailable")
			return
		}
		h.logger.Error("deploy failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error(), "deploy_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, summaryToResponse(summary))
}

// =============================================================================
// Run Handlers
// =============================================================================

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "run history is disabled", "history_disabled")
		return
	}

	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts.Operation = r.URL.Query().Get("operation")
	opts = opts.Normalize()

	runs, err := h.history.ListRuns(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list runs", "internal_error")
		return
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "run history is disabled", "history_disabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := h.history.GetRun(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "run not found", "run_not_found")
			return
		}
		h.logger.Error("failed to get run", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
