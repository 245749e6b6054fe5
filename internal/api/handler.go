// Package api is the HTTP boundary. It authenticates callers, enforces
// rate limits and maps domain errors to status codes; all orchestration
// logic stays behind the Orchestrator interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emreacar/prompt-optimizer/internal/auth"
	"github.com/emreacar/prompt-optimizer/internal/catalog"
	"github.com/emreacar/prompt-optimizer/internal/circuitbreaker"
	"github.com/emreacar/prompt-optimizer/internal/cost"
	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/llm"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
	"github.com/emreacar/prompt-optimizer/internal/notifications"
	"github.com/emreacar/prompt-optimizer/internal/ratelimit"
	"github.com/emreacar/prompt-optimizer/internal/session"
)

// Orchestrator is the core engine as the API sees it.
type Orchestrator interface {
	Process(ctx context.Context, req domain.OptimizationRequest, userID string) (*domain.OptimizationResponse, error)
}

// SessionCache is the slice of the session layer the handlers need.
type SessionCache interface {
	Messages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error)
	Flush(ctx context.Context, sessionID string) error
	Clear(ctx context.Context, sessionID string) error
}

type HandlerConfig struct {
	Orchestrator Orchestrator
	Users        auth.UserStore
	Limiter      ratelimit.Limiter
	Sessions     SessionCache
	Store        session.Store
	Catalog      *catalog.Catalog
	Tracker      cost.Tracker
	Client       llm.Client
	Breakers     *circuitbreaker.Manager
	Notifier     notifications.Notifier

	PublicModel     string
	PublicMaxPrompt int
}

type Handler struct {
	orchestrator Orchestrator
	users        auth.UserStore
	limiter      ratelimit.Limiter
	sessions     SessionCache
	store        session.Store
	catalog      *catalog.Catalog
	tracker      cost.Tracker
	client       llm.Client
	breakers     *circuitbreaker.Manager
	notifier     notifications.Notifier

	publicModel     string
	publicMaxPrompt int

	mux *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.PublicModel == "" {
		cfg.PublicModel = "gpt-4o-mini"
	}
	if cfg.PublicMaxPrompt <= 0 {
		cfg.PublicMaxPrompt = 4000
	}

	h := &Handler{
		orchestrator:    cfg.Orchestrator,
		users:           cfg.Users,
		limiter:         cfg.Limiter,
		sessions:        cfg.Sessions,
		store:           cfg.Store,
		catalog:         cfg.Catalog,
		tracker:         cfg.Tracker,
		client:          cfg.Client,
		breakers:        cfg.Breakers,
		notifier:        cfg.Notifier,
		publicModel:     cfg.PublicModel,
		publicMaxPrompt: cfg.PublicMaxPrompt,
		mux:             http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/optimize", h.handleOptimize)
	h.mux.HandleFunc("GET /api/models", h.handleListModels)
	h.mux.HandleFunc("GET /api/strategies", h.handleListStrategies)
	h.mux.HandleFunc("GET /api/optimization-types", h.handleListOptimizationTypes)
	h.mux.HandleFunc("POST /api/test-model", h.handleTestModel)
	h.mux.HandleFunc("GET /api/usage", h.handleUsage)
	h.mux.HandleFunc("GET /api/rate-limit", h.handleRateLimitInfo)

	h.mux.HandleFunc("POST /api/sessions", h.handleCreateSession)
	h.mux.HandleFunc("GET /api/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /api/sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("GET /api/sessions/{id}/history", h.handleSessionHistory)
	h.mux.HandleFunc("DELETE /api/sessions/{id}", h.handleDeleteSession)

	h.mux.HandleFunc("POST /api/public/chat", h.handlePublicChat)

	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Request-ID") == "" {
		r.Header.Set("X-Request-ID", uuid.NewString())
	}
	w.Header().Set("X-Request-ID", r.Header.Get("X-Request-ID"))
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, ratelimit.OpOptimize) {
		return
	}

	var req domain.OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.orchestrator.Process(ctx, req, user.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": h.catalog.Enabled(),
	})
}

func (h *Handler) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"strategies": []string{
			string(domain.StrategyQuality),
			string(domain.StrategySpeed),
			string(domain.StrategyConsensus),
			string(domain.StrategyCostEffective),
		},
	})
}

func (h *Handler) handleListOptimizationTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"optimization_types": []string{
			string(domain.OptimizeClarity),
			string(domain.OptimizeTechnical),
			string(domain.OptimizeCreative),
			string(domain.OptimizeAnalytical),
		},
	})
}

type testModelRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

func (h *Handler) handleTestModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, "test-model") {
		return
	}

	var req testModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "model is required")
		return
	}
	if m, found := h.catalog.Get(req.Model); !found || !m.Enabled {
		writeError(w, http.StatusBadRequest, "unknown or disabled model")
		return
	}

	start := time.Now()
	resp, err := h.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: req.Model,
		Messages: []domain.ChatMessage{
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model":      req.Model,
		"response":   resp.FirstContent(),
		"usage":      resp.Usage,
		"latency_ms": time.Since(start).Milliseconds(),
	})
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = parsed
	}

	summary, err := h.tracker.UserSummary(ctx, user.ID, since)
	if err != nil {
		slog.Error("usage summary failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRateLimitInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	info, err := h.limiter.PublicInfo(ctx, clientAddr(r))
	if err != nil {
		slog.Error("rate limit info failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// authenticate resolves the Bearer API key to a user; it writes the error
// response itself so handlers can early-return.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	apiKey := extractAPIKey(r)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "missing API key")
		return nil, false
	}

	user, err := h.users.GetByAPIKey(r.Context(), apiKey)
	if err != nil {
		slog.Warn("invalid API key", "request_id", r.Header.Get("X-Request-ID"))
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return nil, false
	}

	return user, true
}

func (h *Handler) checkLimit(w http.ResponseWriter, r *http.Request, userID, operation string) bool {
	allowed, info, err := h.limiter.Check(r.Context(), userID, operation)
	if err != nil {
		slog.Error("rate limiter error", "operation", operation, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}

	setRateLimitHeaders(w, info)

	if !allowed {
		metrics.RecordRateLimitHit(operation)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// writeDomainError translates core errors into the public status code
// space without leaking internals.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	switch {
	case errors.Is(err, domain.ErrEmptyPrompt),
		errors.Is(err, domain.ErrInvalidStrategy),
		errors.Is(err, domain.ErrPromptTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSessionForbidden):
		// Ownership mismatches read as not-found so session ids cannot
		// be probed.
		writeError(w, http.StatusNotFound, "session not found")
	case domain.IsTimeout(err):
		slog.Warn("request timed out", "request_id", requestID, "error", err)
		writeError(w, http.StatusRequestTimeout, "request timed out")
	case errors.Is(err, domain.ErrRateLimitExceeded):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case domain.IsUpstream(err):
		slog.Error("upstream failure", "request_id", requestID, "error", err)
		writeError(w, http.StatusBadGateway, "upstream model failure")
	default:
		slog.Error("internal error", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func setRateLimitHeaders(w http.ResponseWriter, info domain.RateLimitInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", info.ResetAt.Format(time.RFC3339))
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
