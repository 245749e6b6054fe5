package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
	"github.com/emreacar/prompt-optimizer/internal/notifications"
)

type publicChatRequest struct {
	Prompt string `json:"prompt"`
}

type publicChatResponse struct {
	Response  string    `json:"response"`
	Model     string    `json:"model"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// handlePublicChat serves anonymous single-turn chat. No memory, a pinned
// cheap model, and a strict hourly per-address cap.
func (h *Handler) handlePublicChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr := clientAddr(r)

	allowed, info, err := h.limiter.CheckPublic(ctx, addr)
	if err != nil {
		slog.Error("public rate limiter error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	setRateLimitHeaders(w, info)

	if !allowed {
		metrics.RecordRateLimitHit("public_chat")
		h.notifyAbuse(addr, info)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req publicChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if len(prompt) > h.publicMaxPrompt {
		writeError(w, http.StatusBadRequest, "prompt too long")
		return
	}

	resp, err := h.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: h.publicModel,
		Messages: []domain.ChatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	text := resp.FirstContent()
	if text == "" {
		h.writeDomainError(w, r, domain.NewUpstreamError(h.publicModel, domain.ErrEmptyCompletion))
		return
	}

	writeJSON(w, http.StatusOK, publicChatResponse{
		Response:  text,
		Model:     h.publicModel,
		Remaining: info.Remaining,
		ResetAt:   info.ResetAt,
	})
}

// notifyAbuse publishes a throttling event once the caller keeps hammering
// a fully exhausted window.
func (h *Handler) notifyAbuse(addr string, info domain.RateLimitInfo) {
	if h.notifier == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := h.notifier.Publish(ctx, notifications.Event{
			Type:    notifications.EventPublicRateLimited,
			Subject: addr,
			Message: "public chat rate limit exceeded",
			Data: map[string]any{
				"limit":    info.Limit,
				"reset_at": info.ResetAt,
			},
		})
		if err != nil {
			slog.Warn("abuse notification failed", "error", err)
		}
	}()
}
