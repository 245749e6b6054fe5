package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/ratelimit"
)

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, ratelimit.OpSession) {
		return
	}

	now := time.Now().UTC()
	sess := &domain.ConversationSession{
		SessionID:      uuid.NewString(),
		UserID:         user.ID,
		CreatedAt:      now,
		LastActivityAt: now,
		IsActive:       true,
		MaxMessages:    50,
	}

	if err := h.store.Save(ctx, sess); err != nil {
		slog.Error("create session failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, ratelimit.OpSession) {
		return
	}

	sessions, err := h.store.ListByUser(ctx, user.ID)
	if err != nil {
		slog.Error("list sessions failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Message logs are heavy; the list view only carries metadata.
	for _, s := range sessions {
		s.Messages = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, ratelimit.OpSession) {
		return
	}

	sess, ok := h.ownedSession(w, r, user.ID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, ratelimit.OpSession) {
		return
	}

	sess, ok := h.ownedSession(w, r, user.ID)
	if !ok {
		return
	}

	// Flush first so history reads see the latest in-memory turns.
	if err := h.sessions.Flush(ctx, sess.SessionID); err != nil {
		slog.Warn("history flush failed", "session_id", sess.SessionID, "error", err)
	}

	msgs, err := h.sessions.Messages(ctx, sess.SessionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.SessionID,
		"messages":   msgs,
	})
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if !h.checkLimit(w, r, user.ID, ratelimit.OpSession) {
		return
	}

	sess, ok := h.ownedSession(w, r, user.ID)
	if !ok {
		return
	}

	if err := h.sessions.Clear(ctx, sess.SessionID); err != nil {
		slog.Warn("session cache clear failed", "session_id", sess.SessionID, "error", err)
	}

	if err := h.store.Delete(ctx, sess.SessionID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedSession loads the path session and enforces ownership. Foreign
// sessions read as not-found.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request, userID string) (*domain.ConversationSession, bool) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return nil, false
	}

	sess, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			h.writeDomainError(w, r, err)
		}
		return nil, false
	}

	if sess.UserID != userID {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}

	return sess, true
}
