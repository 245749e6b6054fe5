package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

func newSession(id, userID string, lastActivity time.Time) *domain.ConversationSession {
	return &domain.ConversationSession{
		SessionID:      id,
		UserID:         userID,
		CreatedAt:      lastActivity,
		LastActivityAt: lastActivity,
		IsActive:       true,
		MaxMessages:    50,
	}
}

func TestInMemoryStore_SaveGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	sess := newSession("s1", "u1", time.Now())
	sess.Messages = []domain.ConversationMessage{{Role: "user", Content: "hi", Timestamp: time.Now()}}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || len(got.Messages) != 1 {
		t.Errorf("got %+v, want saved session", got)
	}

	// The store must hand out copies; mutating the result must not leak
	// back into stored state.
	got.Messages[0].Content = "mutated"
	again, _ := store.Get(ctx, "s1")
	if again.Messages[0].Content != "hi" {
		t.Error("store leaked its internal message slice")
	}
}

func TestInMemoryStore_SoftDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	store.Save(ctx, newSession("s1", "u1", time.Now()))

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("deleted session should not resolve")
	}
	if err := store.Delete(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("double delete should report not found")
	}
}

func TestInMemoryStore_ListByUser(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	base := time.Now()
	store.Save(ctx, newSession("old", "u1", base.Add(-2*time.Hour)))
	store.Save(ctx, newSession("newest", "u1", base))
	store.Save(ctx, newSession("mid", "u1", base.Add(-time.Hour)))
	store.Save(ctx, newSession("other", "u2", base))
	store.Delete(ctx, "mid")

	sessions, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	want := []string{"newest", "old"}
	if len(sessions) != len(want) {
		t.Fatalf("got %d sessions, want %d", len(sessions), len(want))
	}
	for i, id := range want {
		if sessions[i].SessionID != id {
			t.Errorf("sessions[%d] = %s, want %s", i, sessions[i].SessionID, id)
		}
	}
}
