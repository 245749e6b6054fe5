package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/cache"
	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/token"
)

func newTestCache(t *testing.T, policy FlushPolicy) (*ContextCache, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	cc := NewContextCache(store, cache.NewInMemoryCache(), token.NewHeuristic(), policy, NewPatternTitleGenerator())
	return cc, store
}

func seedSession(t *testing.T, store *InMemoryStore, sessionID string, msgs []domain.ConversationMessage) {
	t.Helper()
	err := store.Save(context.Background(), &domain.ConversationSession{
		SessionID:      sessionID,
		UserID:         "u1",
		CreatedAt:      time.Now().UTC(),
		LastActivityAt: time.Now().UTC(),
		IsActive:       true,
		Messages:       msgs,
		MessageCount:   len(msgs),
		MaxMessages:    50,
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func turn(role, content string, offset time.Duration) domain.ConversationMessage {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.ConversationMessage{Role: role, Content: content, Timestamp: base.Add(offset)}
}

func TestGetBudgetedContext_WindowOfTenMostRecent(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{})
	ctx := context.Background()

	var msgs []domain.ConversationMessage
	for i := 0; i < 15; i++ {
		msgs = append(msgs, turn("user", fmt.Sprintf("message %d", i), time.Duration(i)*time.Minute))
	}
	seedSession(t, store, "s1", msgs)

	got, err := cc.GetBudgetedContext(ctx, "s1", 100000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 10 {
		t.Fatalf("context size = %d, want exactly 10", len(got))
	}
	for i := 0; i < 10; i++ {
		want := fmt.Sprintf("message %d", i+5)
		if got[i].Content != want {
			t.Errorf("context[%d] = %q, want %q (chronological order)", i, got[i].Content, want)
		}
	}
}

func TestGetBudgetedContext_BudgetNeverExceeded(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{})
	ctx := context.Background()
	est := token.NewHeuristic()

	// Five identical messages costing 8 tokens each; a budget of 20 fits
	// only the two newest.
	var msgs []domain.ConversationMessage
	for i := 0; i < 5; i++ {
		msgs = append(msgs, turn("user", "alpha beta", time.Duration(i)*time.Minute))
	}
	seedSession(t, store, "s1", msgs)

	budget := 20
	got, err := cc.GetBudgetedContext(ctx, "s1", budget, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got[0].Role != "system" {
		t.Fatalf("first message role = %s, want synthetic system summary", got[0].Role)
	}
	if !strings.Contains(got[0].Content, "alpha beta") {
		t.Error("summary should carry snippets of the collapsed turns")
	}

	kept := got[1:]
	sum := 0
	for _, m := range kept {
		sum += est.Message(m)
	}
	if sum > budget {
		t.Errorf("kept context costs %d tokens, budget is %d", sum, budget)
	}
	if len(kept) != 2 {
		t.Errorf("kept %d messages, want 2", len(kept))
	}
}

func TestGetBudgetedContext_EmptySession(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{})
	seedSession(t, store, "s1", nil)

	got, err := cc.GetBudgetedContext(context.Background(), "s1", 1000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty context, got %d messages", len(got))
	}
}

func TestGetBudgetedContext_SortsByTimestamp(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{})

	// Inserted out of order; timestamps are authoritative.
	msgs := []domain.ConversationMessage{
		turn("user", "third", 3*time.Minute),
		turn("user", "first", 1*time.Minute),
		turn("user", "second", 2*time.Minute),
	}
	seedSession(t, store, "s1", msgs)

	got, err := cc.GetBudgetedContext(context.Background(), "s1", 100000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("context[%d] = %q, want %q", i, got[i].Content, w)
		}
	}
}

func TestAppendMessage_FlushOnCompletedPair(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{Cadence: 2})
	ctx := context.Background()
	seedSession(t, store, "s1", nil)

	if err := cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "user", Content: "question"}); err != nil {
		t.Fatalf("append user: %v", err)
	}

	sess, _ := store.Get(ctx, "s1")
	if len(sess.Messages) != 0 {
		t.Fatalf("user turn alone should not flush, store has %d messages", len(sess.Messages))
	}

	if err := cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "assistant", Content: "answer", Model: "gpt-4o"}); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	sess, _ = store.Get(ctx, "s1")
	if len(sess.Messages) != 2 {
		t.Fatalf("completed pair should flush, store has %d messages", len(sess.Messages))
	}
	if sess.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", sess.MessageCount)
	}
}

func TestFlush_ForcesPersistence(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{Cadence: 2})
	ctx := context.Background()
	seedSession(t, store, "s1", nil)

	cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "user", Content: "pending turn"})

	if err := cc.Flush(ctx, "s1"); err != nil {
		t.Fatalf("flush: %v", err)
	}

	sess, _ := store.Get(ctx, "s1")
	if len(sess.Messages) != 1 {
		t.Fatalf("flush should persist the pending turn, store has %d messages", len(sess.Messages))
	}
}

func TestFlush_GeneratesTitleFromFirstUserMessage(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{Cadence: 2})
	ctx := context.Background()
	seedSession(t, store, "s1", nil)

	cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "user", Content: "What is event sourcing?"})
	cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "assistant", Content: "A persistence pattern."})

	sess, _ := store.Get(ctx, "s1")
	if sess.Title != "About event sourcing" {
		t.Errorf("title = %q, want %q", sess.Title, "About event sourcing")
	}

	// A later flush must not overwrite an existing title.
	cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "user", Content: "How do I start over?"})
	cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "assistant", Content: "Like this."})

	sess, _ = store.Get(ctx, "s1")
	if sess.Title != "About event sourcing" {
		t.Errorf("title changed to %q, want it preserved", sess.Title)
	}
}

func TestClear_DropsCachedMessages(t *testing.T) {
	cc, store := newTestCache(t, PairFlushPolicy{Cadence: 2})
	ctx := context.Background()
	seedSession(t, store, "s1", nil)

	cc.AppendMessage(ctx, "s1", domain.ConversationMessage{Role: "user", Content: "unpersisted"})

	if err := cc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	// After clearing, the cache reloads from the store, which never saw
	// the unpersisted turn.
	msgs, err := cc.Messages(ctx, "s1")
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected store state after clear, got %d messages", len(msgs))
	}
}

func TestPairFlushPolicy(t *testing.T) {
	tests := []struct {
		pending  int
		lastRole string
		want     bool
	}{
		{1, "user", false},
		{2, "user", false},
		{2, "assistant", true},
		{3, "assistant", false},
		{4, "assistant", true},
		{0, "assistant", false},
	}

	p := PairFlushPolicy{Cadence: 2}
	for _, tt := range tests {
		if got := p.ShouldFlush(tt.pending, tt.lastRole); got != tt.want {
			t.Errorf("ShouldFlush(%d, %s) = %v, want %v", tt.pending, tt.lastRole, got, tt.want)
		}
	}
}
