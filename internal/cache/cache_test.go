package cache

import (
	"context"
	"testing"
	"time"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

func msgs(contents ...string) []domain.ConversationMessage {
	out := make([]domain.ConversationMessage, len(contents))
	for i, c := range contents {
		out[i] = domain.ConversationMessage{Role: "user", Content: c, Timestamp: time.Now()}
	}
	return out
}

func TestInMemoryCache_SetGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("missing session should not be found")
	}

	stored := msgs("one", "two")
	if err := c.Set(ctx, "s1", stored, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := c.Get(ctx, "s1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].Content != "one" || got[1].Content != "two" {
		t.Errorf("got %v, want the stored messages", got)
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "s1", msgs("one"), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get(ctx, "s1"); ok {
		t.Error("expired entry should miss")
	}
}

func TestInMemoryCache_Delete(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	c.Set(ctx, "s1", msgs("one"), time.Minute)
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.Get(ctx, "s1"); ok {
		t.Error("deleted entry should miss")
	}
}

func TestInMemoryCache_CopiesOnReadAndWrite(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	original := msgs("one")
	c.Set(ctx, "s1", original, time.Minute)

	// Mutating the caller's slice must not affect the cached copy.
	original[0].Content = "mutated"

	got, _ := c.Get(ctx, "s1")
	if got[0].Content != "one" {
		t.Error("cache stored a reference instead of a copy")
	}

	// Mutating the returned slice must not affect later reads.
	got[0].Content = "mutated again"
	again, _ := c.Get(ctx, "s1")
	if again[0].Content != "one" {
		t.Error("cache handed out its internal slice")
	}
}
