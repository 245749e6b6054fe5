package rewriter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// fakeClient scripts upstream behavior per call and records every request.
type fakeClient struct {
	mu       sync.Mutex
	requests []domain.ChatRequest
	respond  func(req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (f *fakeClient) ChatCompletion(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func textResponse(content string) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{
		Choices: []domain.Choice{{Message: &domain.ChatMessage{Role: "assistant", Content: content}}},
	}, nil
}

type fakeSessions struct {
	msgs []domain.ConversationMessage
}

func (f *fakeSessions) Messages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error) {
	return f.msgs, nil
}

func TestRewrite_SkipsLongPrompts(t *testing.T) {
	client := &fakeClient{respond: func(req domain.ChatRequest) (*domain.ChatResponse, error) {
		return textResponse("should never be called")
	}}
	r := New(client, Config{SkipLength: 50})

	prompt := strings.Repeat("a detailed prompt segment ", 5)
	got := r.Rewrite(context.Background(), prompt, domain.OptimizeClarity, "gpt-4o-mini", nil)

	if got != prompt {
		t.Error("long prompts must pass through unchanged")
	}
	if client.callCount() != 0 {
		t.Errorf("expected zero upstream calls, got %d", client.callCount())
	}
}

func TestRewrite_SkipsNonVaguePrompts(t *testing.T) {
	client := &fakeClient{respond: func(req domain.ChatRequest) (*domain.ChatResponse, error) {
		return textResponse("should never be called")
	}}
	r := New(client, Config{})

	prompt := "Summarize chapter 4 of my architecture handbook"
	got := r.Rewrite(context.Background(), prompt, domain.OptimizeClarity, "gpt-4o-mini", nil)

	if got != prompt {
		t.Error("non-vague prompts must pass through unchanged")
	}
	if client.callCount() != 0 {
		t.Errorf("expected zero upstream calls, got %d", client.callCount())
	}
}

func TestRewrite_FallsBackOnUpstreamError(t *testing.T) {
	client := &fakeClient{respond: func(req domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, errors.New("upstream down")
	}}
	r := New(client, Config{})

	prompt := "What are the benefits?"
	got := r.Rewrite(context.Background(), prompt, domain.OptimizeClarity, "gpt-4o-mini", nil)

	if got != prompt {
		t.Errorf("failed rewrite must return the input byte-for-byte, got %q", got)
	}
}

func TestRewrite_CleansQuotesAndLabels(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"surrounding quotes", `"What are the concrete benefits of microservices?"`, "What are the concrete benefits of microservices?"},
		{"label prefix", "Rewritten question: What should I measure first?", "What should I measure first?"},
		{"clean already", "Which option is cheaper?", "Which option is cheaper?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{respond: func(req domain.ChatRequest) (*domain.ChatResponse, error) {
				return textResponse(tt.raw)
			}}
			r := New(client, Config{})

			got := r.Rewrite(context.Background(), "What are the benefits?", domain.OptimizeClarity, "gpt-4o-mini", nil)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewrite_RejectsDegenerateResults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"too short", "ok"},
		{"single word", "benefits?"},
		{"too long", strings.Repeat("word ", 100)},
		{"empty", ""},
	}

	prompt := "What are the benefits?"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{respond: func(req domain.ChatRequest) (*domain.ChatResponse, error) {
				return textResponse(tt.raw)
			}}
			r := New(client, Config{})

			if got := r.Rewrite(context.Background(), prompt, domain.OptimizeClarity, "gpt-4o-mini", nil); got != prompt {
				t.Errorf("degenerate result %q should fall back to the original", tt.raw)
			}
		})
	}
}

func TestRewrite_TemperatureFollowsOptimizationType(t *testing.T) {
	var captured []domain.ChatRequest
	client := &fakeClient{respond: func(req domain.ChatRequest) (*domain.ChatResponse, error) {
		captured = append(captured, req)
		return textResponse("What are the measurable benefits of this approach?")
	}}
	r := New(client, Config{})

	r.Rewrite(context.Background(), "What are the benefits?", domain.OptimizeCreative, "gpt-4o-mini", nil)

	if len(captured) != 1 {
		t.Fatalf("expected one upstream call, got %d", len(captured))
	}
	if captured[0].Temperature == nil || *captured[0].Temperature != 0.7 {
		t.Errorf("creative rewrite temperature = %v, want 0.7", captured[0].Temperature)
	}
}

func TestRewriteWithSession_InjectsContextTopic(t *testing.T) {
	sessions := &fakeSessions{msgs: []domain.ConversationMessage{
		{Role: "user", Content: "I have been learning Python for data work"},
		{Role: "assistant", Content: "Great choice for that domain."},
	}}

	client := &fakeClient{}
	client.respond = func(req domain.ChatRequest) (*domain.ChatResponse, error) {
		system := req.Messages[0].Content
		if strings.Contains(system, "Extract the single main topic") {
			// Force the deterministic keyword fallback.
			return nil, errors.New("topic model unavailable")
		}
		if !strings.Contains(system, "Python") {
			t.Errorf("rewrite instruction should mention the extracted topic, got %q", system)
		}
		return textResponse("What are the benefits of Python?")
	}

	r := New(client, Config{})
	got := r.RewriteWithSession(context.Background(), "What are the benefits?", domain.OptimizeClarity, "gpt-4o-mini", "s1", sessions)

	if got != "What are the benefits of Python?" {
		t.Errorf("got %q, want the topic-injected rewrite", got)
	}
}

func TestMatchKeyword_PreservesOriginalCasing(t *testing.T) {
	got := matchKeyword("We deployed Kubernetes last sprint")
	if got != "Kubernetes" {
		t.Errorf("matchKeyword = %q, want Kubernetes", got)
	}
	if matchKeyword("nothing relevant here at all") != "" {
		t.Error("no keyword should match")
	}
}

func TestFirstLongWord_SkipsCommonWords(t *testing.T) {
	got := firstLongWord("could would about elasticsearch cluster")
	if got != "elasticsearch" {
		t.Errorf("firstLongWord = %q, want elasticsearch", got)
	}
}
