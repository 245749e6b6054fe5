package session

import (
	"strings"
	"testing"
)

func TestPatternTitleGenerator(t *testing.T) {
	g := NewPatternTitleGenerator()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"how-to pattern", "How do I deploy a container?", "How to deploy a container"},
		{"what-is pattern", "What is dependency injection?", "About dependency injection"},
		{"why pattern", "Why is my query slow?", "Why my query slow"},
		{"create pattern", "Write a haiku about rivers", "Creating haiku about rivers"},
		{"explain pattern", "Explain garbage collection", "Explaining garbage collection"},
		{"help pattern", "Help me with unit testing", "Help with unit testing"},
		{"plain question falls back to text", "Is water wet?", "Is water wet"},
		{"statement used verbatim", "My deployment keeps crashing", "My deployment keeps crashing"},
		{"empty input", "   ", "New conversation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.GenerateTitle(tt.input); got != tt.want {
				t.Errorf("GenerateTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPatternTitleGenerator_TruncatesLongMessages(t *testing.T) {
	g := NewPatternTitleGenerator()

	long := strings.Repeat("database ", 20)
	title := g.GenerateTitle(long)

	if len(title) > titleMaxLen+3 {
		t.Errorf("title length = %d, want at most %d", len(title), titleMaxLen+3)
	}
	if !strings.HasSuffix(title, "...") {
		t.Errorf("truncated title should end with ellipsis, got %q", title)
	}
}
