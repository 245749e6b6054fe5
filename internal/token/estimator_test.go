package token

import (
	"testing"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

func TestHeuristic_Text(t *testing.T) {
	e := NewHeuristic()

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		// 1 word, 5 chars: ceil(0.75 + 5*0.25/4) = ceil(1.0625) = 2
		{"single word", "hello", 2},
		// 2 words, 11 chars: ceil(1.5 + 11*0.0625) = ceil(2.1875) = 3
		{"two words", "hello world", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestHeuristic_TextGrowsWithLength(t *testing.T) {
	e := NewHeuristic()

	short := e.Text("one two three")
	long := e.Text("one two three four five six seven eight nine ten")
	if long <= short {
		t.Errorf("longer text should cost more: short=%d long=%d", short, long)
	}
}

func TestHeuristic_MessageAddsOverhead(t *testing.T) {
	e := NewHeuristic()

	msg := domain.ChatMessage{Role: "user", Content: "hello"}
	got := e.Message(msg)
	want := e.Text("user") + e.Text("hello") + perMessageOverhead
	if got != want {
		t.Errorf("Message = %d, want %d", got, want)
	}
}

func TestRequest_AddsRequestOverhead(t *testing.T) {
	e := NewHeuristic()

	msgs := []domain.ChatMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	}

	got := Request(e, msgs)
	want := perRequestOverhead + e.Message(msgs[0]) + e.Message(msgs[1])
	if got != want {
		t.Errorf("Request = %d, want %d", got, want)
	}
}

func TestConversationMessage_MatchesChatMessage(t *testing.T) {
	e := NewHeuristic()

	conv := domain.ConversationMessage{Role: "user", Content: "estimate me"}
	chat := domain.ChatMessage{Role: "user", Content: "estimate me"}

	if ConversationMessage(e, conv) != e.Message(chat) {
		t.Error("conversation and chat estimates should agree for equal content")
	}
}
