package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// Tiktoken counts tokens with the cl100k_base BPE used by the GPT-4 family.
// Slower than the heuristic but exact for OpenAI-compatible backends.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

func NewTiktoken() (*Tiktoken, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load encoding: %w", err)
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Text(s string) int {
	if s == "" {
		return 0
	}
	return len(t.enc.Encode(s, nil, nil))
}

func (t *Tiktoken) Message(m domain.ChatMessage) int {
	return t.Text(m.Role) + t.Text(m.Content) + perMessageOverhead
}
