// Package token approximates token costs for context budgeting. The
// heuristic estimator is cheap and deterministic; a BPE-backed estimator is
// available when accuracy matters more than speed.
package token

import (
	"math"
	"strings"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

const (
	// Fixed overhead charged per message for role framing and separators.
	perMessageOverhead = 4
	// Fixed overhead charged once per request.
	perRequestOverhead = 10
)

type Estimator interface {
	Text(s string) int
	Message(m domain.ChatMessage) int
}

// Heuristic estimates tokens from a weighted blend of word and character
// counts. It deliberately overshoots slightly; budgets are upper bounds.
type Heuristic struct{}

func NewHeuristic() Heuristic { return Heuristic{} }

func (Heuristic) Text(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	chars := len(s)
	return int(math.Ceil(float64(words)*0.75 + float64(chars)*0.25/4.0))
}

func (h Heuristic) Message(m domain.ChatMessage) int {
	return h.Text(m.Role) + h.Text(m.Content) + perMessageOverhead
}

// Conversation estimates one persisted turn the same way Message does.
func ConversationMessage(e Estimator, m domain.ConversationMessage) int {
	return e.Message(domain.ChatMessage{Role: m.Role, Content: m.Content})
}

// Request sums an entire message list plus the per-request overhead.
func Request(e Estimator, messages []domain.ChatMessage) int {
	total := perRequestOverhead
	for _, m := range messages {
		total += e.Message(m)
	}
	return total
}
