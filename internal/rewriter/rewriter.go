// Package rewriter turns vague user prompts into sharper questions before
// they reach a generation model. Rewriting is best effort: every failure
// path returns the original prompt unchanged.
package rewriter

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/llm"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
)

// Config tunes the short-circuit and validation thresholds. Zero values
// fall back to the defaults below.
type Config struct {
	// SkipLength is the prompt length beyond which rewriting is skipped
	// entirely; long prompts are treated as already detailed.
	SkipLength int
	// MinResultLen / MaxResultLen / MinResultWords bound an acceptable
	// rewrite result after cleaning.
	MinResultLen   int
	MaxResultLen   int
	MinResultWords int
	// TopicMaxLen caps the extracted context topic.
	TopicMaxLen int
	// ContextTurns is how many trailing session messages feed topic
	// extraction in RewriteWithSession.
	ContextTurns int
}

func DefaultConfig() Config {
	return Config{
		SkipLength:     200,
		MinResultLen:   3,
		MaxResultLen:   300,
		MinResultWords: 2,
		TopicMaxLen:    50,
		ContextTurns:   4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SkipLength <= 0 {
		c.SkipLength = d.SkipLength
	}
	if c.MinResultLen <= 0 {
		c.MinResultLen = d.MinResultLen
	}
	if c.MaxResultLen <= 0 {
		c.MaxResultLen = d.MaxResultLen
	}
	if c.MinResultWords <= 0 {
		c.MinResultWords = d.MinResultWords
	}
	if c.TopicMaxLen <= 0 {
		c.TopicMaxLen = d.TopicMaxLen
	}
	if c.ContextTurns <= 0 {
		c.ContextTurns = d.ContextTurns
	}
	return c
}

// vaguePatterns flag prompts worth rewriting: dangling references and
// generic question shells with no concrete subject.
var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:it|this|that|these|those|them)\b`),
	regexp.MustCompile(`(?i)^(?:what|how|why|when|where|which|who)\b.{0,40}\?$`),
	regexp.MustCompile(`(?i)\bthe (?:benefits|advantages|disadvantages|drawbacks|pros|cons|best|main|key)\b`),
	regexp.MustCompile(`(?i)\b(?:tell me more|explain more|more details|elaborate)\b`),
	regexp.MustCompile(`(?i)^(?:can you|could you|please)\b.{0,50}$`),
}

// topicKeywords is the deterministic fallback table for topic extraction.
// Matching is case-insensitive; the matched context substring keeps its
// original casing.
var topicKeywords = []string{
	"python", "golang", "javascript", "typescript", "java", "rust", "kotlin",
	"kubernetes", "docker", "terraform", "postgres", "postgresql", "redis",
	"react", "angular", "django", "flask", "spring",
	"machine learning", "deep learning", "neural network",
	"microservices", "api design", "database", "algorithm",
	"security", "encryption", "authentication",
}

// commonWords are skipped by the last-resort "first long word" extraction.
var commonWords = map[string]bool{
	"about": true, "their": true, "there": true, "would": true, "could": true,
	"should": true, "which": true, "these": true, "those": true, "where": true,
	"because": true, "please": true, "really": true, "something": true,
	"anything": true, "everything": true, "thanks": true, "question": true,
}

// directives maps each optimization type to its rewrite instruction and
// sampling temperature. Clarity is the most deterministic, creative the
// least.
var directives = map[domain.OptimizationType]struct {
	instruction string
	temperature float64
}{
	domain.OptimizeClarity: {
		instruction: "Rewrite the question to be clear, specific and unambiguous. Keep the original intent.",
		temperature: 0.2,
	},
	domain.OptimizeTechnical: {
		instruction: "Rewrite the question with precise technical terminology, naming the concrete technology or concept involved.",
		temperature: 0.3,
	},
	domain.OptimizeAnalytical: {
		instruction: "Rewrite the question to ask for a structured, comparative analysis with explicit criteria.",
		temperature: 0.4,
	},
	domain.OptimizeCreative: {
		instruction: "Rewrite the question to invite an imaginative, open-ended exploration while staying on topic.",
		temperature: 0.7,
	},
}

var labelPrefixes = []string{
	"rewritten question:", "rewritten prompt:", "rewrite:", "question:",
	"improved question:", "optimized prompt:", "answer:",
}

// SessionContext supplies trailing conversation messages for the
// session-bound variant without coupling the rewriter to the cache type.
type SessionContext interface {
	Messages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error)
}

type Rewriter struct {
	client llm.Client
	cfg    Config
}

func New(client llm.Client, cfg Config) *Rewriter {
	return &Rewriter{client: client, cfg: cfg.withDefaults()}
}

// Rewrite returns a sharpened version of prompt, or prompt itself
// byte-for-byte when rewriting is skipped or fails.
func (r *Rewriter) Rewrite(ctx context.Context, prompt string, optType domain.OptimizationType, model string, contextMsgs []domain.ConversationMessage) string {
	if len(prompt) > r.cfg.SkipLength {
		metrics.RecordRewriteOutcome("skipped")
		return prompt
	}
	if !isVague(prompt) {
		metrics.RecordRewriteOutcome("skipped")
		return prompt
	}

	topic := ""
	if len(contextMsgs) > 0 {
		topic = r.extractTopic(ctx, model, contextMsgs)
	}

	directive, ok := directives[optType]
	if !ok {
		directive = directives[domain.OptimizeClarity]
	}

	instruction := directive.instruction
	if topic != "" {
		instruction += " The conversation is about " + topic + "; make the rewritten question mention " + topic + " explicitly."
	}
	instruction += " Respond with only the rewritten question, nothing else."

	temp := directive.temperature
	maxTokens := 150

	resp, err := r.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: model,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		slog.Debug("rewrite call failed, keeping original", "model", model, "error", err)
		metrics.RecordRewriteOutcome("fallback")
		return prompt
	}

	cleaned := cleanResult(resp.FirstContent())
	if !r.validResult(cleaned) {
		metrics.RecordRewriteOutcome("fallback")
		return prompt
	}

	metrics.RecordRewriteOutcome("rewritten")
	return cleaned
}

// RewriteWithSession sources context from the session cache's trailing
// messages instead of a caller-supplied list.
func (r *Rewriter) RewriteWithSession(ctx context.Context, prompt string, optType domain.OptimizationType, model, sessionID string, sessions SessionContext) string {
	var contextMsgs []domain.ConversationMessage
	if sessionID != "" && sessions != nil {
		msgs, err := sessions.Messages(ctx, sessionID)
		if err != nil {
			slog.Debug("session context unavailable for rewrite", "session_id", sessionID, "error", err)
		} else if len(msgs) > r.cfg.ContextTurns {
			contextMsgs = msgs[len(msgs)-r.cfg.ContextTurns:]
		} else {
			contextMsgs = msgs
		}
	}
	return r.Rewrite(ctx, prompt, optType, model, contextMsgs)
}

func isVague(prompt string) bool {
	for _, p := range vaguePatterns {
		if p.MatchString(prompt) {
			return true
		}
	}
	return false
}

// extractTopic tries an LLM call first, then the keyword table, then the
// first long uncommon word in the context text.
func (r *Rewriter) extractTopic(ctx context.Context, model string, msgs []domain.ConversationMessage) string {
	joined := joinUserTurns(msgs)
	if joined == "" {
		return ""
	}

	if topic := r.extractTopicLLM(ctx, model, joined); topic != "" {
		return topic
	}
	if topic := matchKeyword(joined); topic != "" {
		return r.capTopic(topic)
	}
	return r.capTopic(firstLongWord(joined))
}

func (r *Rewriter) extractTopicLLM(ctx context.Context, model, text string) string {
	temp := 0.0
	maxTokens := 20

	resp, err := r.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: model,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: "Extract the single main topic of this conversation as one short phrase. Respond with only the phrase."},
			{Role: "user", Content: text},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return ""
	}

	topic := strings.TrimSpace(strings.Trim(resp.FirstContent(), `"'.`))
	if topic == "" || len(topic) > r.cfg.TopicMaxLen {
		return ""
	}
	return topic
}

func (r *Rewriter) capTopic(topic string) string {
	if len(topic) > r.cfg.TopicMaxLen {
		return topic[:r.cfg.TopicMaxLen]
	}
	return topic
}

func joinUserTurns(msgs []domain.ConversationMessage) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == "user" || m.Role == "assistant" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, " ")
}

func matchKeyword(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range topicKeywords {
		idx := strings.Index(lower, kw)
		if idx >= 0 {
			// Return the substring in its original casing.
			return text[idx : idx+len(kw)]
		}
	}
	return ""
}

func firstLongWord(text string) string {
	for _, w := range strings.Fields(text) {
		trimmed := strings.Trim(w, `.,!?:;"'()`)
		if len(trimmed) >= 5 && !commonWords[strings.ToLower(trimmed)] {
			return trimmed
		}
	}
	return ""
}

func cleanResult(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)

	lower := strings.ToLower(s)
	for _, prefix := range labelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return s
}

func (r *Rewriter) validResult(s string) bool {
	if len(s) < r.cfg.MinResultLen || len(s) > r.cfg.MaxResultLen {
		return false
	}
	return len(strings.Fields(s)) >= r.cfg.MinResultWords
}
