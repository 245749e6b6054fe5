package domain

import (
	"strings"
	"time"
)

// Strategy names a policy for selecting and combining upstream models.
type Strategy string

const (
	StrategyQuality       Strategy = "quality"
	StrategySpeed         Strategy = "speed"
	StrategyConsensus     Strategy = "consensus"
	StrategyCostEffective Strategy = "cost_effective"
)

// ParseStrategy matches case-insensitively. An empty value defaults to
// quality; anything unrecognized is ErrInvalidStrategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "quality":
		return StrategyQuality, nil
	case "speed":
		return StrategySpeed, nil
	case "consensus":
		return StrategyConsensus, nil
	case "cost_effective":
		return StrategyCostEffective, nil
	default:
		return "", ErrInvalidStrategy
	}
}

// OptimizationType selects the rewrite directive used by strategies that
// rewrite the prompt before dispatch.
type OptimizationType string

const (
	OptimizeClarity    OptimizationType = "clarity"
	OptimizeTechnical  OptimizationType = "technical"
	OptimizeCreative   OptimizationType = "creative"
	OptimizeAnalytical OptimizationType = "analytical"
)

// ParseOptimizationType falls back to clarity for unknown values rather than
// failing; the rewrite step is best-effort by design.
func ParseOptimizationType(s string) OptimizationType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "technical":
		return OptimizeTechnical
	case "creative":
		return OptimizeCreative
	case "analytical":
		return OptimizeAnalytical
	default:
		return OptimizeClarity
	}
}

type ModelClass string

const (
	ClassFast      ModelClass = "fast"
	ClassBalanced  ModelClass = "balanced"
	ClassAdvanced  ModelClass = "advanced"
	ClassReasoning ModelClass = "reasoning"
)

// Model describes one upstream LLM in the catalog.
type Model struct {
	ID         string        `json:"id"`
	Class      ModelClass    `json:"class"`
	CostPer1K  float64       `json:"cost_per_1k_tokens"`
	Priority   int           `json:"priority"`
	Enabled    bool          `json:"enabled"`
	Timeout    time.Duration `json:"-"`
	TimeoutSec int           `json:"timeout_seconds"`
}

// ChatMessage is one turn on the upstream wire.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FirstContent returns the text of the first choice, or "" when the
// completion carries no usable content.
func (r *ChatResponse) FirstContent() string {
	if r == nil || len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ConversationMessage is one persisted turn of a session. Ordering is by
// Timestamp; insertion order is not trusted.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
}

// ConversationSession owns an ordered message log for one user. Sessions are
// soft-deleted by flipping IsActive; the core never removes rows.
type ConversationSession struct {
	SessionID      string                `json:"session_id"`
	UserID         string                `json:"user_id"`
	Title          string                `json:"title,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	LastActivityAt time.Time             `json:"last_activity_at"`
	IsActive       bool                  `json:"is_active"`
	Messages       []ConversationMessage `json:"messages"`
	MessageCount   int                   `json:"message_count"`
	MaxMessages    int                   `json:"max_messages"`
}

type OptimizationRequest struct {
	Prompt            string   `json:"prompt"`
	Strategy          string   `json:"strategy,omitempty"`
	OptimizationType  string   `json:"optimization_type,omitempty"`
	PreferredModels   []string `json:"preferred_models,omitempty"`
	SessionID         string   `json:"session_id,omitempty"`
	EnableMemory      bool     `json:"enable_memory,omitempty"`
	ContextWindowSize int      `json:"context_window_size,omitempty"`
}

type OptimizationResponse struct {
	OriginalPrompt   string         `json:"original_prompt"`
	OptimizedPrompt  string         `json:"optimized_prompt"`
	FinalResponse    string         `json:"final_response"`
	ModelsUsed       []string       `json:"models_used"`
	Strategy         string         `json:"strategy"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// RateLimitInfo reports counter state for one (subject, operation) bucket
// without mutating it.
type RateLimitInfo struct {
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// User is the resolved caller identity. Anonymous callers use UserAnonymous.
type User struct {
	ID         string
	Name       string
	APIKeyHash string
	CreatedAt  time.Time
}

const UserAnonymous = "anonymous"
