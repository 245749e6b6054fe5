// Package orchestrator runs one of four model strategies per request and
// owns the memory pre/post processing around them. Strategies are
// registered behind a common interface; dispatch is a table lookup, never
// a string switch.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emreacar/prompt-optimizer/internal/catalog"
	"github.com/emreacar/prompt-optimizer/internal/cost"
	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/llm"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
	"github.com/emreacar/prompt-optimizer/internal/rewriter"
	"github.com/emreacar/prompt-optimizer/internal/session"
	"github.com/emreacar/prompt-optimizer/internal/telemetry"
)

// Fixed roles in the strategy set. The rewrite and synthesis model is the
// cheapest reliable one; the quality fallback is the pinned strong default.
const (
	rewriteModelID   = "gpt-4o-mini"
	qualityFallback  = "gpt-4o"
	speedFallback    = "gpt-4o-mini"
	defaultMaxTokens = 4000
)

// SessionCache is the slice of the session layer the orchestrator needs.
type SessionCache interface {
	AppendMessage(ctx context.Context, sessionID string, msg domain.ConversationMessage) error
	GetBudgetedContext(ctx context.Context, sessionID string, maxTokens, windowSize int) ([]domain.ChatMessage, error)
	Messages(ctx context.Context, sessionID string) ([]domain.ConversationMessage, error)
}

// PromptRewriter is satisfied by rewriter.Rewriter and stubbed in tests.
type PromptRewriter interface {
	Rewrite(ctx context.Context, prompt string, optType domain.OptimizationType, model string, contextMsgs []domain.ConversationMessage) string
	RewriteWithSession(ctx context.Context, prompt string, optType domain.OptimizationType, model, sessionID string, sessions rewriter.SessionContext) string
}

// Input is what a strategy sees: the parsed request, never raw strings.
type Input struct {
	Prompt            string
	OptimizationType  domain.OptimizationType
	PreferredModels   []string
	SessionID         string
	UseContext        bool
	ContextWindowSize int
}

// Result is a strategy's contribution to the response; the orchestrator
// fills in timing, session bookkeeping and accounting.
type Result struct {
	OptimizedPrompt string
	FinalText       string
	ModelsUsed      []string
	Metadata        map[string]any
	Usage           []ModelUsage
}

type ModelUsage struct {
	Model string
	Usage domain.Usage
}

// Strategy is one model-selection policy.
type Strategy interface {
	Name() domain.Strategy
	Execute(ctx context.Context, in Input) (*Result, error)
}

// deps is the shared collaborator set handed to every strategy.
type deps struct {
	client           llm.Client
	catalog          *catalog.Catalog
	rewriter         PromptRewriter
	sessions         SessionCache
	contextMaxTokens int
}

type Orchestrator struct {
	deps       *deps
	store      session.Store
	tracker    cost.Tracker
	strategies map[domain.Strategy]Strategy
}

type Config struct {
	Client           llm.Client
	Catalog          *catalog.Catalog
	Rewriter         PromptRewriter
	Sessions         SessionCache
	Store            session.Store
	Tracker          cost.Tracker
	ContextMaxTokens int
}

func New(cfg Config) *Orchestrator {
	if cfg.ContextMaxTokens <= 0 {
		cfg.ContextMaxTokens = defaultMaxTokens
	}

	d := &deps{
		client:           cfg.Client,
		catalog:          cfg.Catalog,
		rewriter:         cfg.Rewriter,
		sessions:         cfg.Sessions,
		contextMaxTokens: cfg.ContextMaxTokens,
	}

	o := &Orchestrator{
		deps:       d,
		store:      cfg.Store,
		tracker:    cfg.Tracker,
		strategies: make(map[domain.Strategy]Strategy),
	}

	for _, s := range []Strategy{
		&qualityStrategy{deps: d},
		&speedStrategy{deps: d},
		&consensusStrategy{deps: d},
		&costEffectiveStrategy{deps: d},
	} {
		o.strategies[s.Name()] = s
	}

	return o
}

// Process validates the request, runs memory pre-processing, dispatches to
// the strategy handler and finalizes the response. Validation failures
// never reach an upstream model.
func (o *Orchestrator) Process(ctx context.Context, req domain.OptimizationRequest, userID string) (*domain.OptimizationResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}

	strategy, err := domain.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", req.Strategy, err)
	}

	handler, ok := o.strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", req.Strategy, domain.ErrInvalidStrategy)
	}

	if userID == "" {
		userID = domain.UserAnonymous
	}

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.process")
	defer span.End()

	requestID := uuid.NewString()
	start := time.Now()

	if req.EnableMemory {
		if err := o.prepareSession(ctx, &req, userID); err != nil {
			return nil, err
		}
	}

	telemetry.AddOrchestrationAttributes(span, string(strategy), userID, req.SessionID, requestID)

	in := Input{
		Prompt:            req.Prompt,
		OptimizationType:  domain.ParseOptimizationType(req.OptimizationType),
		PreferredModels:   req.PreferredModels,
		SessionID:         req.SessionID,
		UseContext:        req.EnableMemory && req.SessionID != "",
		ContextWindowSize: req.ContextWindowSize,
	}

	result, err := handler.Execute(ctx, in)
	elapsed := time.Since(start)

	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordOptimization(string(strategy), "error", elapsed.Seconds())
		slog.Error("orchestration failed",
			"request_id", requestID,
			"strategy", strategy,
			"session_id", req.SessionID,
			"latency_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	metadata := result.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}

	if req.EnableMemory {
		lastModel := ""
		if len(result.ModelsUsed) > 0 {
			lastModel = result.ModelsUsed[len(result.ModelsUsed)-1]
		}
		if err := o.deps.sessions.AppendMessage(ctx, req.SessionID, domain.ConversationMessage{
			Role:    "assistant",
			Content: result.FinalText,
			Model:   lastModel,
		}); err != nil {
			slog.Warn("append assistant turn failed", "session_id", req.SessionID, "error", err)
		}
		metadata["session_id"] = req.SessionID
	}

	o.recordUsage(ctx, userID, requestID, string(strategy), result.Usage, elapsed)

	metrics.RecordOptimization(string(strategy), "ok", elapsed.Seconds())
	slog.Info("orchestration completed",
		"request_id", requestID,
		"strategy", strategy,
		"session_id", req.SessionID,
		"models_used", result.ModelsUsed,
		"latency_ms", elapsed.Milliseconds(),
	)

	return &domain.OptimizationResponse{
		OriginalPrompt:   req.Prompt,
		OptimizedPrompt:  result.OptimizedPrompt,
		FinalResponse:    result.FinalText,
		ModelsUsed:       result.ModelsUsed,
		Strategy:         string(strategy),
		ProcessingTimeMs: elapsed.Milliseconds(),
		Metadata:         metadata,
	}, nil
}

// prepareSession resolves or creates the session and appends the raw user
// prompt before dispatch. Strategies always receive the prompt as the
// current turn; history fetches must not duplicate it.
func (o *Orchestrator) prepareSession(ctx context.Context, req *domain.OptimizationRequest, userID string) error {
	if req.SessionID == "" {
		now := time.Now().UTC()
		sess := &domain.ConversationSession{
			SessionID:      uuid.NewString(),
			UserID:         userID,
			CreatedAt:      now,
			LastActivityAt: now,
			IsActive:       true,
			MaxMessages:    50,
		}
		if err := o.store.Save(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		req.SessionID = sess.SessionID
	} else {
		sess, err := o.store.Get(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if sess.UserID != userID {
			return domain.ErrSessionForbidden
		}
	}

	return o.deps.sessions.AppendMessage(ctx, req.SessionID, domain.ConversationMessage{
		Role:    "user",
		Content: req.Prompt,
	})
}

func (o *Orchestrator) recordUsage(ctx context.Context, userID, requestID, strategy string, usages []ModelUsage, elapsed time.Duration) {
	if o.tracker == nil {
		return
	}
	for _, u := range usages {
		record := cost.UsageRecord{
			UserID:       userID,
			RequestID:    requestID,
			Strategy:     strategy,
			Model:        u.Model,
			InputTokens:  u.Usage.PromptTokens,
			OutputTokens: u.Usage.CompletionTokens,
			CostUSD:      cost.Cost(o.deps.catalog, u.Model, u.Usage),
			LatencyMs:    elapsed.Milliseconds(),
		}
		if err := o.tracker.Record(ctx, record); err != nil {
			slog.Warn("usage record failed", "request_id", requestID, "error", err)
		}
	}
}

// contextForCall returns the budgeted history for the current call with
// the just-appended raw prompt stripped from the tail, so the prompt only
// appears as the current turn.
func (d *deps) contextForCall(ctx context.Context, in Input) []domain.ChatMessage {
	if !in.UseContext {
		return nil
	}

	msgs, err := d.sessions.GetBudgetedContext(ctx, in.SessionID, d.contextMaxTokens, in.ContextWindowSize)
	if err != nil {
		slog.Warn("context fetch failed, continuing without history", "session_id", in.SessionID, "error", err)
		return nil
	}

	if n := len(msgs); n > 0 && msgs[n-1].Role == "user" && msgs[n-1].Content == in.Prompt {
		msgs = msgs[:n-1]
	}
	return msgs
}

func dedupe(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
