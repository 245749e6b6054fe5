package orchestrator

import (
	"context"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// qualityStrategy rewrites the prompt with a cheap model, then asks the
// best available advanced model with session context attached.
type qualityStrategy struct {
	deps *deps
}

func (s *qualityStrategy) Name() domain.Strategy { return domain.StrategyQuality }

func (s *qualityStrategy) Execute(ctx context.Context, in Input) (*Result, error) {
	var optimized string
	if in.SessionID != "" {
		optimized = s.deps.rewriter.RewriteWithSession(ctx, in.Prompt, in.OptimizationType, rewriteModelID, in.SessionID, s.deps.sessions)
	} else {
		optimized = s.deps.rewriter.Rewrite(ctx, in.Prompt, in.OptimizationType, rewriteModelID, nil)
	}

	model := s.deps.catalog.FirstPreferred(in.PreferredModels, domain.ClassAdvanced, qualityFallback)

	messages := s.deps.contextForCall(ctx, in)
	messages = append(messages, domain.ChatMessage{Role: "user", Content: optimized})

	temp := 0.7
	resp, err := s.deps.client.ChatCompletion(ctx, domain.ChatRequest{
		Model:       model.ID,
		Messages:    messages,
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}

	text := resp.FirstContent()
	if text == "" {
		return nil, domain.NewUpstreamError(model.ID, domain.ErrEmptyCompletion)
	}

	used := []string{}
	if optimized != in.Prompt {
		used = append(used, rewriteModelID)
	}
	used = append(used, model.ID)

	return &Result{
		OptimizedPrompt: optimized,
		FinalText:       text,
		ModelsUsed:      dedupe(used),
		Metadata: map[string]any{
			"response_model": model.ID,
			"total_tokens":   resp.Usage.TotalTokens,
		},
		Usage: []ModelUsage{{Model: model.ID, Usage: resp.Usage}},
	}, nil
}
