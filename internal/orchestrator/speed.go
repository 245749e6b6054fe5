package orchestrator

import (
	"context"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

const speedMaxTokens = 500

// speedStrategy answers with the first usable fast model and a terse
// system instruction. No rewriting, tight token cap.
type speedStrategy struct {
	deps *deps
}

func (s *speedStrategy) Name() domain.Strategy { return domain.StrategySpeed }

func (s *speedStrategy) Execute(ctx context.Context, in Input) (*Result, error) {
	model := s.deps.catalog.FirstPreferred(in.PreferredModels, domain.ClassFast, speedFallback)

	temp := 0.5
	maxTokens := speedMaxTokens
	resp, err := s.deps.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: model.ID,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: "Answer concisely and directly. Skip preamble and caveats."},
			{Role: "user", Content: in.Prompt},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, err
	}

	text := resp.FirstContent()
	if text == "" {
		return nil, domain.NewUpstreamError(model.ID, domain.ErrEmptyCompletion)
	}

	return &Result{
		OptimizedPrompt: in.Prompt,
		FinalText:       text,
		ModelsUsed:      []string{model.ID},
		Metadata: map[string]any{
			"response_model": model.ID,
			"total_tokens":   resp.Usage.TotalTokens,
		},
		Usage: []ModelUsage{{Model: model.ID, Usage: resp.Usage}},
	}, nil
}
