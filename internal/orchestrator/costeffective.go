package orchestrator

import (
	"context"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// costEffectiveStrategy always picks the cheapest enabled model. Ties
// resolve to catalog order, so the choice is deterministic.
type costEffectiveStrategy struct {
	deps *deps
}

func (s *costEffectiveStrategy) Name() domain.Strategy { return domain.StrategyCostEffective }

func (s *costEffectiveStrategy) Execute(ctx context.Context, in Input) (*Result, error) {
	model, err := s.deps.catalog.CheapestEnabled()
	if err != nil {
		return nil, err
	}

	resp, err := s.deps.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: model.ID,
		Messages: []domain.ChatMessage{
			{Role: "user", Content: in.Prompt},
		},
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
			"response_model":     model.ID,
			"cost_per_1k_tokens": model.CostPer1K,
			"total_tokens":       resp.Usage.TotalTokens,
		},
		Usage: []ModelUsage{{Model: model.ID, Usage: resp.Usage}},
	}, nil
}
