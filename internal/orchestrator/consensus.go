package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// consensusPanel is the fixed set of models asked concurrently. Synthesis
// reuses the rewrite model.
var consensusPanel = []string{"gpt-4o-mini", "o3-mini", "grok-3-mini-beta"}

const (
	synthesisTemp      = 0.3
	synthesisMaxTokens = 1000
)

// consensusStrategy fans the raw prompt out to the panel, waits for every
// member, then merges the successful answers in one synthesis call.
// Partial panel failure is tolerated; total failure is not.
type consensusStrategy struct {
	deps *deps
}

func (s *consensusStrategy) Name() domain.Strategy { return domain.StrategyConsensus }

type panelAnswer struct {
	model string
	text  string
	usage domain.Usage
	err   error
}

func (s *consensusStrategy) Execute(ctx context.Context, in Input) (*Result, error) {
	answers := make([]panelAnswer, len(consensusPanel))

	var wg sync.WaitGroup
	for i, model := range consensusPanel {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			answers[i] = s.ask(ctx, model, in.Prompt)
		}(i, model)
	}
	wg.Wait()

	var (
		texts  []string
		used   []string
		usages []ModelUsage
		errs   []error
	)
	for _, a := range answers {
		if a.err != nil {
			slog.Warn("panel member failed", "model", a.model, "error", a.err)
			errs = append(errs, a.err)
			continue
		}
		texts = append(texts, a.text)
		used = append(used, a.model)
		usages = append(usages, ModelUsage{Model: a.model, Usage: a.usage})
	}

	if len(texts) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Surface the first failure; it already names its model.
		return nil, errs[0]
	}

	synth, err := s.synthesize(ctx, in.Prompt, texts)
	if err != nil {
		return nil, err
	}

	text := synth.FirstContent()
	if text == "" {
		return nil, domain.NewUpstreamError(rewriteModelID, domain.ErrEmptyCompletion)
	}

	used = append(used, rewriteModelID)
	usages = append(usages, ModelUsage{Model: rewriteModelID, Usage: synth.Usage})

	return &Result{
		OptimizedPrompt: in.Prompt,
		FinalText:       text,
		ModelsUsed:      dedupe(used),
		Metadata: map[string]any{
			"panel_size":      len(consensusPanel),
			"panel_successes": len(texts),
			"synthesis_model": rewriteModelID,
		},
		Usage: usages,
	}, nil
}

func (s *consensusStrategy) ask(ctx context.Context, model, prompt string) panelAnswer {
	resp, err := s.deps.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: model,
		Messages: []domain.ChatMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return panelAnswer{model: model, err: err}
	}

	text := resp.FirstContent()
	if text == "" {
		return panelAnswer{model: model, err: domain.NewUpstreamError(model, domain.ErrEmptyCompletion)}
	}

	return panelAnswer{model: model, text: text, usage: resp.Usage}
}

func (s *consensusStrategy) synthesize(ctx context.Context, prompt string, texts []string) (*domain.ChatResponse, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", prompt)
	fmt.Fprintf(&b, "You are given %d answers from different assistants:\n\n", len(texts))
	for i, t := range texts {
		fmt.Fprintf(&b, "Answer %d:\n%s\n\n", i+1, t)
	}
	b.WriteString("Merge the strongest parts of these answers into one coherent, accurate answer. Do not mention the individual answers or that multiple sources exist.")

	temp := synthesisTemp
	maxTokens := synthesisMaxTokens
	return s.deps.client.ChatCompletion(ctx, domain.ChatRequest{
		Model: rewriteModelID,
		Messages: []domain.ChatMessage{
			{Role: "user", Content: b.String()},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
}
