// Package llm contains the chat-completion client used by every strategy.
// Transient upstream failures are retried here and nowhere else; callers see
// either a usable response or an UpstreamError.
package llm

import (
	"context"

	"github.com/emreacar/prompt-optimizer/internal/domain"
)

type Client interface {
	ChatCompletion(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}
