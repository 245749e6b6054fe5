package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/emreacar/prompt-optimizer/internal/catalog"
	"github.com/emreacar/prompt-optimizer/internal/circuitbreaker"
	"github.com/emreacar/prompt-optimizer/internal/domain"
	"github.com/emreacar/prompt-optimizer/internal/httputil"
	"github.com/emreacar/prompt-optimizer/internal/metrics"
)

const maxAttempts = 3

// CortexClient talks to an OpenAI-compatible chat-completions endpoint.
// Each call is bounded by the model's catalog timeout and guarded by a
// per-model circuit breaker.
type CortexClient struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	catalog  *catalog.Catalog
	breakers *circuitbreaker.Manager
}

func NewCortexClient(baseURL, apiKey string, cat *catalog.Catalog, breakers *circuitbreaker.Manager) *CortexClient {
	return &CortexClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		client:   httputil.DefaultClient(),
		catalog:  cat,
		breakers: breakers,
	}
}

func (c *CortexClient) ChatCompletion(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, domain.NewUpstreamError(req.Model, fmt.Errorf("messages cannot be empty"))
	}

	breaker := c.breakers.Get(req.Model)
	if err := breaker.Allow(); err != nil {
		metrics.RecordUpstreamRequest(req.Model, "breaker_open")
		return nil, domain.NewUpstreamError(req.Model, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.catalog.TimeoutFor(req.Model))
	defer cancel()

	start := time.Now()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond

	resp, err := backoff.Retry(callCtx, func() (*domain.ChatResponse, error) {
		return c.doRequest(callCtx, req)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxAttempts))

	if err != nil {
		breaker.RecordFailure()
		metrics.RecordUpstreamRequest(req.Model, "error")
		metrics.SetCircuitBreakerState(req.Model, int(breaker.State()))
		// Report cancellation as such so the boundary returns a
		// timeout-class error instead of a generic upstream failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if callCtx.Err() != nil {
			return nil, fmt.Errorf("model %s: %w", req.Model, context.DeadlineExceeded)
		}
		return nil, domain.NewUpstreamError(req.Model, err)
	}

	breaker.RecordSuccess()
	metrics.SetCircuitBreakerState(req.Model, int(breaker.State()))
	metrics.RecordUpstreamRequest(req.Model, "ok")
	metrics.RecordTokens(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	slog.Debug("upstream call completed",
		"model", req.Model,
		"latency_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens,
	)

	return resp, nil
}

// doRequest performs one HTTP attempt. 5xx and transport errors are
// retryable; other statuses are permanent.
func (c *CortexClient) doRequest(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("upstream status %d: %s", httpResp.StatusCode, string(bodyBytes))
	}
	if httpResp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(httpResp.Body)
		return nil, backoff.Permanent(fmt.Errorf("upstream status %d: %s", httpResp.StatusCode, string(bodyBytes)))
	}

	var resp domain.ChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}

	return &resp, nil
}
