package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/emreacar/prompt-optimizer/internal/catalog"
	"github.com/emreacar/prompt-optimizer/internal/domain"
)

// BedrockClient dispatches chat completions through AWS Bedrock using the
// anthropic messages format. It lets deployments inside AWS run the same
// strategies without an OpenAI-compatible gateway.
type BedrockClient struct {
	client  *bedrockruntime.Client
	catalog *catalog.Catalog
	// modelMap translates catalog ids to Bedrock model ids.
	modelMap map[string]string
}

func NewBedrockClient(ctx context.Context, region string, cat *catalog.Catalog) (*BedrockClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewBedrockClientWithConfig(cfg, cat), nil
}

func NewBedrockClientWithConfig(cfg aws.Config, cat *catalog.Catalog) *BedrockClient {
	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		catalog: cat,
		modelMap: map[string]string{
			"gpt-4o-mini": "anthropic.claude-3-haiku-20240307-v1:0",
			"gpt-4o":      "anthropic.claude-3-5-sonnet-20241022-v2:0",
			"o3-mini":     "anthropic.claude-3-5-haiku-20241022-v1:0",
		},
	}
}

func (c *BedrockClient) ChatCompletion(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.catalog.TimeoutFor(req.Model))
	defer cancel()

	body, err := json.Marshal(toBedrockRequest(req))
	if err != nil {
		return nil, domain.NewUpstreamError(req.Model, fmt.Errorf("marshal request: %w", err))
	}

	input := &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.resolveModelID(req.Model)),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	}

	output, err := c.client.InvokeModel(callCtx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewUpstreamError(req.Model, fmt.Errorf("invoke model: %w", err))
	}

	resp, err := parseBedrockResponse(output.Body, req.Model)
	if err != nil {
		return nil, domain.NewUpstreamError(req.Model, err)
	}
	return resp, nil
}

func (c *BedrockClient) resolveModelID(model string) string {
	if mapped, ok := c.modelMap[model]; ok {
		return mapped
	}
	return model
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version,omitempty"`
	MaxTokens        int              `json:"max_tokens"`
	Messages         []bedrockMessage `json:"messages"`
	System           string           `json:"system,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	ID         string `json:"id"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func toBedrockRequest(req domain.ChatRequest) bedrockRequest {
	var system string
	var messages []bedrockMessage

	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, bedrockMessage{Role: m.Role, Content: m.Content})
	}

	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		Messages:         messages,
		System:           system,
		Temperature:      req.Temperature,
	}
}

func parseBedrockResponse(body []byte, model string) (*domain.ChatResponse, error) {
	var resp bedrockResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &domain.ChatResponse{
		ID:    resp.ID,
		Model: model,
		Choices: []domain.Choice{
			{
				Index:        0,
				Message:      &domain.ChatMessage{Role: "assistant", Content: content},
				FinishReason: mapStopReason(resp.StopReason),
			},
		},
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return reason
	}
}
