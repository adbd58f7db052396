package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"docdiff-backend/internal/inference"
)

const maxTokens = 2048

// Client implements inference.Client using OpenAI chat completions.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient constructs an OpenAI-backed client.
func NewClient(apiKey, model string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("INFERENCE_MODEL is required for OpenAI")
	}
	return &Client{api: openai.NewClient(apiKey), model: model}, nil
}

// Compare runs a comparison prompt through the model.
func (c *Client) Compare(ctx context.Context, input inference.Input) (json.RawMessage, error) {
	model := input.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: inference.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: inference.BuildPrompt(input)},
		},
	}
	// Reasoning models (o1/o3/o4/gpt-5*) take MaxCompletionTokens instead of MaxTokens.
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: empty choices")
	}

	content := resp.Choices[0].Message.Content
	raw, found := inference.ExtractJSON(content)
	if !found {
		return inference.FallbackPayload(content), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("openai output invalid JSON")
	}
	return raw, nil
}

var _ inference.Client = (*Client)(nil)
