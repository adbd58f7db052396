package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"docdiff-backend/internal/inference"
)

// Client implements inference.Client against the Ollama generate API.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

const defaultRequestTimeout = 30 * time.Minute

// NewClient constructs an Ollama client. The HTTP client timeout must not
// undercut the task deadline, so it tracks taskTimeout; callers pass a
// per-request context when they want something tighter. OLLAMA_TIMEOUT_SECONDS
// overrides it for backends known to answer faster.
func NewClient(baseURL, model string, taskTimeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("INFERENCE_MODEL is required for Ollama")
	}
	timeout := taskTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if raw := strings.TrimSpace(os.Getenv("OLLAMA_TIMEOUT_SECONDS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			timeout = time.Duration(parsed) * time.Second
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Reasoning models need tighter sampling.
func modelOptions(model string) map[string]any {
	if strings.HasPrefix(model, "deepseek") {
		return map[string]any{
			"temperature": 0.3,
			"top_p":       0.8,
			"stop":        []string{"<|end|>", "[/INST]", "Human:", "Assistant:"},
		}
	}
	return map[string]any{
		"temperature": 0.7,
		"top_p":       0.9,
		"stop":        []string{"</s>", "<|end|>"},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Compare runs a comparison prompt through the model and extracts the JSON result.
func (c *Client) Compare(ctx context.Context, input inference.Input) (json.RawMessage, error) {
	model := input.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}

	prompt := inference.SystemPrompt() + "\n\n" + inference.BuildPrompt(input)
	body, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: modelOptions(model),
	})
	if err != nil {
		return nil, fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama http status %d: %s", resp.StatusCode, firstLine(string(payload)))
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	raw, found := inference.ExtractJSON(decoded.Response)
	if !found {
		return inference.FallbackPayload(decoded.Response), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("ollama output invalid JSON")
	}
	return raw, nil
}

// Ping reports whether the Ollama service answers on its tags endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unavailable: http status %d", resp.StatusCode)
	}
	return nil
}

// Models returns the model names the Ollama instance has pulled.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama list models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama list models: http status %d", resp.StatusCode)
	}

	var decoded tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode ollama models: %w", err)
	}
	names := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		s = s[:idx]
	}
	const maxLen = 200
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.TrimSpace(s)
}

var _ inference.Client = (*Client)(nil)
