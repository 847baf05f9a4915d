package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/port"
)

const (
	apiURL       = "https://api.openai.com/v1/chat/completions"
	defaultModel = "gpt-4o"
)

// Engine implements port.AnalysisEngine using the OpenAI Chat Completions API.
// Retrieval requests are served without live search.
type Engine struct {
	apiKey   string
	model    string
	endpoint string
	gen      config.GenerationConfig
	client   *http.Client
}

// NewEngine creates an OpenAI-backed analysis engine.
func NewEngine(cfg *config.ProviderConfig, gen config.GenerationConfig) *Engine {
	return newEngine(cfg, gen, apiURL)
}

// NewEngineWithEndpoint creates an engine pointing at a custom API endpoint (for testing).
func NewEngineWithEndpoint(cfg *config.ProviderConfig, gen config.GenerationConfig, endpoint string) *Engine {
	return newEngine(cfg, gen, endpoint)
}

// Factory adapts NewEngine to engine.ProviderFactory.
func Factory(cfg *config.ProviderConfig, gen config.GenerationConfig) (port.AnalysisEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	return NewEngine(cfg, gen), nil
}

func newEngine(cfg *config.ProviderConfig, gen config.GenerationConfig, endpoint string) *Engine {
	model := cfg.DefaultModel
	if model == "" {
		model = defaultModel
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Engine{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		gen:      gen,
		client:   &http.Client{Timeout: timeout},
	}
}

func (e *Engine) Analyze(ctx context.Context, req port.AnalysisRequest) (*port.AnalysisResponse, error) {
	messages := make([]map[string]interface{}, 0, 2)
	if req.Instructions != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.Instructions})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": req.Content})

	reqBody := map[string]interface{}{
		"model":       e.model,
		"messages":    messages,
		"temperature": e.gen.Temperature,
		"top_p":       e.gen.TopP,
		"response_format": map[string]interface{}{
			"type": "json_object",
		},
	}
	if e.gen.MaxOutputTokens > 0 {
		reqBody["max_completion_tokens"] = e.gen.MaxOutputTokens
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, engine.NewRateLimitError("openai",
			fmt.Errorf("status 429: %s", engine.Truncate(string(respBody), 200)),
			engine.ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &engine.APIError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	text, err := parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	return &port.AnalysisResponse{Text: text, ModelUsed: e.model}, nil
}

// apiResponse models the OpenAI Chat Completions API response.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseResponse(body []byte) (string, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", domain.ErrEmptyResponse)
	}
	if resp.Choices[0].FinishReason == "length" {
		return "", fmt.Errorf("output truncated (finish_reason: length): response exceeded output token limit")
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyResponse
	}
	return text, nil
}
