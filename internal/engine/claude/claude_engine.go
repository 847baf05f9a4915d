package claude

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
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	defaultModel = "claude-sonnet-4-20250514"

	webSearchTool = "web_search_20250305"
	maxSearches   = 5
)

// Engine implements port.AnalysisEngine using the Anthropic Messages API.
type Engine struct {
	apiKey   string
	model    string
	endpoint string
	gen      config.GenerationConfig
	client   *http.Client
}

// NewEngine creates a Claude-backed analysis engine.
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
		return nil, fmt.Errorf("claude: api key is required")
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
	maxTokens := e.gen.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	reqBody := map[string]interface{}{
		"model":       e.model,
		"max_tokens":  maxTokens,
		"temperature": e.gen.Temperature,
		"messages": []map[string]interface{}{
			{
				"role":    "user",
				"content": req.Content,
			},
		},
	}
	if req.Instructions != "" {
		reqBody["system"] = req.Instructions
	}
	if req.Retrieval {
		reqBody["tools"] = []map[string]interface{}{
			{"type": webSearchTool, "name": "web_search", "max_uses": maxSearches},
		}
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
	httpReq.Header.Set("x-api-key", e.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, engine.NewRateLimitError("claude",
			fmt.Errorf("status 429: %s", engine.Truncate(string(respBody), 200)),
			engine.ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &engine.APIError{Provider: "claude", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	text, err := parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	return &port.AnalysisResponse{Text: text, ModelUsed: e.model}, nil
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// parseResponse returns the final text block. With web search enabled the
// model interleaves tool blocks and commentary, and the answer comes last.
func parseResponse(body []byte) (string, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}

	if resp.StopReason == "max_tokens" {
		return "", fmt.Errorf("output truncated (stop_reason: max_tokens): response exceeded output token limit")
	}

	for i := len(resp.Content) - 1; i >= 0; i-- {
		block := resp.Content[i]
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return block.Text, nil
		}
	}
	return "", domain.ErrEmptyResponse
}
