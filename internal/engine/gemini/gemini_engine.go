package gemini

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
	apiBaseURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel = "gemini-2.5-pro"
)

// Engine implements port.AnalysisEngine using Google's Gemini API.
type Engine struct {
	apiKey   string
	model    string
	endpoint string
	gen      config.GenerationConfig
	client   *http.Client
}

// NewEngine creates a Gemini-backed analysis engine.
func NewEngine(cfg *config.ProviderConfig, gen config.GenerationConfig) *Engine {
	return newEngine(cfg, gen, "")
}

// NewEngineWithEndpoint creates an engine pointing at a custom API endpoint (for testing).
func NewEngineWithEndpoint(cfg *config.ProviderConfig, gen config.GenerationConfig, endpoint string) *Engine {
	return newEngine(cfg, gen, endpoint)
}

// Factory adapts NewEngine to engine.ProviderFactory.
func Factory(cfg *config.ProviderConfig, gen config.GenerationConfig) (port.AnalysisEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
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
	if endpoint == "" {
		endpoint = fmt.Sprintf("%s/%s:generateContent", apiBaseURL, model)
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
	genConfig := map[string]interface{}{
		"temperature":     e.gen.Temperature,
		"topP":            e.gen.TopP,
		"maxOutputTokens": e.gen.MaxOutputTokens,
	}
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role":  "user",
				"parts": []map[string]interface{}{{"text": req.Content}},
			},
		},
		"generationConfig": genConfig,
	}
	if req.Instructions != "" {
		reqBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": req.Instructions}},
		}
	}
	// The API rejects a JSON response mime type combined with search grounding.
	if req.Retrieval {
		reqBody["tools"] = []map[string]interface{}{{"google_search": map[string]interface{}{}}}
	} else {
		genConfig["responseMimeType"] = "application/json"
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
	httpReq.Header.Set("x-goog-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling gemini API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, engine.NewRateLimitError("gemini",
			fmt.Errorf("status 429: %s", engine.Truncate(string(respBody), 200)),
			engine.ParseRetryAfterHeader(resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &engine.APIError{Provider: "gemini", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	text, err := parseResponse(respBody)
	if err != nil {
		return nil, err
	}
	return &port.AnalysisResponse{Text: text, ModelUsed: e.model}, nil
}

// geminiResponse models the Gemini API response.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// parseResponse joins the text parts of the first candidate. Grounded
// responses may split the answer over several parts.
func parseResponse(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unmarshaling response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", domain.ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text parts (finish reason %s)", domain.ErrEmptyResponse, resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}
