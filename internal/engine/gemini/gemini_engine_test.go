package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/engine/gemini"
	"ideaforge/internal/port"
)

func newTestEngine(serverURL string) *gemini.Engine {
	cfg := &config.ProviderConfig{Provider: "gemini", APIKey: "test-gemini-key", DefaultModel: "gemini-2.5-pro", TimeoutSecs: 30}
	gen := config.GenerationConfig{Temperature: 0.1, TopP: 0.95, MaxOutputTokens: 8192}
	return gemini.NewEngineWithEndpoint(cfg, gen, serverURL)
}

func successResponse(parts ...string) map[string]interface{} {
	ps := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		ps = append(ps, map[string]interface{}{"text": p})
	}
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"role": "model", "parts": ps}, "finishReason": "STOP"},
		},
	}
}

func TestGeminiEngine_Analyze_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-gemini-key", r.Header.Get("x-goog-api-key"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		sys := reqBody["systemInstruction"].(map[string]interface{})
		sysParts := sys["parts"].([]interface{})
		assert.Equal(t, "be a miner", sysParts[0].(map[string]interface{})["text"])

		contents := reqBody["contents"].([]interface{})
		parts := contents[0].(map[string]interface{})["parts"].([]interface{})
		assert.Equal(t, "[PART 1/1] \n text", parts[0].(map[string]interface{})["text"])

		genConfig := reqBody["generationConfig"].(map[string]interface{})
		assert.Equal(t, "application/json", genConfig["responseMimeType"])
		assert.InDelta(t, 0.1, genConfig["temperature"], 1e-9)
		assert.InDelta(t, 0.95, genConfig["topP"], 1e-9)
		assert.Equal(t, float64(8192), genConfig["maxOutputTokens"])
		assert.Nil(t, reqBody["tools"])

		_ = json.NewEncoder(w).Encode(successResponse(`{"extracted_items":[]}`))
	}))
	defer server.Close()

	out, err := newTestEngine(server.URL).Analyze(context.Background(), port.AnalysisRequest{
		Stage: "Miner", Instructions: "be a miner", Content: "[PART 1/1] \n text",
	})

	require.NoError(t, err)
	assert.Equal(t, `{"extracted_items":[]}`, out.Text)
	assert.Equal(t, "gemini-2.5-pro", out.ModelUsed)
}

func TestGeminiEngine_Analyze_RetrievalAddsSearchTool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		tools := reqBody["tools"].([]interface{})
		require.Len(t, tools, 1)
		_, ok := tools[0].(map[string]interface{})["google_search"]
		assert.True(t, ok)
		genConfig := reqBody["generationConfig"].(map[string]interface{})
		assert.Nil(t, genConfig["responseMimeType"])

		_ = json.NewEncoder(w).Encode(successResponse(`{"market_intelligence":`, `{"market_fit_score":70}}`))
	}))
	defer server.Close()

	out, err := newTestEngine(server.URL).Analyze(context.Background(), port.AnalysisRequest{
		Stage: "Strategist", Content: "{}", Retrieval: true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"market_intelligence":{"market_fit_score":70}}`, out.Text)
}

func TestGeminiEngine_Analyze_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota"}`))
	}))
	defer server.Close()

	_, err := newTestEngine(server.URL).Analyze(context.Background(), port.AnalysisRequest{Content: "x"})

	var rlErr *engine.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, "gemini", rlErr.Provider)
	assert.Equal(t, 17*time.Second, rlErr.RetryAfter)
}

func TestGeminiEngine_Analyze_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`internal`))
	}))
	defer server.Close()

	_, err := newTestEngine(server.URL).Analyze(context.Background(), port.AnalysisRequest{Content: "x"})

	var apiErr *engine.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestGeminiEngine_Analyze_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	_, err := newTestEngine(server.URL).Analyze(context.Background(), port.AnalysisRequest{Content: "x"})
	assert.ErrorIs(t, err, domain.ErrEmptyResponse)
}

func TestFactory_RequiresAPIKey(t *testing.T) {
	_, err := gemini.Factory(&config.ProviderConfig{Provider: "gemini"}, config.GenerationConfig{})
	assert.Error(t, err)
}
