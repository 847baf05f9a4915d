package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideaforge/internal/config"
	"ideaforge/internal/engine"
	"ideaforge/internal/port"
)

type stubEngine struct{ name string }

func (s *stubEngine) Analyze(context.Context, port.AnalysisRequest) (*port.AnalysisResponse, error) {
	return &port.AnalysisResponse{Text: `{}`, ModelUsed: s.name}, nil
}

func registerStub(name string) {
	engine.RegisterProvider(name, func(cfg *config.ProviderConfig, _ config.GenerationConfig) (port.AnalysisEngine, error) {
		return &stubEngine{name: cfg.Provider}, nil
	})
}

func TestNew_SingleProvider(t *testing.T) {
	registerStub("stub-a")
	e, err := engine.New(&config.EngineConfig{Provider: "stub-a"}, nil)
	require.NoError(t, err)

	_, isFallback := e.(*engine.FallbackEngine)
	assert.False(t, isFallback)
}

func TestNew_ChainBuildsFallback(t *testing.T) {
	registerStub("stub-a")
	registerStub("stub-b")
	cfg := &config.EngineConfig{
		Primary:   config.ProviderConfig{Provider: "stub-a"},
		Secondary: config.ProviderConfig{Provider: "stub-b"},
	}
	e, err := engine.New(cfg, nil)
	require.NoError(t, err)

	fe, ok := e.(*engine.FallbackEngine)
	require.True(t, ok)
	out, err := fe.Analyze(context.Background(), port.AnalysisRequest{})
	require.NoError(t, err)
	assert.Equal(t, "stub-a", out.ModelUsed)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := engine.New(&config.EngineConfig{Provider: "nobody"}, nil)
	assert.ErrorContains(t, err, "unknown engine provider")
}
