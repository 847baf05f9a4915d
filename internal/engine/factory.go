package engine

import (
	"fmt"

	"go.uber.org/zap"

	"ideaforge/internal/config"
	"ideaforge/internal/port"
)

// ProviderFactory creates an AnalysisEngine from a provider config.
type ProviderFactory func(cfg *config.ProviderConfig, gen config.GenerationConfig) (port.AnalysisEngine, error)

// registry of provider factories, populated via RegisterProvider at startup.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewProvider creates a single AnalysisEngine from a provider config using the registered factory.
func NewProvider(cfg *config.ProviderConfig, gen config.GenerationConfig) (port.AnalysisEngine, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown engine provider: %s", cfg.Provider)
	}
	return factory(cfg, gen)
}

// New builds the configured engine. A single provider is returned as-is; a
// chain of providers is wrapped in a FallbackEngine.
func New(cfg *config.EngineConfig, log *zap.Logger) (port.AnalysisEngine, error) {
	chain := cfg.Chain()
	engines := make([]port.AnalysisEngine, 0, len(chain))
	names := make([]string, 0, len(chain))
	for _, pc := range chain {
		e, err := NewProvider(pc, cfg.Generation)
		if err != nil {
			return nil, err
		}
		engines = append(engines, e)
		names = append(names, pc.Provider)
	}
	if len(engines) == 1 {
		return engines[0], nil
	}
	return NewFallbackEngine(engines, names, log), nil
}
