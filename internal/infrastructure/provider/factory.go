// Package provider implements the LLM gateway: one variant per backend
// behind the ports.Provider contract, selected by configuration. The rest
// of the engine never sees which service produced a proposal.
package provider

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// Factory builds provider variants. A single HTTP client is shared; each
// call is bounded by the configured per-request timeout, not the client.
type Factory struct {
	httpClient *http.Client
}

// NewFactory creates a provider factory.
func NewFactory() *Factory {
	return &Factory{httpClient: &http.Client{}}
}

// ForConfig maps the configured provider name to a variant and wraps it
// with the retry policy. Selection is a configuration value, never a
// runtime type check.
func (f *Factory) ForConfig(cfg domain.ProviderConfig) (ports.Provider, error) {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = domain.DefaultProviderTimeout
	}

	var variant ports.Provider
	switch cfg.Name {
	case "anthropic":
		variant = &anthropicProvider{cfg: cfg, httpClient: f.httpClient, timeout: timeout}
	case "openai", "":
		variant = &openAIProvider{cfg: cfg, httpClient: f.httpClient, timeout: timeout}
	case "ollama":
		variant = &ollamaProvider{cfg: cfg, httpClient: f.httpClient, timeout: timeout}
	case "heuristic":
		variant = &heuristicProvider{}
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}

	return newRetryingProvider(variant, cfg), nil
}

func resolveAuth(primary string, fallback string) string {
	if primary != "" {
		if value := os.Getenv(primary); value != "" {
			return value
		}
	}
	return os.Getenv(fallback)
}

func valueOrDefault(value string, def string) string {
	if value == "" {
		return def
	}
	return value
}

func valueOrDefaultInt(value int, def int) int {
	if value == 0 {
		return def
	}
	return value
}

func valueOrDefaultDuration(value time.Duration, def time.Duration) time.Duration {
	if value == 0 {
		return def
	}
	return value
}

var _ ports.ProviderFactory = (*Factory)(nil)
