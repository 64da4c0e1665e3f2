package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// ollamaProvider talks to a local inference server; no auth involved.
type ollamaProvider struct {
	cfg        domain.ProviderConfig
	httpClient *http.Client
	timeout    time.Duration
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Propose(ctx context.Context, req ports.ProposeRequest) (ports.ProposeResponse, error) {
	payload := ollamaRequest{
		Model:  valueOrDefault(p.cfg.ModelID, "llama3"),
		System: systemPrompt,
		Prompt: buildUserPrompt(req),
		Stream: false,
	}

	endpoint := valueOrDefault(p.cfg.Endpoint, "http://localhost:11434/api/generate")
	data, err := postJSON(ctx, p.httpClient, p.timeout, endpoint, nil, payload)
	if err != nil {
		return ports.ProposeResponse{}, err
	}

	var decoded ollamaResponse
	if err := decodeJSON(data, &decoded); err != nil {
		return ports.ProposeResponse{}, err
	}
	if decoded.Response == "" {
		return ports.ProposeResponse{}, fmt.Errorf("%w: empty completion", domain.ErrMalformedResponse)
	}

	return ports.ProposeResponse{
		RawText:   decoded.Response,
		Proposals: extractProposals(decoded.Response),
	}, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

var _ ports.Provider = (*ollamaProvider)(nil)
