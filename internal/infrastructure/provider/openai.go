package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// openAIProvider speaks the chat-completions dialect, which also covers
// OpenAI-compatible gateways when Endpoint is overridden.
type openAIProvider struct {
	cfg        domain.ProviderConfig
	httpClient *http.Client
	timeout    time.Duration
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Propose(ctx context.Context, req ports.ProposeRequest) (ports.ProposeResponse, error) {
	apiKey := resolveAuth(p.cfg.AuthEnvVar, "OPENAI_API_KEY")
	if apiKey == "" {
		return ports.ProposeResponse{}, fmt.Errorf("%w: no API key in environment", domain.ErrProviderAuth)
	}

	payload := openAIRequest{
		Model:     valueOrDefault(p.cfg.ModelID, "gpt-4o-mini"),
		MaxTokens: valueOrDefaultInt(req.MaxTokens, valueOrDefaultInt(p.cfg.MaxTokens, domain.DefaultMaxTokens)),
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(req)},
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + apiKey}
	endpoint := valueOrDefault(p.cfg.Endpoint, "https://api.openai.com/v1/chat/completions")
	data, err := postJSON(ctx, p.httpClient, p.timeout, endpoint, headers, payload)
	if err != nil {
		return ports.ProposeResponse{}, err
	}

	var decoded openAIResponse
	if err := decodeJSON(data, &decoded); err != nil {
		return ports.ProposeResponse{}, err
	}
	if len(decoded.Choices) == 0 || decoded.Choices[0].Message.Content == "" {
		return ports.ProposeResponse{}, fmt.Errorf("%w: no choices in completion", domain.ErrMalformedResponse)
	}

	content := decoded.Choices[0].Message.Content
	return ports.ProposeResponse{
		RawText:   content,
		Proposals: extractProposals(content),
	}, nil
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var _ ports.Provider = (*openAIProvider)(nil)
