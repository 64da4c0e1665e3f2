package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

type anthropicProvider struct {
	cfg        domain.ProviderConfig
	httpClient *http.Client
	timeout    time.Duration
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

func (p *anthropicProvider) Propose(ctx context.Context, req ports.ProposeRequest) (ports.ProposeResponse, error) {
	apiKey := resolveAuth(p.cfg.AuthEnvVar, "ANTHROPIC_API_KEY")
	if apiKey == "" {
		return ports.ProposeResponse{}, fmt.Errorf("%w: no API key in environment", domain.ErrProviderAuth)
	}

	payload := anthropicRequest{
		Model:     valueOrDefault(p.cfg.ModelID, "claude-3-5-sonnet-20240620"),
		MaxTokens: valueOrDefaultInt(req.MaxTokens, valueOrDefaultInt(p.cfg.MaxTokens, domain.DefaultMaxTokens)),
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: buildUserPrompt(req)}},
			},
		},
	}

	headers := map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": "2023-06-01",
	}
	endpoint := valueOrDefault(p.cfg.Endpoint, "https://api.anthropic.com/v1/messages")
	data, err := postJSON(ctx, p.httpClient, p.timeout, endpoint, headers, payload)
	if err != nil {
		return ports.ProposeResponse{}, err
	}

	var decoded anthropicResponse
	if err := decodeJSON(data, &decoded); err != nil {
		return ports.ProposeResponse{}, err
	}
	content := decoded.firstText()
	if content == "" {
		return ports.ProposeResponse{}, fmt.Errorf("%w: empty completion", domain.ErrMalformedResponse)
	}

	return ports.ProposeResponse{
		RawText:   content,
		Proposals: extractProposals(content),
	}, nil
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

func (a anthropicResponse) firstText() string {
	if len(a.Content) == 0 {
		return ""
	}
	return a.Content[0].Text
}

var _ ports.Provider = (*anthropicProvider)(nil)
