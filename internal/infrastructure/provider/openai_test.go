package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) (*openAIProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	t.Setenv("OPENAI_API_KEY", "test-key")

	return &openAIProvider{
		cfg:        domain.ProviderConfig{Endpoint: server.URL},
		httpClient: server.Client(),
		timeout:    2 * time.Second,
	}, server
}

func TestOpenAIParsesCompletion(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Lists files.\n` + "```sh\\nls -la\\n```" + `"}}]}`))
	})

	resp, err := p.Propose(context.Background(), ports.ProposeRequest{Intent: "list files"})
	if err != nil {
		t.Fatalf("Propose error: %v", err)
	}
	if len(resp.Proposals) != 1 || resp.Proposals[0].RawText != "ls -la" {
		t.Fatalf("proposals = %+v", resp.Proposals)
	}
}

func TestOpenAIMapsAuthFailure(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.Propose(context.Background(), ports.ProposeRequest{Intent: "x"})
	if !errors.Is(err, domain.ErrProviderAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestOpenAIMapsServerFailure(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := p.Propose(context.Background(), ports.ProposeRequest{Intent: "x"})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestOpenAIMapsMalformedBody(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := p.Propose(context.Background(), ports.ProposeRequest{Intent: "x"})
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
}

func TestOpenAIMapsTimeout(t *testing.T) {
	p, _ := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	p.timeout = 20 * time.Millisecond

	_, err := p.Propose(context.Background(), ports.ProposeRequest{Intent: "x"})
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestOpenAIMissingKeyIsAuthError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	p := &openAIProvider{cfg: domain.ProviderConfig{}, httpClient: http.DefaultClient, timeout: time.Second}

	_, err := p.Propose(context.Background(), ports.ProposeRequest{Intent: "x"})
	if !errors.Is(err, domain.ErrProviderAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestFactorySelectsVariantByName(t *testing.T) {
	factory := NewFactory()
	for name, want := range map[string]string{
		"anthropic": "anthropic",
		"openai":    "openai",
		"ollama":    "ollama",
		"heuristic": "heuristic",
	} {
		p, err := factory.ForConfig(domain.ProviderConfig{Name: name})
		if err != nil {
			t.Fatalf("ForConfig(%s) error: %v", name, err)
		}
		if p.Name() != want {
			t.Fatalf("ForConfig(%s).Name() = %s", name, p.Name())
		}
	}

	if _, err := factory.ForConfig(domain.ProviderConfig{Name: "nope"}); err == nil {
		t.Fatal("expected error for unknown provider name")
	}
}
