package provider

import (
	"context"
	"errors"
	"time"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// retryingProvider retries transient gateway failures with exponential
// backoff. Authentication errors and malformed responses are never
// retried: the former will not heal and the latter would just repeat.
type retryingProvider struct {
	inner      ports.Provider
	maxRetries int
	backoff    time.Duration
}

func newRetryingProvider(inner ports.Provider, cfg domain.ProviderConfig) ports.Provider {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	return &retryingProvider{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    valueOrDefaultDuration(cfg.RetryBackoff.Std(), domain.DefaultRetryBackoff),
	}
}

func (p *retryingProvider) Name() string {
	return p.inner.Name()
}

func (p *retryingProvider) Propose(ctx context.Context, req ports.ProposeRequest) (ports.ProposeResponse, error) {
	var lastErr error
	delay := p.backoff
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ports.ProposeResponse{}, mapTransportError(ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		resp, err := p.inner.Propose(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) {
			return ports.ProposeResponse{}, err
		}
	}
	return ports.ProposeResponse{}, lastErr
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrProviderTimeout)
}
