package esi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TokenSource supplies bearer tokens for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed access token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("no access token configured")
	}
	return string(t), nil
}

// RefreshFunc obtains a fresh access token.
type RefreshFunc func(ctx context.Context) (string, error)

// RetryingTokenSource caches a token obtained from Refresh. A refresh is
// attempted at most MaxAttempts times with a linearly growing pause.
type RetryingTokenSource struct {
	Refresh     RefreshFunc
	MaxAttempts int
	Backoff     time.Duration
	Logger      *slog.Logger
	// Sleep defaults to esi.Sleep.
	Sleep func(context.Context, time.Duration) error

	mu    sync.Mutex
	token string
}

// Token returns the cached token, refreshing it when empty.
func (s *RetryingTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" {
		return s.token, nil
	}
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		tok, err := s.Refresh(ctx)
		if err == nil && tok != "" {
			s.token = tok
			return tok, nil
		}
		if err == nil {
			err = fmt.Errorf("empty token")
		}
		lastErr = err
		logger.Warn("token refresh failed", "component", "esi", "attempt", attempt, "max", attempts, "err", err)
		if attempt < attempts {
			if serr := sleep(ctx, time.Duration(attempt)*s.Backoff); serr != nil {
				return "", serr
			}
		}
	}
	return "", fmt.Errorf("token refresh failed after %d attempts: %w", attempts, lastErr)
}

// Invalidate drops the cached token so the next call refreshes.
func (s *RetryingTokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
