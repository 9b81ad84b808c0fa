package enricher

import (
	"context"
	"fmt"
	"time"

	"interview-concierge/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider generates the AI columns
type Provider interface {
	EnrichResponse(ctx context.Context, question, transcript string) (*models.ResponseInsights, error)
	Brief(ctx context.Context, answers []models.QA) (string, error)
	Close() error
}

// RateLimitedProvider wraps a provider with a requests-per-minute limit
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewRateLimitedProvider wraps a provider with rate limiting
func NewRateLimitedProvider(provider Provider, requestsPerMinute int, logger *zap.Logger) *RateLimitedProvider {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 8 // conservative default for free tier
	}
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		logger:   logger,
	}
}

func (p *RateLimitedProvider) EnrichResponse(ctx context.Context, question, transcript string) (*models.ResponseInsights, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return p.provider.EnrichResponse(ctx, question, transcript)
}

func (p *RateLimitedProvider) Brief(ctx context.Context, answers []models.QA) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return p.provider.Brief(ctx, answers)
}

func (p *RateLimitedProvider) Close() error {
	return p.provider.Close()
}
