package cache

import (
	"context"
	"time"

	"shopledger/backend/internal/domain"
)

type AnalyticsCache interface {
	Get(ctx context.Context, key string) (*domain.OverallAnalytics, bool, error)
	Set(ctx context.Context, key string, value *domain.OverallAnalytics, ttl time.Duration) error
}

type NoopAnalyticsCache struct{}

func (NoopAnalyticsCache) Get(_ context.Context, _ string) (*domain.OverallAnalytics, bool, error) {
	return nil, false, nil
}

func (NoopAnalyticsCache) Set(_ context.Context, _ string, _ *domain.OverallAnalytics, _ time.Duration) error {
	return nil
}
