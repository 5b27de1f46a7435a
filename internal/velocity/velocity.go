// Package velocity tracks per-card transaction frequency over a trailing
// window. The live counter lives in the cache; the repository is the
// fallback when the counter is unavailable.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service derives the 24h frequency feature for a card.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
}

// NewService creates a velocity service. repo may be nil, in which case a
// failed counter increment yields an error instead of a fallback count.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		window: window,
	}
}

// Window returns the trailing window the service counts over.
func (s *Service) Window() time.Duration {
	return s.window
}

// Observe records one transaction for the card and returns the number of
// PRIOR transactions inside the window, which is the frequency feature the
// model was trained on.
func (s *Service) Observe(ctx context.Context, cardID string) (float64, error) {
	if cardID == "" {
		return 0, fmt.Errorf("cardID is required")
	}

	if s.cache != nil {
		count, err := s.cache.IncrementCounter(ctx, "card:"+cardID, s.window)
		if err == nil {
			return float64(count - 1), nil
		}
		if s.repo == nil {
			return 0, fmt.Errorf("velocity counter failed: %w", err)
		}
	}

	return s.CountRecent(ctx, cardID)
}

// CountRecent counts the card's persisted transactions inside the window
// without recording a new one.
func (s *Service) CountRecent(ctx context.Context, cardID string) (float64, error) {
	if cardID == "" {
		return 0, fmt.Errorf("cardID is required")
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-s.window)
	txs, err := s.repo.GetTransactionsByCard(ctx, cardID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return float64(len(txs)), nil
}
