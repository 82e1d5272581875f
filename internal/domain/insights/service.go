package insights

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCacheTTL is how long a computed analysis stays fresh. Pattern
// analysis is read-only over imported data, so staleness only matters until
// the next import.
const DefaultCacheTTL = 15 * time.Minute

type cacheEntry struct {
	result    *AnalysisResult
	expiresAt time.Time
}

// Service computes and caches spending-pattern analyses.
type Service struct {
	repo   TransactionReader
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewService creates a new insights service.
func NewService(repo TransactionReader, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		ttl:    DefaultCacheTTL,
		cache:  make(map[string]cacheEntry),
	}
}

// GetPatterns returns the pattern analysis for a user's window, from cache
// when fresh.
func (s *Service) GetPatterns(ctx context.Context, userID uuid.UUID, from, to time.Time) (*AnalysisResult, error) {
	key := cacheKey(userID, from, to)

	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.result, nil
	}

	txs, err := s.repo.ListTransactions(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	result := Analyze(txs)

	s.mu.Lock()
	s.cache[key] = cacheEntry{result: result, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return result, nil
}

// Invalidate drops every cached window for a user. Called after an import
// lands new transactions.
func (s *Service) Invalidate(userID uuid.UUID) {
	prefix := userID.String() + "|"

	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cache {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.cache, key)
		}
	}
}

// WarmCache precomputes the trailing-90-day analysis for the given users.
// Runs from the nightly scheduler so morning dashboard loads hit warm cache.
func (s *Service) WarmCache(ctx context.Context, userIDs []uuid.UUID) {
	to := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -90)

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.GetPatterns(ctx, userID, from, to); err != nil {
			s.logger.Warn("cache warm failed",
				slog.String("userID", userID.String()),
				slog.Any("error", err),
			)
		}
	}
}

func cacheKey(userID uuid.UUID, from, to time.Time) string {
	return fmt.Sprintf("%s|%d|%d", userID, from.Unix(), to.Unix())
}
