package vocab

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/espressomap/espressomap/internal/entity"
)

// PriceSource yields the known price sample for one canonical drink name.
type PriceSource interface {
	DrinkPrices(ctx context.Context, drinkName string) ([]float64, error)
}

// StatsService computes per-drink quartile stats over a PriceSource and
// caches them for display. Cached entries are advisory only and expire; the
// underlying records stay authoritative.
type StatsService struct {
	source PriceSource
	cache  *lru.Cache[string, cachedStats]
	ttl    time.Duration
	logger *slog.Logger
}

type cachedStats struct {
	stats    *entity.DrinkPriceStats
	computed time.Time
}

func NewStatsService(source PriceSource, size int, ttl time.Duration, logger *slog.Logger) (*StatsService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, cachedStats](size)
	if err != nil {
		return nil, err
	}
	return &StatsService{source: source, cache: cache, ttl: ttl, logger: logger}, nil
}

// StatsFor returns quartile stats for a drink name, or nil when the sample
// is too small or degenerate (callers then use the fixed bands).
func (s *StatsService) StatsFor(ctx context.Context, drinkName string) (*entity.DrinkPriceStats, error) {
	key := NormalizeDrinkName(drinkName)
	if entry, ok := s.cache.Get(key); ok {
		if s.ttl <= 0 || time.Since(entry.computed) < s.ttl {
			return entry.stats, nil
		}
		s.cache.Remove(key)
	}

	prices, err := s.source.DrinkPrices(ctx, key)
	if err != nil {
		return nil, err
	}
	stats := CalculatePriceStats(prices)
	s.cache.Add(key, cachedStats{stats: stats, computed: time.Now()})
	s.logger.Debug("vocab.stats.computed", "drink", key, "samples", len(prices), "degenerate", stats == nil)
	return stats, nil
}

// CategoryFor buckets a price for a drink into 0..3 using quartile stats
// when available, else the fixed bands.
func (s *StatsService) CategoryFor(ctx context.Context, drinkName string, price float64) (int, error) {
	stats, err := s.StatsFor(ctx, drinkName)
	if err != nil {
		return 0, err
	}
	return PriceCategory(stats, price), nil
}
