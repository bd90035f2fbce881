package vocab

import (
	"sort"

	"github.com/espressomap/espressomap/internal/entity"
)

// Fixed price bands used when a sample is too small or too flat for
// quartile categories.
const (
	BandCheapBelow     = 2.00
	BandMediumBelow    = 2.50
	BandExpensiveBelow = 3.00
)

// CalculatePriceStats derives index-based quartiles from a price sample:
// q1 = sorted[n/4], median = sorted[n/2], q3 = sorted[3n/4], no
// interpolation. Returns nil for fewer than 4 samples, a flat sample
// (min == max), or a degenerate spread (q1 >= q3); callers fall back to the
// fixed bands via BandCategory.
func CalculatePriceStats(prices []float64) *entity.DrinkPriceStats {
	n := len(prices)
	if n < 4 {
		return nil
	}
	sorted := make([]float64, n)
	copy(sorted, prices)
	sort.Float64s(sorted)

	min, max := sorted[0], sorted[n-1]
	if min >= max {
		return nil
	}
	stats := &entity.DrinkPriceStats{
		MinPrice: min,
		MaxPrice: max,
		Q1:       sorted[n/4],
		Median:   sorted[n/2],
		Q3:       sorted[3*n/4],
	}
	if stats.Q1 >= stats.Q3 {
		return nil
	}
	return stats
}

// Category buckets a price against quartile stats: 0 below q1, 1 below the
// median, 2 below q3, 3 otherwise.
func Category(stats *entity.DrinkPriceStats, price float64) int {
	switch {
	case price < stats.Q1:
		return 0
	case price < stats.Median:
		return 1
	case price < stats.Q3:
		return 2
	default:
		return 3
	}
}

// BandCategory buckets a price against the fixed bands. Used when
// CalculatePriceStats returns nil.
func BandCategory(price float64) int {
	switch {
	case price < BandCheapBelow:
		return 0
	case price < BandMediumBelow:
		return 1
	case price < BandExpensiveBelow:
		return 2
	default:
		return 3
	}
}

// PriceCategory resolves a price against stats when available, else the
// fixed bands.
func PriceCategory(stats *entity.DrinkPriceStats, price float64) int {
	if stats == nil {
		return BandCategory(price)
	}
	return Category(stats, price)
}
