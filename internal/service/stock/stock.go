// Package stock computes per-style keg depletion.
package stock

import (
	"math"

	"github.com/mamadbah2/feria/internal/domain/models"
)

// Compute returns the depletion state for one style. Negative inputs are
// clamped to zero. Remaining keeps full precision; only the percentage is
// rounded.
func Compute(style string, initial, consumedLiters, wastageLiters float64) models.StockSummary {
	initial = clamp(initial)
	consumedLiters = clamp(consumedLiters)
	wastageLiters = clamp(wastageLiters)

	remaining := math.Max(0, initial-consumedLiters-wastageLiters)

	percentage := 0
	if initial > 0 {
		percentage = int(math.Round(remaining / initial * 100))
	}

	return models.StockSummary{
		Style:          style,
		Initial:        initial,
		ConsumedLiters: consumedLiters,
		WastageLiters:  wastageLiters,
		Remaining:      remaining,
		Percentage:     percentage,
	}
}

func clamp(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
