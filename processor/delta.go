package processor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketpulse/models"
)

// DeriveDeltas turns an ascending level series into its first differences,
// dated at the later observation and rounded to two decimals.
func DeriveDeltas(levels []models.Observation) ([]models.MacroPoint, error) {
	if len(levels) < 2 {
		return nil, fmt.Errorf("derive deltas from %d points: %w", len(levels), models.ErrInsufficientHistory)
	}
	out := make([]models.MacroPoint, 0, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		out = append(out, models.MacroPoint{
			Date:  levels[i].Date,
			Value: Round2(levels[i].Value - levels[i-1].Value),
		})
	}
	return out, nil
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
