package validator

import (
	"math"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// ReconcilePrices certifies that two independent price observations agree
// within toleranceFraction. The relative difference is measured against
// the secondary observation: |primary - secondary| / secondary.
//
// Disagreement is a normal validation outcome, not an error; the failing
// result carries both raw values, the computed diff, and the threshold.
// A source that could not be reached at all never gets here: that failure
// belongs to the price-source collaborator and is handled by the caller.
func ReconcilePrices(primary, secondary, toleranceFraction float64) domain.ValidationResult {
	diff := math.Abs(primary-secondary) / secondary
	if diff <= toleranceFraction {
		return domain.OK()
	}
	return domain.Fail("price sources disagree beyond tolerance", map[string]any{
		"primary":   primary,
		"secondary": secondary,
		"diff":      diff,
		"tolerance": toleranceFraction,
	})
}
