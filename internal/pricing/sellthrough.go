package pricing

import (
	"fmt"

	"rewear/internal/comps"
)

// Velocity classifies how quickly inventory for a query turns over.
type Velocity string

const (
	VelocitySlow     Velocity = "slow"
	VelocityModerate Velocity = "moderate"
	VelocityFast     Velocity = "fast"
)

// Velocity band boundaries, inclusive on the lower side of each band.
const (
	fastThreshold     = 0.7
	moderateThreshold = 0.3
)

// SellThroughReport describes market velocity for a query over the lookback
// window the comps were drawn from.
type SellThroughReport struct {
	Rate        float64  `json:"rate"`
	ActiveCount int      `json:"activeCount"`
	SoldCount   int      `json:"soldCount"`
	Velocity    Velocity `json:"velocity"`
}

// EstimateSellThrough computes sold / (sold + active) from normalized sold
// comps and the count of currently active listings for the same query. Zero
// active listings means no competing inventory, not an error; a zero
// denominator yields a rate of 0.0.
func EstimateSellThrough(sold []comps.SoldComp, activeCount int) (SellThroughReport, error) {
	if activeCount < 0 {
		return SellThroughReport{}, fmt.Errorf("%w: active count must be >= 0, got %d", ErrInvalidFilter, activeCount)
	}

	soldCount := len(sold)
	rate := 0.0
	if total := soldCount + activeCount; total > 0 {
		rate = float64(soldCount) / float64(total)
	}

	return SellThroughReport{
		Rate:        rate,
		ActiveCount: activeCount,
		SoldCount:   soldCount,
		Velocity:    classifyVelocity(rate),
	}, nil
}

func classifyVelocity(rate float64) Velocity {
	switch {
	case rate >= fastThreshold:
		return VelocityFast
	case rate >= moderateThreshold:
		return VelocityModerate
	default:
		return VelocitySlow
	}
}
