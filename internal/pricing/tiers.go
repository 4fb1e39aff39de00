// Package pricing aggregates normalized sold comps into tiered price
// recommendations and sell-through reports.
package pricing

import (
	"errors"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"rewear/internal/comps"
)

// ErrInvalidFilter is returned for caller-supplied filters or parameters that
// cannot be applied.
var ErrInvalidFilter = errors.New("pricing: invalid filter")

// Confidence indicates how much weight a recommendation deserves, based on
// sample size.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Sample size thresholds for confidence levels. Below MinSampleSize the
// recommendation is always low confidence.
const (
	MinSampleSize    = 5
	HighSampleSize   = 15
	outlierCapFactor = 3.0
)

// DefaultFallbackPrice is the documented baseline used when no comps are
// available and the caller supplied no fallback of their own.
const DefaultFallbackPrice = 19.99

// PriceRecommendation is a three-tier suggested price. Quick <= Market <=
// Premium always holds; tier prices are derived from comps, never
// user-supplied.
type PriceRecommendation struct {
	Quick      float64    `json:"quick"`
	Market     float64    `json:"market"`
	Premium    float64    `json:"premium"`
	SampleSize int        `json:"sampleSize"`
	Confidence Confidence `json:"confidence"`
	Currency   string     `json:"currency"`
}

// RecommendOptions tunes Recommend. Condition, when non-empty, restricts the
// comp set to a single canonical condition; comps with an unknown condition
// are excluded from such breakdowns. FallbackPrice seeds the degraded mode
// used when fewer than two comps remain.
type RecommendOptions struct {
	Condition     comps.Condition
	FallbackPrice float64
	Currency      string
}

// Recommend computes a tiered price recommendation from a normalized,
// date-ordered comp sequence. The caller is expected to have restricted the
// comps to the desired lookback window already.
//
// Quick is the 25th percentile rounded down to a .99 ending, Market the
// median, Premium the 75th percentile. Sale prices above three times the
// median are excluded from percentile computation but still counted in
// SampleSize. Fewer than two usable comps is a defined degraded mode, not an
// error: the result is built from FallbackPrice (or the single comp) with
// low confidence.
func Recommend(sold []comps.SoldComp, opts RecommendOptions) (PriceRecommendation, error) {
	if opts.Condition != "" && !comps.IsKnownCondition(string(opts.Condition)) {
		return PriceRecommendation{}, ErrInvalidFilter
	}
	currency := opts.Currency
	if currency == "" {
		currency = comps.DefaultCurrency
	}

	prices := make([]float64, 0, len(sold))
	for _, c := range sold {
		if opts.Condition != "" && c.Condition != opts.Condition {
			continue
		}
		prices = append(prices, c.Price)
	}
	sampleSize := len(prices)

	if sampleSize < 2 {
		rec := degradedRecommendation(prices, opts.FallbackPrice, currency)
		rec.SampleSize = sampleSize
		return rec, nil
	}

	sort.Float64s(prices)
	median := percentile(prices, 0.5)

	// Cap extreme outliers so one lucky sale cannot inflate the premium
	// tier. Excluded prices still count toward SampleSize.
	capped := prices
	if limit := median * outlierCapFactor; prices[len(prices)-1] > limit {
		capped = make([]float64, 0, len(prices))
		for _, p := range prices {
			if p <= limit {
				capped = append(capped, p)
			}
		}
		log.Debug().
			Int("excluded", len(prices)-len(capped)).
			Float64("cap", limit).
			Msg("excluded outlier comps from percentiles")
	}

	quick := roundDownToNinetyNine(percentile(capped, 0.25))
	market := roundToCents(percentile(capped, 0.5))
	premium := roundToCents(percentile(capped, 0.75))

	// Rounding must never break tier ordering.
	market = math.Max(market, quick)
	premium = math.Max(premium, market)

	return PriceRecommendation{
		Quick:      quick,
		Market:     market,
		Premium:    premium,
		SampleSize: sampleSize,
		Confidence: confidenceFor(sampleSize),
		Currency:   currency,
	}, nil
}

// degradedRecommendation handles the zero- and one-comp cases.
func degradedRecommendation(prices []float64, fallback float64, currency string) PriceRecommendation {
	base := fallback
	if len(prices) == 1 && prices[0] > 0 {
		base = prices[0]
	}
	if base <= 0 {
		base = DefaultFallbackPrice
	}

	quick := roundDownToNinetyNine(base * 0.85)
	market := math.Max(roundToCents(base), quick)
	premium := math.Max(roundToCents(base*1.15), market)

	return PriceRecommendation{
		Quick:      quick,
		Market:     market,
		Premium:    premium,
		Confidence: ConfidenceLow,
		Currency:   currency,
	}
}

func confidenceFor(sampleSize int) Confidence {
	switch {
	case sampleSize < MinSampleSize:
		return ConfidenceLow
	case sampleSize < HighSampleSize:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// percentile computes the p-th percentile (0..1) of sorted values using
// linear interpolation between closest ranks. Alternate nearest-rank methods
// would change downstream expectations, so the method is fixed here.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// roundDownToNinetyNine rounds down to the nearest price ending in .99, the
// pricing increment used for the quick tier. Values below the smallest
// increment stay at plain cent precision.
func roundDownToNinetyNine(v float64) float64 {
	r := math.Floor(v+0.01) - 0.01
	if r < 0.99 {
		return roundToCents(v)
	}
	return r
}

func roundToCents(v float64) float64 {
	return math.Round(v*100) / 100
}
