package comps

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrMalformedInput marks a raw payload that cannot be interpreted as a comp
// collection at all. Individual bad records are dropped, never surfaced as
// errors, and a missing or empty collection is simply empty output: the
// marketplace omits the docs array on zero-result searches.
var ErrMalformedInput = errors.New("comps: malformed input collection")

// DefaultCurrency is the reporting currency all comp prices are converted to.
const DefaultCurrency = "USD"

// DefaultRates maps a source currency to its value in the reporting currency.
// Injected rates take precedence; currencies absent from the table cause the
// record to be dropped.
var DefaultRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.09,
	"GBP": 1.27,
	"CAD": 0.73,
	"AUD": 0.66,
}

// NormalizeOptions tunes Normalize. The zero value uses the default reporting
// currency, the built-in rate table and the current time.
type NormalizeOptions struct {
	Currency string
	Rates    map[string]float64
	Now      time.Time
}

// Normalize converts raw search records into SoldComps, most recent sale
// first. Records missing a sale price or sale date, priced in an unsupported
// currency, negatively priced, or dated in the future are dropped. Unmapped
// condition strings are retained as ConditionUnknown so they still count
// toward overall price statistics.
//
// Normalize is a pure transformation. A nil collection is treated as empty;
// zero-result searches reach here with no docs at all.
func Normalize(raw []RawComp, opts NormalizeOptions) ([]SoldComp, error) {
	currency := opts.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	rates := opts.Rates
	if rates == nil {
		rates = DefaultRates
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := make([]SoldComp, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		comp, ok := normalizeOne(r, currency, rates, now)
		if !ok {
			dropped++
			continue
		}
		out = append(out, comp)
	}

	if dropped > 0 {
		log.Debug().
			Int("kept", len(out)).
			Int("dropped", dropped).
			Msg("normalized raw comps")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SoldAt.After(out[j].SoldAt)
	})

	return out, nil
}

func normalizeOne(r RawComp, currency string, rates map[string]float64, now time.Time) (SoldComp, bool) {
	if r.Price == nil || *r.Price < 0 {
		return SoldComp{}, false
	}
	if r.SoldAt == "" {
		return SoldComp{}, false
	}
	soldAt, err := time.Parse(time.RFC3339, r.SoldAt)
	if err != nil || soldAt.After(now) {
		return SoldComp{}, false
	}

	// A record without a currency is assumed to already be in the
	// reporting currency.
	src := strings.ToUpper(strings.TrimSpace(r.Currency))
	if src == "" {
		src = currency
	}
	rate, ok := rates[src]
	if !ok {
		return SoldComp{}, false
	}

	comp := SoldComp{
		ID:        r.ID,
		Title:     r.Title,
		Price:     *r.Price * rate,
		Currency:  currency,
		SoldAt:    soldAt,
		Condition: MapCondition(r.Condition),
		Format:    mapFormat(r.Format),
	}
	if r.ShippingCost != nil {
		cost := *r.ShippingCost * rate
		comp.ShippingCost = &cost
	}
	return comp, true
}

// MapCondition maps a free-form marketplace condition string onto the
// canonical condition set. Unmapped values become ConditionUnknown.
func MapCondition(s string) Condition {
	c := strings.ToLower(strings.TrimSpace(s))
	switch {
	case c == "":
		return ConditionUnknown
	case strings.Contains(c, "new with tags"), strings.Contains(c, "nwt"), c == "new":
		return ConditionNew
	case strings.Contains(c, "like new"), strings.Contains(c, "excellent"), strings.Contains(c, "mint"):
		return ConditionLikeNew
	case strings.Contains(c, "very good"), strings.Contains(c, "good"), strings.Contains(c, "gently used"):
		return ConditionGood
	case strings.Contains(c, "fair"), strings.Contains(c, "acceptable"), strings.Contains(c, "used"):
		return ConditionFair
	case strings.Contains(c, "poor"), strings.Contains(c, "damaged"), strings.Contains(c, "parts"), strings.Contains(c, "flaw"):
		return ConditionPoor
	default:
		return ConditionUnknown
	}
}

// IsKnownCondition reports whether s names a canonical condition, including
// ConditionUnknown.
func IsKnownCondition(s string) bool {
	switch Condition(s) {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor, ConditionUnknown:
		return true
	}
	return false
}

func mapFormat(s string) ListingFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatAuction)) {
		return FormatAuction
	}
	return FormatFixed
}

// Window returns the comps sold within the lookback period ending at now.
// The input must already be ordered most recent first, as produced by
// Normalize; the result preserves that order.
func Window(sold []SoldComp, lookback time.Duration, now time.Time) []SoldComp {
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(-lookback)
	out := make([]SoldComp, 0, len(sold))
	for _, c := range sold {
		if c.SoldAt.Before(cutoff) {
			break
		}
		out = append(out, c)
	}
	return out
}
