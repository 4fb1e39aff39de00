// Package comps turns raw marketplace sold-listing records into a canonical
// set of comparable sales that the pricing packages can aggregate.
package comps

import "time"

// Condition is the canonical garment condition category.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
	ConditionUnknown Condition = "unknown"
)

// KnownConditions lists every canonical condition except unknown.
var KnownConditions = []Condition{
	ConditionNew,
	ConditionLikeNew,
	ConditionGood,
	ConditionFair,
	ConditionPoor,
}

// ListingFormat distinguishes auction sales from fixed-price sales.
type ListingFormat string

const (
	FormatAuction ListingFormat = "auction"
	FormatFixed   ListingFormat = "fixed"
)

// RawComp is one sold-listing record as returned by the marketplace search
// API. Fields are loosely typed and may be missing; Normalize maps these onto
// the strict SoldComp type and drops records that cannot contribute to price
// statistics.
type RawComp struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Price        *float64 `json:"price,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	SoldAt       string   `json:"soldAt,omitempty"` // RFC 3339
	Condition    string   `json:"condition,omitempty"`
	ShippingCost *float64 `json:"shippingCost,omitempty"`
	Format       string   `json:"format,omitempty"`
}

// SoldComp is one historical sale with all required fields populated and the
// price converted to the reporting currency. Comps live only for the duration
// of a request; nothing persists them.
type SoldComp struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Price        float64       `json:"price"`
	Currency     string        `json:"currency"`
	SoldAt       time.Time     `json:"soldAt"`
	Condition    Condition     `json:"condition"`
	ShippingCost *float64      `json:"shippingCost,omitempty"`
	Format       ListingFormat `json:"format"`
}
