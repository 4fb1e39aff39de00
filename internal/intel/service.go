// Package intel composes marketplace search, comp normalization and the
// pricing calculations into the market-intelligence operations the service
// layer and the publish queue consume.
package intel

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"rewear/internal/comps"
	"rewear/internal/market"
	"rewear/internal/pricing"
)

// DefaultLookback is the sold-comp window used for recommendations and
// sell-through reports.
const DefaultLookback = 90 * 24 * time.Hour

// SearchClient is the slice of the marketplace client intel needs.
type SearchClient interface {
	SearchSold(ctx context.Context, params market.SearchParams) (*market.SoldSearchResult, error)
	CountActive(ctx context.Context, params market.SearchParams) (int, error)
}

// Service runs comps queries end to end: search, normalize, aggregate.
// Stateless and safe for unrestricted concurrent use.
type Service struct {
	search   SearchClient
	lookback time.Duration
	now      func() time.Time
}

// NewService creates a Service with the default 90-day lookback.
func NewService(search SearchClient) *Service {
	return &Service{search: search, lookback: DefaultLookback, now: time.Now}
}

// Comps fetches and normalizes sold comps for a query, restricted to the
// lookback window, most recent sale first.
func (s *Service) Comps(ctx context.Context, query string) ([]comps.SoldComp, error) {
	result, err := s.search.SearchSold(ctx, market.SearchParams{Query: query})
	if err != nil {
		return nil, err
	}

	sold, err := comps.Normalize(result.Docs, comps.NormalizeOptions{Now: s.now()})
	if err != nil {
		return nil, err
	}

	windowed := comps.Window(sold, s.lookback, s.now())

	log.Debug().
		Str("query", query).
		Int("raw", len(result.Docs)).
		Int("normalized", len(sold)).
		Int("inWindow", len(windowed)).
		Msg("fetched sold comps")

	return windowed, nil
}

// Recommend produces a tiered price recommendation for a query, optionally
// restricted to a single condition.
func (s *Service) Recommend(ctx context.Context, query string, condition string) (pricing.PriceRecommendation, error) {
	sold, err := s.Comps(ctx, query)
	if err != nil {
		return pricing.PriceRecommendation{}, err
	}
	return pricing.Recommend(sold, pricing.RecommendOptions{
		Condition: comps.Condition(condition),
	})
}

// SellThrough produces a sell-through report for a query by combining the
// sold comps in the lookback window with the current active listing count.
func (s *Service) SellThrough(ctx context.Context, query string) (pricing.SellThroughReport, error) {
	sold, err := s.Comps(ctx, query)
	if err != nil {
		return pricing.SellThroughReport{}, err
	}
	active, err := s.search.CountActive(ctx, market.SearchParams{Query: query})
	if err != nil {
		return pricing.SellThroughReport{}, err
	}
	return pricing.EstimateSellThrough(sold, active)
}
