package market

import (
	"context"
	"strconv"

	"rewear/internal/comps"
)

// SearchParams describes a comps query against the marketplace search API.
type SearchParams struct {
	Query     string
	Category  string
	Condition string
	Rows      int
}

const defaultSearchRows = 50

// SoldSearchResult is the response of the sold-listings search endpoint. Docs
// are loosely typed raw records; the comps package maps them onto the strict
// SoldComp type.
type SoldSearchResult struct {
	Docs  []comps.RawComp `json:"docs"`
	Total int             `json:"total"`
}

// ActiveCountResult is the response of the active-listings count endpoint.
type ActiveCountResult struct {
	Count int `json:"count"`
}

func (p SearchParams) query() map[string]string {
	rows := p.Rows
	if rows <= 0 {
		rows = defaultSearchRows
	}
	q := map[string]string{
		"q":    p.Query,
		"rows": strconv.Itoa(rows),
	}
	if p.Category != "" {
		q["category"] = p.Category
	}
	if p.Condition != "" {
		q["condition"] = p.Condition
	}
	return q
}

// SearchSold fetches sold-listing records matching the query. The search API
// is public and needs no bearer token.
func (c *Client) SearchSold(ctx context.Context, params SearchParams) (*SoldSearchResult, error) {
	result := &SoldSearchResult{}
	_, err := handleError(c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParams(params.query()).
		SetResult(result).
		Get("/v1/search/sold"))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountActive returns the number of currently active (unsold) listings
// matching the query.
func (c *Client) CountActive(ctx context.Context, params SearchParams) (int, error) {
	result := &ActiveCountResult{}
	_, err := handleError(c.httpClient.NewRequest().
		SetContext(ctx).
		SetQueryParams(params.query()).
		SetResult(result).
		Get("/v1/search/active/count"))
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}
