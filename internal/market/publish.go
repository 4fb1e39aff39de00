package market

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ListingPayload is the structured listing sent to the publish API.
type ListingPayload struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency"`
	Condition   string            `json:"condition,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ImageURLs   []string          `json:"imageUrls,omitempty"`
}

// PublishResult identifies the created marketplace listing.
type PublishResult struct {
	ListingID string `json:"listingId"`
	URL       string `json:"url"`
}

// PublishListing creates a live listing on the marketplace. It requires a
// valid bearer token; rejections and transport failures both surface as
// *APIError.
func (c *Client) PublishListing(ctx context.Context, token string, payload ListingPayload) (*PublishResult, error) {
	result := &PublishResult{}
	_, err := handleError(c.httpClient.NewRequest().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(payload).
		SetResult(result).
		Post("/v1/listings"))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("listingId", result.ListingID).
		Str("title", payload.Title).
		Float64("price", payload.Price).
		Msg("published listing")

	return result, nil
}
