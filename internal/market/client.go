// Package market wraps the external marketplace HTTP APIs: sold/active
// listing search and listing publication. OAuth token acquisition lives in
// the auth subpackage; calls that need authentication take a bearer token
// explicitly.
package market

import (
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is the production marketplace API gateway.
	DefaultBaseURL = "https://api.garmentmarket.example.com"

	defaultTimeout = 15 * time.Second
	userAgent      = "rewear/1.0"
)

// ClientOpts configures a Client. The zero value targets the production API
// with the default timeout.
type ClientOpts struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the marketplace search and publish APIs.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

// NewClient creates a marketplace API client. Every request is bounded by the
// configured timeout; a timeout surfaces as an *APIError like any other
// transport failure.
func NewClient(opts ClientOpts) *Client {
	c := Client{baseURL: DefaultBaseURL}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.httpClient = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(timeout).
		SetHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": userAgent,
		})
	return &c
}

// handleError turns failing responses (>399 status code) into *APIError.
// Without this, failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		if res == nil || res.Request == nil {
			return res, err
		}
		return res, &APIError{
			Method:  res.Request.Method,
			URL:     res.Request.URL,
			Message: err.Error(),
		}
	}
	if res.IsError() {
		apiErr := &APIError{
			Method:     res.Request.Method,
			URL:        res.Request.URL,
			StatusCode: res.StatusCode(),
		}
		// The marketplace returns structured rejections as {"error": "..."}.
		var body struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(res.Body(), &body); jsonErr == nil && body.Error != "" {
			apiErr.Message = body.Error
		}
		return res, apiErr
	}
	return res, nil
}
