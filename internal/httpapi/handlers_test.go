package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewear/internal/comps"
	"rewear/internal/market"
	"rewear/internal/market/auth"
	"rewear/internal/pricing"
	"rewear/internal/queue"
)

type stubIntel struct {
	sold []comps.SoldComp
	rec  pricing.PriceRecommendation
	err  error
}

func (s *stubIntel) Comps(ctx context.Context, query string) ([]comps.SoldComp, error) {
	return s.sold, s.err
}

func (s *stubIntel) Recommend(ctx context.Context, query, condition string) (pricing.PriceRecommendation, error) {
	return s.rec, s.err
}

func (s *stubIntel) SellThrough(ctx context.Context, query string) (pricing.SellThroughReport, error) {
	if s.err != nil {
		return pricing.SellThroughReport{}, s.err
	}
	return pricing.SellThroughReport{Rate: 0.5, SoldCount: 5, ActiveCount: 5, Velocity: pricing.VelocityModerate}, nil
}

type stubTokens struct {
	token string
	err   error
}

func (s *stubTokens) GetValidToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

type stubPublisher struct{}

func (stubPublisher) PublishListing(ctx context.Context, token string, payload market.ListingPayload) (*market.PublishResult, error) {
	return &market.PublishResult{ListingID: "L-1"}, nil
}

type stubRecommender struct{}

func (stubRecommender) Recommend(ctx context.Context, query, condition string) (pricing.PriceRecommendation, error) {
	return pricing.PriceRecommendation{Market: 25}, nil
}

func newTestServer(t *testing.T, intel IntelService, tokens queue.TokenSource) http.Handler {
	t.Helper()
	if tokens == nil {
		tokens = &stubTokens{token: "tok"}
	}
	processor, err := queue.NewProcessor(tokens, stubPublisher{}, stubRecommender{}, nil)
	require.NoError(t, err)
	manager := auth.NewManager(auth.Config{
		ClientID:    "client",
		RedirectURI: "http://localhost/cb",
		Endpoints:   auth.Endpoints{AuthorizeURL: "https://auth.example.com/authorize", TokenURL: "https://auth.example.com/token"},
	}, nil)
	return NewServer(nil, intel, manager, processor).Router()
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)
	rr, body := doJSON(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["authenticated"])
}

func TestRecommendation(t *testing.T) {
	h := newTestServer(t, &stubIntel{rec: pricing.PriceRecommendation{
		Quick: 21.99, Market: 25, Premium: 28, SampleSize: 5,
		Confidence: pricing.ConfidenceMedium, Currency: "USD",
	}}, nil)

	rr, body := doJSON(t, h, http.MethodGet, "/api/recommendation?q=levis+501", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 21.99, body["quick"].(float64), 0.001)
	assert.InDelta(t, 25.0, body["market"].(float64), 0.001)
	assert.Equal(t, "medium", body["confidence"])
}

func TestRecommendation_MissingQuery(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)
	rr, body := doJSON(t, h, http.MethodGet, "/api/recommendation", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "q")
}

func TestRecommendation_InvalidFilterMapsTo400(t *testing.T) {
	h := newTestServer(t, &stubIntel{err: pricing.ErrInvalidFilter}, nil)
	rr, _ := doJSON(t, h, http.MethodGet, "/api/recommendation?q=x&condition=pristine", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSellThrough(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)
	rr, body := doJSON(t, h, http.MethodGet, "/api/sell-through?q=wool+coat", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.InDelta(t, 0.5, body["rate"].(float64), 0.001)
	assert.Equal(t, "moderate", body["velocity"])
}

func TestComps_UpstreamFailureMapsTo502(t *testing.T) {
	h := newTestServer(t, &stubIntel{err: &market.APIError{StatusCode: 500, Message: "boom"}}, nil)
	rr, _ := doJSON(t, h, http.MethodGet, "/api/comps?q=x", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestAuthURLAndStatus(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)

	rr, body := doJSON(t, h, http.MethodGet, "/api/auth/url", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	url, ok := body["url"].(string)
	require.True(t, ok)
	assert.Contains(t, url, "https://auth.example.com/authorize")
	assert.Contains(t, url, "client_id=client")

	rr, body = doJSON(t, h, http.MethodGet, "/api/auth/status", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, string(auth.StateAuthorizationPending), body["state"])
}

func TestAuthCallback_MissingCode(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)
	rr, _ := doJSON(t, h, http.MethodGet, "/api/auth/callback", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQueueLifecycle(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)

	rr, body := doJSON(t, h, http.MethodPost, "/api/queue", `{"title": "Wool coat", "price": 45}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id, ok := body["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	rr, body = doJSON(t, h, http.MethodGet, "/api/queue", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["count"])

	rr, _ = doJSON(t, h, http.MethodDelete, "/api/queue/"+id, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = doJSON(t, h, http.MethodDelete, "/api/queue/"+id, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueueAdd_MissingTitle(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)
	rr, body := doJSON(t, h, http.MethodPost, "/api/queue", `{"price": 5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, body["error"], "title")
}

func TestQueueProcess(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)

	rr, _ := doJSON(t, h, http.MethodPost, "/api/queue", `{"title": "Wool coat", "price": 45}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, body := doJSON(t, h, http.MethodPost, "/api/queue/process", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	item := results[0].(map[string]any)
	assert.Equal(t, string(queue.StatusPublished), item["status"])
}

func TestQueueProcess_ReauthorizationMapsTo409(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, &stubTokens{err: auth.ErrReauthorizationRequired})

	rr, _ := doJSON(t, h, http.MethodPost, "/api/queue", `{"title": "Wool coat", "price": 45}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, body := doJSON(t, h, http.MethodPost, "/api/queue/process", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, true, body["reauthorizationNeeded"])
	assert.EqualValues(t, 0, body["processedBeforeStopped"])
}

func TestAnalyze_NoAnalyzerConfigured(t *testing.T) {
	h := newTestServer(t, &stubIntel{}, nil)
	rr, _ := doJSON(t, h, http.MethodPost, "/api/analyze", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
