package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenServer is a minimal OAuth token endpoint. It counts grants by type
// and can be told to reject refreshes.
type fakeTokenServer struct {
	*httptest.Server

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
	failRefresh   atomic.Bool

	mu        sync.Mutex
	tokenSeq  int
	validCode string
}

func newFakeTokenServer(validCode string) *fakeTokenServer {
	f := &fakeTokenServer{validCode: validCode}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		switch r.PostFormValue("grant_type") {
		case "authorization_code":
			f.exchangeCalls.Add(1)
			if r.PostFormValue("code") != f.validCode {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
		case "refresh_token":
			f.refreshCalls.Add(1)
			if f.failRefresh.Load() {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
				return
			}
		default:
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "unsupported_grant_type"})
			return
		}

		f.mu.Lock()
		f.tokenSeq++
		seq := f.tokenSeq
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("access-%d", seq),
			"refresh_token": fmt.Sprintf("refresh-%d", seq),
			"expires_in":    3600,
			"scope":         "listings.read listings.write",
		})
	}))
	return f
}

func newTestManager(t *testing.T, ts *fakeTokenServer) *Manager {
	t.Helper()
	return NewManager(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback",
		Scopes:       []string{"listings.read", "listings.write"},
		Endpoints: Endpoints{
			AuthorizeURL: ts.URL + "/authorize",
			TokenURL:     ts.URL + "/token",
		},
	}, nil)
}

func TestIssueAuthorizationURL(t *testing.T) {
	ts := newFakeTokenServer("code")
	defer ts.Close()
	m := newTestManager(t, ts)

	assert.Equal(t, StateUnauthenticated, m.State())

	url1 := m.IssueAuthorizationURL()
	assert.Contains(t, url1, "client_id=client")
	assert.Contains(t, url1, "response_type=code")
	assert.Contains(t, url1, "scope=listings.read+listings.write")
	assert.Equal(t, StateAuthorizationPending, m.State())

	// Idempotent: same URL, no further transition.
	assert.Equal(t, url1, m.IssueAuthorizationURL())
	assert.Equal(t, StateAuthorizationPending, m.State())
}

func TestCompleteExchange_Success(t *testing.T) {
	ts := newFakeTokenServer("good-code")
	defer ts.Close()
	m := newTestManager(t, ts)
	m.IssueAuthorizationURL()

	sess, err := m.CompleteExchange(context.Background(), "good-code")
	require.NoError(t, err)

	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, "refresh-1", sess.RefreshToken)
	assert.Equal(t, []string{"listings.read", "listings.write"}, sess.Scopes)
	assert.False(t, sess.ExpiresAt.IsZero())
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestCompleteExchange_InvalidCodeLeavesStateUnchanged(t *testing.T) {
	ts := newFakeTokenServer("good-code")
	defer ts.Close()
	m := newTestManager(t, ts)
	m.IssueAuthorizationURL()

	_, err := m.CompleteExchange(context.Background(), "bad-code")
	assert.ErrorIs(t, err, ErrInvalidGrant)
	assert.Equal(t, StateAuthorizationPending, m.State())
}

func TestCompleteExchange_ReplacesExistingSession(t *testing.T) {
	ts := newFakeTokenServer("good-code")
	defer ts.Close()
	m := newTestManager(t, ts)

	// A code is accepted from any state, not only AuthorizationPending: a
	// fresh consent round replaces whatever session exists.
	sess, err := m.CompleteExchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "access-1", sess.AccessToken)
	assert.Equal(t, StateAuthenticated, m.State())

	sess, err = m.CompleteExchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "access-2", sess.AccessToken)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestGetValidToken_NoSession(t *testing.T) {
	ts := newFakeTokenServer("code")
	defer ts.Close()
	m := newTestManager(t, ts)

	_, err := m.GetValidToken(context.Background())
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
}

func TestGetValidToken_ValidTokenIsIdempotent(t *testing.T) {
	ts := newFakeTokenServer("code")
	defer ts.Close()
	m := newTestManager(t, ts)
	_, err := m.CompleteExchange(context.Background(), "code")
	require.NoError(t, err)

	tok1, err := m.GetValidToken(context.Background())
	require.NoError(t, err)
	tok2, err := m.GetValidToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tok1, tok2)
	assert.Equal(t, int32(0), ts.refreshCalls.Load(), "no refresh call for a still-valid token")
}

func TestGetValidToken_RefreshesExpiredToken(t *testing.T) {
	ts := newFakeTokenServer("code")
	defer ts.Close()
	m := newTestManager(t, ts)
	_, err := m.CompleteExchange(context.Background(), "code")
	require.NoError(t, err)

	// Move the clock past the expiry.
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tok, err := m.GetValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestGetValidToken_RefreshFailureRequiresReauthorization(t *testing.T) {
	ts := newFakeTokenServer("code")
	defer ts.Close()
	m := newTestManager(t, ts)
	_, err := m.CompleteExchange(context.Background(), "code")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	ts.failRefresh.Store(true)

	_, err = m.GetValidToken(context.Background())
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.Equal(t, StateUnauthenticated, m.State())

	// The session is gone; a second call fails the same way without
	// hitting the refresh endpoint again.
	before := ts.refreshCalls.Load()
	_, err = m.GetValidToken(context.Background())
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.Equal(t, before, ts.refreshCalls.Load())
}

func TestGetValidToken_ConcurrentCallersSingleRefresh(t *testing.T) {
	ts := newFakeTokenServer("code")
	defer ts.Close()
	m := newTestManager(t, ts)
	_, err := m.CompleteExchange(context.Background(), "code")
	require.NoError(t, err)

	// Freeze the clock past expiry until the refresh lands, then advance
	// only through the refreshed session's own expiry.
	expired := time.Now().Add(2 * time.Hour)
	m.now = func() time.Time { return expired }

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.GetValidToken(context.Background())
			require.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	// First caller refreshes, the rest reuse its result.
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "access-2", tok)
	}
}

func TestSessionExpiredAt(t *testing.T) {
	now := time.Now()

	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.ExpiredAt(now))
	assert.True(t, s.ExpiredAt(now.Add(2*time.Minute)))

	// Zero expiry never expires.
	forever := &Session{}
	assert.False(t, forever.ExpiredAt(now))
}
