package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidGrant is returned when an authorization code is invalid or
	// expired. The manager's state is left unchanged.
	ErrInvalidGrant = errors.New("auth: invalid or expired authorization grant")

	// ErrReauthorizationRequired is returned when no usable credentials
	// exist and a refresh is not possible. Callers must treat this as
	// non-retriable without renewed user consent.
	ErrReauthorizationRequired = errors.New("auth: reauthorization required")
)

const defaultTimeout = 15 * time.Second

// Endpoints are the marketplace OAuth endpoints.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
}

// Config configures a Manager.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Endpoints    Endpoints
	Timeout      time.Duration
}

// SessionStore persists the OAuth session across restarts. Implementations
// must tolerate LoadSession returning (nil, nil) when nothing is stored.
type SessionStore interface {
	LoadSession() (*Session, error)
	SaveSession(*Session) error
	ClearSession() error
}

// Manager owns the OAuth session for one marketplace account and hands out
// valid bearer tokens to outbound calls. All session mutation is serialized
// behind a mutex so concurrent callers racing past an expired token trigger
// at most one refresh: the first caller refreshes, the rest wait and reuse
// its result.
type Manager struct {
	cfg        Config
	httpClient *resty.Client
	store      SessionStore

	mu      sync.Mutex
	state   State
	session *Session

	now func() time.Time
}

// NewManager creates a Manager. store may be nil for a purely in-memory
// session. A previously persisted session is loaded and resumed: its state is
// Authenticated or Expired depending on the stored expiry.
func NewManager(cfg Config, store SessionStore) *Manager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	m := &Manager{
		cfg: cfg,
		httpClient: resty.New().
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		store: store,
		state: StateUnauthenticated,
		now:   time.Now,
	}

	if store != nil {
		if sess, err := store.LoadSession(); err != nil {
			log.Warn().Err(err).Msg("failed to load stored oauth session")
		} else if sess != nil {
			m.session = sess
			if sess.ExpiredAt(m.now()) {
				m.state = StateExpired
			} else {
				m.state = StateAuthenticated
			}
			log.Info().Str("state", string(m.state)).Msg("resumed stored oauth session")
		}
	}

	return m
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateAuthenticated && m.session != nil && m.session.ExpiredAt(m.now()) {
		m.state = StateExpired
	}
	return m.state
}

// IssueAuthorizationURL builds the external authorization URL the user must
// visit to grant access. Idempotent: calling it repeatedly returns the same
// URL. From Unauthenticated it moves the lifecycle to AuthorizationPending;
// in any other state it causes no transition.
func (m *Manager) IssueAuthorizationURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUnauthenticated {
		m.state = StateAuthorizationPending
	}

	q := url.Values{}
	q.Set("client_id", m.cfg.ClientID)
	q.Set("redirect_uri", m.cfg.RedirectURI)
	q.Set("response_type", "code")
	if len(m.cfg.Scopes) > 0 {
		q.Set("scope", strings.Join(m.cfg.Scopes, " "))
	}
	return m.cfg.Endpoints.AuthorizeURL + "?" + q.Encode()
}

// tokenResponse is the marketplace token endpoint response for both code
// exchange and refresh grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
}

// CompleteExchange exchanges an authorization code for tokens and moves the
// lifecycle to Authenticated. An invalid or expired code fails with
// ErrInvalidGrant and leaves the state unchanged.
//
// The defined flow arrives here from AuthorizationPending, but a code is
// accepted in any state: a resumed session can be Expired without ever
// passing through IssueAuthorizationURL in this process, and a fresh consent
// round must still be able to replace it.
func (m *Manager) CompleteExchange(ctx context.Context, code string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tok, err := m.requestToken(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {m.cfg.RedirectURI},
	})
	if err != nil {
		return nil, err
	}

	m.session = m.sessionFromToken(tok, nil)
	m.state = StateAuthenticated
	m.persistLocked()

	log.Info().Time("expiresAt", m.session.ExpiresAt).Msg("oauth code exchange completed")

	out := *m.session
	return &out, nil
}

// GetValidToken returns a bearer token that is valid right now. An expired
// access token is refreshed inline, at most once per call. If the refresh
// fails the session is cleared, the lifecycle returns to Unauthenticated and
// ErrReauthorizationRequired is returned.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return "", ErrReauthorizationRequired
	}
	if !m.session.ExpiredAt(m.now()) {
		return m.session.AccessToken, nil
	}

	m.state = StateExpired
	if m.session.RefreshToken == "" {
		m.invalidateLocked()
		return "", ErrReauthorizationRequired
	}

	tok, err := m.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.session.RefreshToken},
	})
	if err != nil {
		log.Warn().Err(err).Msg("token refresh failed, reauthorization required")
		m.invalidateLocked()
		return "", fmt.Errorf("%w: %v", ErrReauthorizationRequired, err)
	}

	m.session = m.sessionFromToken(tok, m.session)
	m.state = StateAuthenticated
	m.persistLocked()

	log.Info().Time("expiresAt", m.session.ExpiresAt).Msg("access token refreshed")

	return m.session.AccessToken, nil
}

// requestToken posts a grant to the token endpoint. Callers hold the mutex.
func (m *Manager) requestToken(ctx context.Context, form url.Values) (*tokenResponse, error) {
	form.Set("client_id", m.cfg.ClientID)
	form.Set("client_secret", m.cfg.ClientSecret)

	res, err := m.httpClient.NewRequest().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		Post(m.cfg.Endpoints.TokenURL)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(res.Body(), &tok); err != nil {
		return nil, fmt.Errorf("failed to decode token response (status %d): %w", res.StatusCode(), err)
	}

	if res.IsError() || tok.Error != "" {
		if tok.Error == "invalid_grant" {
			return nil, ErrInvalidGrant
		}
		return nil, fmt.Errorf("token endpoint error (status %d): %s", res.StatusCode(), tok.Error)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	return &tok, nil
}

// sessionFromToken builds a Session from a token response, carrying over the
// previous refresh token and scopes when the response omits them.
func (m *Manager) sessionFromToken(tok *tokenResponse, prev *Session) *Session {
	sess := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if tok.ExpiresIn > 0 {
		sess.ExpiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if tok.Scope != "" {
		sess.Scopes = strings.Fields(tok.Scope)
	}
	if prev != nil {
		if sess.RefreshToken == "" {
			sess.RefreshToken = prev.RefreshToken
		}
		if len(sess.Scopes) == 0 {
			sess.Scopes = prev.Scopes
		}
	}
	return sess
}

func (m *Manager) invalidateLocked() {
	m.session = nil
	m.state = StateUnauthenticated
	if m.store != nil {
		if err := m.store.ClearSession(); err != nil {
			log.Warn().Err(err).Msg("failed to clear stored oauth session")
		}
	}
}

func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSession(m.session); err != nil {
		log.Warn().Err(err).Msg("failed to persist oauth session")
	}
}
