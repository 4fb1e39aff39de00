// Package auth owns the marketplace OAuth credential lifecycle: authorization
// URL issuance, code exchange, refresh and expiry tracking. No other package
// stores tokens.
package auth

import "time"

// Session holds the credential state for one connected marketplace account.
// It is created on a successful code exchange, mutated on refresh, and
// cleared when a refresh fails irrecoverably.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// ExpiredAt reports whether the access token has expired as of now. A zero
// expiry means the token never expires.
func (s *Session) ExpiredAt(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// State is the manager's position in the credential lifecycle.
type State string

const (
	StateUnauthenticated      State = "unauthenticated"
	StateAuthorizationPending State = "authorization_pending"
	StateAuthenticated        State = "authenticated"
	StateExpired              State = "expired"
)
