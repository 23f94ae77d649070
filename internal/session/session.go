// Package session tracks the authenticated viewer identity.
//
// Cross-view state (notably the picked-resources store) must never leak
// across identities, so every identity change is announced on the event
// bus as a login event, including logout.
package session

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quarrydata/quarry/internal/events"
	"github.com/quarrydata/quarry/internal/logging"

	"go.uber.org/zap"
)

// Session holds the current viewer identity derived from the auth token.
type Session struct {
	bus *events.Bus

	mu     sync.RWMutex
	userID string
	login  string
	admin  bool
}

// New creates a session bound to the given bus.
func New(bus *events.Bus) *Session {
	return &Session{bus: bus}
}

// UserID returns the current viewer id, empty if logged out.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Login returns the current viewer login name.
func (s *Session) Login() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.login
}

// IsAdmin returns true if the current viewer is a site admin.
func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// SetToken installs a new auth token and derives the viewer identity
// from its claims. The token signature is the server's concern; the
// client only reads claims. A login event is published whenever the
// identity actually changes.
func (s *Session) SetToken(token string) {
	userID, login, admin := parseIdentity(token)

	s.mu.Lock()
	changed := s.userID != userID
	s.userID = userID
	s.login = login
	s.admin = admin
	s.mu.Unlock()

	if changed {
		logging.Info("viewer identity changed", zap.String("login", login))
		s.bus.PublishLogin(userID)
	}
}

// Clear drops the identity, equivalent to SetToken("").
func (s *Session) Clear() {
	s.SetToken("")
}

// tokenClaims are the claims the client reads from the platform token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Login string `json:"login,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

func parseIdentity(token string) (userID, login string, admin bool) {
	if token == "" {
		return "", "", false
	}
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		logging.Warn("auth token is not a parseable JWT", zap.Error(err))
		return "", "", false
	}
	return claims.Subject, claims.Login, claims.Admin
}
