package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshFunc re-acquires a bearer token after an auth failure. It is
// typically backed by the platform's login or token-refresh endpoint.
type RefreshFunc func() (string, error)

// Logger is the minimal logging interface the store needs. The
// logging.Logger type satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store holds the client's bearer token and connectivity flags.
//
// It satisfies the realtime session's Authority interface: the session asks
// it for the current token before each dial, reports auth failures through
// InvalidateToken, and requests new credentials through RefreshAuthority.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	mu      sync.RWMutex
	token   string
	mock    bool
	online  func() bool
	refresh RefreshFunc
	logger  Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMock switches the store into mock mode. The realtime session treats a
// mock store as always authorised and connects its in-memory transport.
func WithMock(mock bool) Option {
	return func(s *Store) { s.mock = mock }
}

// WithOnlineCheck installs a reachability probe. Without one the store
// reports online unconditionally.
func WithOnlineCheck(fn func() bool) Option {
	return func(s *Store) { s.online = fn }
}

// WithRefresh installs the credential refresh hook invoked by
// RefreshAuthority.
func WithRefresh(fn RefreshFunc) Option {
	return func(s *Store) { s.refresh = fn }
}

// WithLogger installs a logger. Without one the store is silent.
func WithLogger(l Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store holding the given token.
func NewStore(token string, opts ...Option) *Store {
	s := &Store{
		token:  token,
		online: func() bool { return true },
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the current bearer token, or "" when none is held or the
// held token has expired.
//
// Expiry is read from the token's exp claim without verifying the signature.
// Verification belongs to the platform; the client only needs to know
// whether presenting the token is pointless. Opaque (non-JWT) tokens are
// returned as-is.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return ""
	}
	if expired(s.token) {
		return ""
	}
	return s.token
}

// SetToken replaces the held token.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Mock reports whether the client should use the in-memory transport.
func (s *Store) Mock() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mock
}

// Online reports network reachability.
func (s *Store) Online() bool {
	s.mu.RLock()
	probe := s.online
	s.mu.RUnlock()
	return probe()
}

// InvalidateToken discards the current token. The next Token call returns ""
// until SetToken or a successful RefreshAuthority supplies a replacement.
func (s *Store) InvalidateToken() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	s.logger.Debug("bearer token invalidated")
}

// RefreshAuthority re-acquires credentials through the configured refresh
// hook. Failures are logged, not returned: the realtime session retries the
// connect loop regardless, and will call back here on the next auth failure.
func (s *Store) RefreshAuthority() {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()

	if refresh == nil {
		s.logger.Warn("token refresh requested but no refresh hook configured")
		return
	}

	token, err := refresh()
	if err != nil {
		s.logger.Error("token refresh failed", "error", err)
		return
	}

	s.SetToken(token)
	s.logger.Info("bearer token refreshed")
}

// expired reports whether a JWT's exp claim lies in the past. Tokens that do
// not parse as JWTs, or that carry no exp claim, are never considered
// expired here.
func expired(token string) bool {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
