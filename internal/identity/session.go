package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

const (
	TokenTypeSession = "session"
	TokenTypeAdmin   = "admin"
)

// SessionClaims are the JWT claims of a signed-in user or an admin.
type SessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Type     string `json:"type"` // "session" or "admin"
}

// Principal returns the user carried by a session token.
func (c *SessionClaims) Principal() (Principal, error) {
	role, err := ledger.ParseRole(c.Role)
	if err != nil {
		return Principal{}, err
	}
	return Principal{Username: c.Username, Name: c.Name, Role: role}, nil
}

// SessionIssuer issues and verifies HS256 session tokens.
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates a SessionIssuer. A zero ttl means 24 hours.
func NewSessionIssuer(secret []byte, issuer string, ttl time.Duration) *SessionIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &SessionIssuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// RandomSecret returns 32 random bytes for a per-process signing key.
func RandomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	return b, nil
}

// Issue signs a session token for p and returns it with its expiry.
func (s *SessionIssuer) Issue(p Principal) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Username: p.Username,
		Name:     p.Name,
		Role:     string(p.Role),
		Type:     TokenTypeSession,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// IssueAdmin signs an admin token. Callers must check the admin secret with
// AdminSecretMatches first. A zero ttl means 8 hours.
func (s *SessionIssuer) IssueAdmin(ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	now := s.now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Type: TokenTypeAdmin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session or admin token.
func (s *SessionIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	if claims.Type != TokenTypeSession && claims.Type != TokenTypeAdmin {
		return nil, fmt.Errorf("unknown token type %q", claims.Type)
	}
	return claims, nil
}

// AdminSecretMatches compares presented with the configured admin secret.
// An empty configured secret disables admin access.
func AdminSecretMatches(configured, presented string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
