// Package auth issues and verifies the signed tokens that carry a client's
// session id. Tokens identify a browser session; they grant no privileges.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is an issued session token.
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims is the token payload. The session id travels as the JWT id.
type Claims struct {
	jwt.RegisteredClaims
}

// SessionID returns the session id carried by the claims.
func (c Claims) SessionID() string {
	return c.ID
}

// Issuer signs session tokens.
type Issuer struct {
	Name string
	Key  string
	TTL  time.Duration
}

// Issue creates a session with a fresh id.
func (i Issuer) Issue() (Session, error) {
	return i.IssueFor(uuid.NewString())
}

// IssueFor signs a token for an existing session id, e.g. to extend it.
func (i Issuer) IssueFor(sessionID string) (Session, error) {
	if i.Key == "" {
		return Session{}, errors.New("signing key not configured")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    i.Name,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.Key))
	if err != nil {
		return Session{}, err
	}
	return Session{ID: sessionID, Token: token, ExpiresAt: exp}, nil
}

// Parse validates a token and returns its claims.
func (i Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(i.Key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if i.Name != "" && claims.Issuer != i.Name {
		return Claims{}, errors.New("issuer mismatch")
	}
	if claims.ID == "" {
		return Claims{}, errors.New("token carries no session id")
	}
	return *claims, nil
}
