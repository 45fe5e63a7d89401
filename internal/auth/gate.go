package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no credential was supplied.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned when the token is malformed, badly signed,
	// or carries no user id.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the JWT claims understood by the gate.
type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Identity is what a connection is bound to after admission.
type Identity struct {
	UserID string
	// ExpiresAt is zero when the token carries no expiry.
	ExpiresAt time.Time
}

// Gate verifies bearer tokens against a shared secret.
type Gate struct {
	secret []byte
}

// NewGate creates a Gate for the given HMAC secret.
func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Admit validates a token and returns the identity it carries.
func (g *Gate) Admit(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return g.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	uid := claims.UID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{UserID: uid}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Issue signs a token for uid that expires after ttl. A non-positive ttl
// produces a token without expiry. Credential issuance belongs to the
// account service; this exists for local tooling and tests.
func (g *Gate) Issue(uid string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  uid,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// TokenFromRequest extracts the bearer credential from a request. The
// "token" query parameter is used by browser WebSocket clients, which cannot
// set headers; otherwise the Authorization header is read.
func TokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}
