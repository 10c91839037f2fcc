package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const jwtIssuer = "studydesk"

var defaultJWTLeeway = 30 * time.Second

// ErrInvalidToken is returned for tokens that are missing, malformed,
// expired, or signed with the wrong key.
var ErrInvalidToken = errors.New("invalid token")

// JWTSessionStore issues and validates stateless HS256 tokens carrying the
// user id as subject. No server-side session record is kept.
type JWTSessionStore struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTSessionStore builds an HS256 session store from the signing secret.
func NewJWTSessionStore(secret string, ttl time.Duration) (*JWTSessionStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt signing secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTSessionStore{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the user.
func (s *JWTSessionStore) Issue(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates the token and returns the user id it carries.
func (s *JWTSessionStore) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(jwtIssuer),
		jwt.WithLeeway(defaultJWTLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
