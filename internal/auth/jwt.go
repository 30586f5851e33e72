// Package auth verifies player credentials locally using HMAC-signed JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/park285/cheese-match/internal/domain"
)

const defaultTTL = 24 * time.Hour

type Claims struct {
	PlayerID string `json:"player_id"`
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 tokens carrying a player id.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) (*JWT, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("JWT_SECRET required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for playerID.
func (j *JWT) Issue(playerID string) (string, error) {
	if strings.TrimSpace(playerID) == "" {
		return "", errors.New("player id required")
	}
	now := j.now()
	claims := &Claims{
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify validates the token and returns its claims.
func (j *JWT) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, errors.New("token missing")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.PlayerID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Authenticate maps a credential to a player id. Expired tokens get their own message
// so the client knows to fetch a new one.
func (j *JWT) Authenticate(_ context.Context, credential string) (string, error) {
	claims, err := j.Verify(credential)
	switch {
	case err == nil:
		return claims.PlayerID, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", domain.Errf(domain.KindAuth, "credential expired")
	default:
		return "", domain.Errf(domain.KindAuth, "invalid credential")
	}
}
