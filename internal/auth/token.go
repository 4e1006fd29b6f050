// Package auth signs the dashboard links the bot hands out.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTTL = 72 * time.Hour

var (
	ErrDisabled     = errors.New("auth: no secret configured")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Tokens issues and verifies HS256 tokens bound to a Telegram user id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Claims is the token payload: the user id as uid plus the registered
// iat and exp.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether dashboard access is protected at all.
func (t *Tokens) Enabled() bool {
	return t != nil && len(t.secret) > 0
}

func (t *Tokens) Issue(userID int64) (string, error) {
	if !t.Enabled() {
		return "", ErrDisabled
	}
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	})
	return token.SignedString(t.secret)
}

func (t *Tokens) Verify(tokenString string) (int64, error) {
	if !t.Enabled() {
		return 0, ErrDisabled
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	return claims.UserID, nil
}
