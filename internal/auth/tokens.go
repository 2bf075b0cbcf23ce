package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a session token fails validation.
var ErrInvalidToken = errors.New("invalid or expired session token")

// SessionClaims are the claims carried by a session token.
type SessionClaims struct {
	UserID     string `json:"uid"`
	BusinessID string `json:"bid"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates signed session tokens. The token doubles
// as the transport-layer session identifier: its jti makes every issued
// token unique at a point in time.
type JWTManager struct {
	secret []byte
	issuer string
}

// NewJWTManager creates a JWTManager signing with secret.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{secret: []byte(secret), issuer: issuer}
}

// Generate returns a new signed session token for user, valid for ttl.
func (m *JWTManager) Generate(user *User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:     user.ID,
		BusinessID: user.BusinessID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and verifies a session token, returning its claims.
func (m *JWTManager) Validate(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
