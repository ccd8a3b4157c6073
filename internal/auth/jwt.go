package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/repairhub/api/internal/enum"
)

var ErrWrongTokenType = errors.New("wrong token type")

type Claims struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	IsStaff   bool      `json:"is_staff"`
	TokenType string    `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshToken is a signed refresh token plus the id and expiry needed to
// revoke it later.
type RefreshToken struct {
	Token     string
	ID        uuid.UUID
	ExpiresAt time.Time
}

func GenerateToken(secret string, ttl time.Duration, userID uuid.UUID, username string, isStaff bool) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Username:  username,
		IsStaff:   isStaff,
		TokenType: enum.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func GenerateRefreshToken(secret string, ttl time.Duration, userID uuid.UUID) (RefreshToken, error) {
	now := time.Now()
	id := uuid.New()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:    userID,
		TokenType: enum.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        id.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return RefreshToken{}, err
	}
	// JWT NumericDate has second precision.
	return RefreshToken{Token: signed, ID: id, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// ValidateToken parses an access token.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	return parse(secret, tokenStr, enum.TokenTypeAccess)
}

// ValidateRefreshToken parses a refresh token. Callers still have to check
// the revocation list.
func ValidateRefreshToken(secret, tokenStr string) (*Claims, error) {
	return parse(secret, tokenStr, enum.TokenTypeRefresh)
}

// TokenID returns the jti claim as a UUID.
func (c *Claims) TokenID() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

func parse(secret, tokenStr, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
