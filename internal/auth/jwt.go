package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the panel user's identity inside a signed token.
type Claims struct {
	UID      int    `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrSecretNotSet = errors.New("JWT secret not initialized")
	ErrTokenInvalid = errors.New("invalid token")
)

var signingKey []byte

// InitJWT stores the HMAC signing key used for all tokens.
func InitJWT(secret string) {
	signingKey = []byte(secret)
}

// GenerateToken signs a token for the user, valid until expireAt.
func GenerateToken(uid int, username, role string, expireAt time.Time, issuer string) (string, error) {
	if len(signingKey) == 0 {
		return "", ErrSecretNotSet
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UID:      uid,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expireAt),
		},
	})
	return token.SignedString(signingKey)
}

// ParseToken verifies signature and expiry and returns the claims.
func ParseToken(tokenString string) (*Claims, error) {
	if len(signingKey) == 0 {
		return nil, ErrSecretNotSet
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(*jwt.Token) (interface{}, error) { return signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
