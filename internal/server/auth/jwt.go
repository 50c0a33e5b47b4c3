// Package auth issues and verifies the HS256 tokens that protect the
// administrative surface: sweeps, quota seeding and manual repairs.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/andrejs2008/evomint/internal/common"
)

// Claims — стандартные утверждения плюс имя оператора для аудита
type Claims struct {
	jwt.RegisteredClaims
	Operator string
}

// GenerateToken mints an admin token for the named operator.
func GenerateToken(operator string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Operator: operator,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// OperatorFromToken verifies the token and returns the operator it was
// minted for. Expiry maps to common.ErrTokenExpired, every other defect
// to common.ErrInvalidToken.
func OperatorFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.Operator, nil
}
