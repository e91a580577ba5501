package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	domainuser "bazaar/internal/domain/user"
)

var (
	ErrInvalidToken = errors.New("security: invalid token")
	ErrTokenExpired = errors.New("security: token expired")
)

// TokenManager issues and verifies HMAC-signed bearer tokens whose subject is
// the user id.
type TokenManager struct {
	Secret []byte
	TTL    time.Duration
}

type tokenClaims struct {
	jwt.RegisteredClaims
}

func (m TokenManager) Issue(userID domainuser.ID, now time.Time) (string, error) {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.Secret)
	if err != nil {
		return "", fmt.Errorf("security: sign token: %w", err)
	}
	return signed, nil
}

// Verify resolves a token string to the subject user id.
func (m TokenManager) Verify(tokenString string) (domainuser.ID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.Secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return domainuser.ID(claims.Subject), nil
}
