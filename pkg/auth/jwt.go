package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrDisabled     = errors.New("authentication is disabled")
)

var jwtSecret []byte

// Claims identify the shell instance calling the API.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// InitJWT installs the signing secret. An empty secret disables
// authentication.
func InitJWT(secret string) {
	jwtSecret = []byte(secret)
}

func Enabled() bool {
	return len(jwtSecret) > 0
}

// GenerateToken signs a token for client valid for expireSeconds. Zero
// means no expiry.
func GenerateToken(client string, expireSeconds int) (string, error) {
	if !Enabled() {
		return "", ErrDisabled
	}
	now := time.Now()
	claims := Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  client,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "dashshot",
		},
	}
	if expireSeconds > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Duration(expireSeconds) * time.Second))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
}

func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
