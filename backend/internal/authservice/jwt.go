package authservice

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	ParticipantID string `json:"sub"`
	DisplayName   string `json:"displayName"`
	Identifier    string `json:"identifier"`
	jwt.RegisteredClaims
}

// Secret defaults to the JWT_SECRET environment variable; the daemon
// overrides it from config at boot.
var secret []byte

func SetSecret(s string) {
	secret = []byte(s)
}

func getSecret() []byte {
	if len(secret) > 0 {
		return secret
	}
	s := os.Getenv("JWT_SECRET")
	if s == "" {
		s = "dev-secret"
	}
	return []byte(s)
}

func SignToken(participantID, displayName, identifier string, ttl time.Duration) (string, time.Time, error) {
	expiry := time.Now().Add(ttl)
	claims := &Claims{
		ParticipantID: participantID,
		DisplayName:   displayName,
		Identifier:    identifier,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(getSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiry, nil
}

func ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return getSecret(), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}
