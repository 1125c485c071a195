package util

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrLinkTokenInvalid is returned for tokens that fail signature, expiry or claim checks.
var ErrLinkTokenInvalid = errors.New("invalid link token")

// GenerateLinkToken signs a short-lived state token binding an account-link
// request to the user and chat address that asked for it.
func GenerateLinkToken(userID int64, chatAddress, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"chat":    chatAddress,
		"purpose": "link",
		"exp":     now.Add(ttl).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseLinkToken validates a token produced by GenerateLinkToken.
func ParseLinkToken(tokenStr, secret string) (int64, string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, "", errors.Join(ErrLinkTokenInvalid, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != "link" {
		return 0, "", ErrLinkTokenInvalid
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", ErrLinkTokenInvalid
	}
	chat, _ := claims["chat"].(string)

	return int64(userIDFloat), chat, nil
}
