package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/learnchain/gatehouse/core"
)

const AudienceAccess = "gatehouse:access"

// JWTTokenizer mints and parses the HS256 access tokens handed out on wallet
// connect. The subject is the wallet address.
type JWTTokenizer struct {
	secret []byte
	ttl    time.Duration
}

func NewJWTTokenizer(secret string, ttl time.Duration) *JWTTokenizer {
	return &JWTTokenizer{secret: []byte(secret), ttl: ttl}
}

func (j *JWTTokenizer) Mint(address string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   address,
		ID:        uuid.New().String(),
		Audience:  jwt.ClaimStrings{AudienceAccess},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (j *JWTTokenizer) Parse(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithAudience(AudienceAccess))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", core.ErrTokenExpired
		}
		return "", fmt.Errorf("failed to parse token: %w", core.ErrInvalidToken)
	}
	if !token.Valid {
		return "", core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", core.ErrInvalidToken
	}
	return claims.Subject, nil
}
