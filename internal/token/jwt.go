package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the identity claims carried by a provider ID token.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

// UID returns the provider user id, preferring user_id over sub.
func (c Claims) UID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Inspect reads claims from an ID token without verifying its signature.
// Verification is the provider's job; the client only needs identity fields
// that some responses omit.
func Inspect(idToken string) (Claims, error) {
	claims := Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, &claims); err != nil {
		return Claims{}, fmt.Errorf("failed to parse id token: %w", err)
	}
	return claims, nil
}

// Issuer signs HS256 ID tokens. It backs local stand-ins for the provider.
type Issuer struct {
	secretKey string
}

// NewIssuer creates an issuer with the provided secret key.
func NewIssuer(secretKey string) *Issuer {
	return &Issuer{secretKey: secretKey}
}

// Issue creates an ID token for uid and email valid for ttl.
func (i *Issuer) Issue(uid, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: uid,
		Email:  email,
	})

	tokenString, err := token.SignedString([]byte(i.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}

	return tokenString, nil
}

// Verify validates a token issued by this issuer and returns its claims.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return []byte(i.secretKey), nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("failed to parse id token: %w", err)
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("id token is invalid")
	}
	return claims, nil
}
