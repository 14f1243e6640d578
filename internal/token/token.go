// Package token signs and verifies the click-tracking tokens embedded in ad
// click URLs, so a click can only be recorded for a creative that was served.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// ClickClaims identify the served creative a click belongs to.
type ClickClaims struct {
	AdID      string `json:"ad"`
	Position  string `json:"pos"`
	RequestID string `json:"rid,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 click tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner returns a signer. A ttl of zero issues tokens that never expire.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl}
}

// Sign issues a token for a creative served in position.
func (s *Signer) Sign(adID, position, requestID string) (string, error) {
	return s.signAt(adID, position, requestID, time.Now())
}

func (s *Signer) signAt(adID, position, requestID string, now time.Time) (string, error) {
	if adID == "" {
		return "", fmt.Errorf("%w: ad id required", ErrInvalid)
	}
	claims := ClickClaims{
		AdID:      adID,
		Position:  position,
		RequestID: requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign click token: %w", err)
	}
	return tok, nil
}

// Verify checks signature and expiry and returns the claims.
func (s *Signer) Verify(tok string) (ClickClaims, error) {
	var claims ClickClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ClickClaims{}, ErrExpired
		}
		return ClickClaims{}, ErrInvalid
	}
	if !parsed.Valid || claims.AdID == "" {
		return ClickClaims{}, ErrInvalid
	}
	return claims, nil
}
