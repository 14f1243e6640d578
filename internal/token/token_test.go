package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	s := NewSigner([]byte("secret"), time.Minute)
	tok, err := s.Sign("ad-1", "header", "req-9")
	require.NoError(t, err)

	c, err := s.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "ad-1", c.AdID)
	assert.Equal(t, "header", c.Position)
	assert.Equal(t, "req-9", c.RequestID)
}

func TestVerifyExpired(t *testing.T) {
	s := NewSigner([]byte("s"), time.Minute)
	tok, err := s.signAt("ad-1", "header", "", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyNoTTLNeverExpires(t *testing.T) {
	s := NewSigner([]byte("s"), 0)
	tok, err := s.signAt("ad-1", "header", "", time.Now().Add(-24*365*time.Hour))
	require.NoError(t, err)

	_, err = s.Verify(tok)
	assert.NoError(t, err)
}

func TestVerifyInvalid(t *testing.T) {
	s := NewSigner([]byte("s"), time.Minute)
	tok, err := s.Sign("ad-1", "header", "")
	require.NoError(t, err)

	_, err = s.Verify(tok + "x")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = NewSigner([]byte("other"), time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = s.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := ClickClaims{AdID: "ad-1"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewSigner([]byte("s"), time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSignRequiresAdID(t *testing.T) {
	_, err := NewSigner([]byte("s"), time.Minute).Sign("", "header", "")
	assert.ErrorIs(t, err, ErrInvalid)
}
