package models

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWellFormedToken(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"aaa.bbb.ccc", true},
		{"", false},
		{"aaa.bbb", false},
		{"aaa.bbb.ccc.ddd", false},
		{"aaa..ccc", false},
		{"opaque-token", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.want, WellFormedToken(tt.token))
		})
	}
}

func TestParseAccessClaims(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("any-key"))
	require.NoError(t, err)

	claims, ok := ParseAccessClaims(signed)
	require.True(t, ok)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp))

	assert.True(t, claims.ExpiresWithin(time.Now(), 15*time.Minute))
	assert.False(t, claims.ExpiresWithin(time.Now(), time.Minute))
}

func TestParseAccessClaims_OpaqueToken(t *testing.T) {
	_, ok := ParseAccessClaims("not.a.jwt")
	assert.False(t, ok)

	_, ok = ParseAccessClaims("opaque")
	assert.False(t, ok)
}

func TestAccessClaims_NoExpiryNeverExpires(t *testing.T) {
	assert.False(t, AccessClaims{}.ExpiresWithin(time.Now(), time.Hour))
}
