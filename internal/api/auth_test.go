package api

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npezzotti/go-chatroom/internal/types"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   types.ID
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "empty user ID",
			ctx:      WithUserId(context.Background(), ""),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), "42"),
			userId:   "42",
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %q", tc.userId)
		})
	}
}

func Test_extractUserIdFromToken(t *testing.T) {
	app := &GoChatApp{signingKey: []byte("test-signing-key")}
	other := &GoChatApp{signingKey: []byte("other-key")}

	valid, err := app.createJwtForSession(types.User{Id: "7"}, time.Minute)
	require.NoError(t, err)

	expired, err := app.createJwtForSession(types.User{Id: "7"}, -time.Minute)
	require.NoError(t, err)

	foreign, err := other.createJwtForSession(types.User{Id: "7"}, time.Minute)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		userIdClaim: "7",
		expClaim:    time.Now().Add(time.Minute).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		expClaim: time.Now().Add(time.Minute).Unix(),
	}).SignedString(app.signingKey)
	require.NoError(t, err)

	tcases := []struct {
		name  string
		token string
		err   bool
	}{
		{name: "valid", token: valid},
		{name: "expired", token: expired, err: true},
		{name: "signed with another key", token: foreign, err: true},
		{name: "unsigned", token: unsigned, err: true},
		{name: "missing user claim", token: noUser, err: true},
		{name: "garbage", token: "not-a-token", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, err := app.extractUserIdFromToken(tc.token)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, types.ID("7"), userId)
		})
	}
}

func Test_hashPassword(t *testing.T) {
	hash, err := hashPassword("password123")
	require.NoError(t, err)

	assert.NotEqual(t, "password123", hash)
	assert.True(t, verifyPassword(hash, "password123"))
	assert.False(t, verifyPassword(hash, "wrong-password"))
	assert.False(t, verifyPassword("not-a-hash", "password123"))
}
