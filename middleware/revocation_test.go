package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRevoker(t *testing.T) (*RedisRevoker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevoker(client), mr
}

func TestRedisRevoker(t *testing.T) {
	ctx := context.Background()
	revoker, mr := newTestRevoker(t)

	revoked, err := revoker.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, revoker.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = revoker.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// запись исчезает вместе со сроком токена
	mr.FastForward(2 * time.Minute)
	revoked, err = revoker.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevoker_SkipsExpiredTokens(t *testing.T) {
	ctx := context.Background()
	revoker, mr := newTestRevoker(t)

	require.NoError(t, revoker.Revoke(ctx, "jti-old", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists("auth:revoked:jti-old"))
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	revoker, mr := newTestRevoker(t)
	h := AuthMiddleware(secret, revoker)(echoAccount())

	token, expiresAt, err := NewToken(secret, "1234567890", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, serveWithToken(h, token).Code)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	require.NotEmpty(t, claims.ID)
	require.NoError(t, revoker.Revoke(context.Background(), claims.ID, expiresAt))

	rr := serveWithToken(h, token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Token revoked")

	mr.SetError("LOADING Redis is loading the dataset in memory")
	assert.Equal(t, http.StatusServiceUnavailable, serveWithToken(h, token).Code)
}
