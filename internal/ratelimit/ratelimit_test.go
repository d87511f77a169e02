package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowRejectsFourthRequest(t *testing.T) {
	l := New(Config{Limit: 3, Window: 60 * time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ctx, "peer-a"))
	}
	err := l.Allow(ctx, "peer-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too_many_requests")
}

func TestDifferentPeersHaveSeparateBuckets(t *testing.T) {
	l := New(Config{Limit: 1, Window: 60 * time.Second})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "peer-a"))
	require.Error(t, l.Allow(ctx, "peer-a"))
	require.NoError(t, l.Allow(ctx, "peer-b"))
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l := New(Config{Limit: 1, Window: 20 * time.Millisecond})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "peer-a"))
	require.Error(t, l.Allow(ctx, "peer-a"))

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, l.Allow(ctx, "peer-a"))
}

func TestClientIPTrustsForwardedForOnlyFromTrustedProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(r))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.RemoteAddr = "203.0.113.9:1234"
	r2.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "203.0.113.9", ClientIP(r2))
}
