package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voteboard/pkg/platform/circuit"
)

func TestCurrentUser(t *testing.T) {
	t.Run("valid credential returns provider user", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/users/@me", r.URL.Path)
			assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"123","username":"alice","global_name":"Alice"}`))
		}))
		defer srv.Close()

		user, err := New(srv.URL + "/api/").CurrentUser(context.Background(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, "123", user.ID)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("rejected credential", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := New(srv.URL).CurrentUser(context.Background(), "revoked")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("empty token never leaves the process", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		}))
		defer srv.Close()

		_, err := New(srv.URL).CurrentUser(context.Background(), "")
		assert.ErrorIs(t, err, ErrInvalidCredential)
		assert.Zero(t, hits.Load())
	})

	t.Run("server error is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(srv.URL).CurrentUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("slow provider times out", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		start := time.Now()
		_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).CurrentUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestCurrentUserBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	breaker := circuit.New("provider-test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	client := New(srv.URL, WithBreaker(breaker))

	for range 2 {
		_, err := client.CurrentUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.True(t, breaker.IsOpen())

	_, err := client.CurrentUser(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable, "open breaker fails closed")
	assert.Equal(t, int32(2), hits.Load(), "no call while open")
}

func TestRejectedCredentialDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	breaker := circuit.New("provider-test", circuit.WithFailureThreshold(1))
	client := New(srv.URL, WithBreaker(breaker))
	for range 3 {
		_, err := client.CurrentUser(context.Background(), "bad")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	}
	assert.False(t, breaker.IsOpen())
}
