package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"voteboard/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	t.Run("remote addr without proxy trust", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:5123"
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		assert.Equal(t, "198.51.100.4", ClientIPFromRequest(req, false))
	})

	t.Run("first forwarded hop when proxy is trusted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:80"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		assert.Equal(t, "203.0.113.9", ClientIPFromRequest(req, true))
	})

	t.Run("x-real-ip fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", " 203.0.113.10 ")
		assert.Equal(t, "203.0.113.10", ClientIPFromRequest(req, true))
	})

	t.Run("ipv6 remote addr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "[2001:db8::1]:443"
		assert.Equal(t, "2001:db8::1", ClientIPFromRequest(req, false))
	})
}

func TestClientMetadataMiddleware(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:5123"
	req.Header.Set("User-Agent", "voteboard-test")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.4", gotIP)
	assert.Equal(t, "voteboard-test", gotUA)
}
