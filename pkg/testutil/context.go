package testutil

import (
	"net/http"

	"voteboard/pkg/requestcontext"
)

// WithBearer sets the Authorization header to a bearer session token.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// WithClientIP simulates the metadata middleware for a given client IP.
func WithClientIP(req *http.Request, ip string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), ip, req.UserAgent())
	return req.WithContext(ctx)
}
