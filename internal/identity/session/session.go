// Package session issues and decodes the signed session tokens that carry a
// caller's provider identity between sign-in and vote submission.
package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"voteboard/internal/identity/models"
)

var (
	ErrMalformed = errors.New("session is malformed")
	ErrExpired   = errors.New("session has expired")
)

// Claims represents the JWT claims of a session token.
type Claims struct {
	DisplayName string   `json:"name"`
	ServerIDs   []string `json:"servers"`
	AccessToken string   `json:"access_token"`
	jwt.RegisteredClaims
}

// Codec signs sessions with HS256.
type Codec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(signingKey, issuer string, ttl time.Duration, opts ...Option) *Codec {
	c := &Codec{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs a session for candidate. Used by sign-in flows and tests.
func (c *Codec) Issue(candidate models.Candidate) (string, error) {
	now := c.now()
	servers := candidate.ServerIDs
	if servers == nil {
		servers = []string{}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		DisplayName: candidate.DisplayName,
		ServerIDs:   servers,
		AccessToken: candidate.AccessToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   candidate.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    c.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(c.signingKey)
}

// Decode verifies the signature and expiry and requires a user id, a display
// name and a server list to be present.
func (c *Codec) Decode(tokenString string) (*models.Candidate, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMalformed
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return c.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || strings.TrimSpace(claims.DisplayName) == "" || claims.ServerIDs == nil {
		return nil, ErrMalformed
	}

	return &models.Candidate{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		ServerIDs:   claims.ServerIDs,
		AccessToken: claims.AccessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// FromHeader extracts a session token from "Authorization: Bearer <token>",
// falling back to the session cookie value.
func FromHeader(authorization, cookie string) string {
	if authorization != "" {
		scheme, token, found := strings.Cut(authorization, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(cookie)
}
