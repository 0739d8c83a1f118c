// Package provider performs live credential checks against the external
// identity provider.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"voteboard/internal/identity/models"
	"voteboard/pkg/platform/circuit"
)

var (
	// ErrInvalidCredential means the provider rejected the access token.
	ErrInvalidCredential = errors.New("provider rejected credential")
	// ErrUnavailable means the provider could not answer: network failure,
	// timeout, 5xx, or the breaker is open.
	ErrUnavailable = errors.New("identity provider unavailable")
)

const (
	defaultTimeout  = 3 * time.Second
	currentUserPath = "/users/@me"
	maxBodyBytes    = 1 << 16
)

var tracer = otel.Tracer("voteboard/identity/provider")

type Client struct {
	baseURL string
	base    http.RoundTripper
	timeout time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport sets the round tripper beneath the bearer transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		base:    http.DefaultTransport,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New("identity-provider")
	}
	return c
}

// CurrentUser asks the provider who owns accessToken. A rejected credential
// does not count against the breaker; outages do.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*models.ProviderUser, error) {
	ctx, span := tracer.Start(ctx, "provider.CurrentUser")
	defer span.End()

	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrInvalidCredential
	}
	if !c.breaker.Allow() {
		span.SetStatus(codes.Error, "breaker open")
		return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	user, err := c.fetch(ctx, accessToken)
	switch {
	case err == nil:
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "identity provider circuit closed")
		}
		return user, nil
	case errors.Is(err, ErrUnavailable):
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.ErrorContext(ctx, "identity provider circuit opened", "error", err)
		}
	default:
		// the provider answered, so it is healthy
		c.breaker.RecordSuccess()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

func (c *Client) fetch(ctx context.Context, accessToken string) (*models.ProviderUser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+currentUserPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, ErrInvalidCredential
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrInvalidCredential, resp.StatusCode)
	}

	var user models.ProviderUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrUnavailable, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrInvalidCredential)
	}
	return &user, nil
}
