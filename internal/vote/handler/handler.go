package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voteboard/internal/identity/session"
	rlmiddleware "voteboard/internal/ratelimit/middleware"
	"voteboard/internal/vote/models"
	"voteboard/internal/vote/service"
	dErrors "voteboard/pkg/domain-errors"
	"voteboard/pkg/platform/httputil"
	"voteboard/pkg/requestcontext"
)

const (
	// SessionCookie is read when no Authorization header is sent.
	SessionCookie = "session"
	maxBodyBytes  = 4 << 10
)

// Service defines the interface for vote operations.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput) (*service.SubmitResult, error)
	Board(ctx context.Context, sessionToken string) (*service.BoardResult, error)
}

// Handler wires the vote endpoints to the vote service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the vote endpoints. readMiddleware wraps only the read.
func (h *Handler) Register(r chi.Router, readMiddleware ...func(http.Handler) http.Handler) {
	r.With(readMiddleware...).Get("/api/votes", h.HandleList)
	r.Post("/api/votes", h.HandleSubmit)
}

// HandleList handles GET /api/votes.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.Board(ctx, sessionToken(r))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load vote board",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	cache := "miss"
	if result.CacheHit {
		cache = "hit"
	}
	w.Header().Set("X-Cache", cache)
	httputil.WriteJSON(w, http.StatusOK, result.Response)
}

// HandleSubmit handles POST /api/votes.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	var req *models.VoteRequest
	var body models.VoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		// validation rejects the nil request after the rate limits have run
		h.logger.DebugContext(ctx, "undecodable vote body", "request_id", requestID, "error", err)
	} else {
		req = &body
	}

	result, err := h.service.Submit(ctx, service.SubmitInput{
		ClientIP:     requestcontext.ClientIP(ctx),
		SessionToken: sessionToken(r),
		Request:      req,
	})
	if err != nil {
		var rlErr *models.RateLimitError
		if errors.As(err, &rlErr) {
			rlmiddleware.AddRateLimitHeaders(w, rlErr.Result)
		}
		level := slog.LevelInfo
		if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "vote submission rejected",
			"request_id", requestID,
			"error_kind", dErrors.CodeOf(err),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	rlmiddleware.AddRateLimitHeaders(w, result.RateLimit)
	h.logger.InfoContext(ctx, "vote submitted",
		"request_id", requestID,
		"project", result.Response.ProjectHandle,
		"outcome", result.Response.Outcome,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result.Response)
}

func sessionToken(r *http.Request) string {
	var cookie string
	if c, err := r.Cookie(SessionCookie); err == nil {
		cookie = c.Value
	}
	return session.FromHeader(r.Header.Get("Authorization"), cookie)
}
